package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bigbuf/cmd/bigbufctl/logger"
	"github.com/joshuapare/bigbuf/control"
)

var (
	serveStack       stackConfig
	serveMaxTransfer uint64
)

func init() {
	cmd := newServeCmd()
	serveStack.register(cmd.Flags())
	cmd.Flags().Uint64Var(&serveMaxTransfer, "max-transfer", control.DefaultMaxTransfer, "Largest read or write in bytes")
	rootCmd.AddCommand(cmd)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the device server",
		Long: `The serve command maps the page arena, builds the device and answers
control requests on the socket until interrupted. A live buffer is released
on shutdown.

Example:
  bigbufctl serve --chapters 512 --max-order 10
  BIGBUF_POLICY=reject bigbufctl serve -s /run/bigbuf.sock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, nil)
		},
	}
}

// runServe serves until ctx is done. ready, if set, is closed once the
// socket is listening.
func runServe(ctx context.Context, ready chan<- struct{}) error {
	st, err := serveStack.build()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	if err := os.Remove(socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	printInfo("Serving %s on %s\n",
		formatBytes(st.provider.TotalPages()<<st.provider.PageShift()), socketPath)
	if ready != nil {
		close(ready)
	}
	srv := control.NewServer(st.device, control.ServerOptions{
		MaxTransfer: serveMaxTransfer,
		Logger:      logger.L.With("component", "control"),
	})
	return srv.Serve(ctx, ln)
}
