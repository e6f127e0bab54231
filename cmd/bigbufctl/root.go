package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/bigbuf/cmd/bigbufctl/logger"
	"github.com/joshuapare/bigbuf/control"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	cfgFile    string
	socketPath string
	timeout    time.Duration
	logLevel   string
	logFormat  string
	logFile    string

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "bigbufctl",
	Short: "Serve and exercise large contiguous memory buffers",
	Long: `bigbufctl runs a bigbuf device server and talks to it over its control
socket. The server owns at most one large buffer assembled from adjacent
chapters of a page allocator; the client commands allocate it, report its
address, read and write its bytes and release it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(cmd); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}
		level := logLevel
		if verbose && level == "" {
			level = "debug"
		}
		c, err := logger.Init(logger.Options{
			Level:  level,
			Format: logFormat,
			File:   logFile,
			Color:  logFile == "" && isatty.IsTerminal(os.Stderr.Fd()),
		})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		closeLog = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./bigbufctl.yaml if present)")
	rootCmd.PersistentFlags().
		StringVarP(&socketPath, "socket", "s", defaultSocket(), "Control socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-command timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json or console")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
}

func defaultSocket() string {
	return filepath.Join(os.TempDir(), "bigbuf.sock")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withClient dials the control socket and runs fn under the command timeout.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	printVerbose("Connecting to %s\n", socketPath)
	c, err := control.Dial(ctx, "unix", socketPath)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled and the
// output is not JSON
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet && !jsonOut {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var printer = message.NewPrinter(language.English)

// formatBytes renders n as "50,331,648 bytes (48MiB)".
func formatBytes(n uint64) string {
	return printer.Sprintf("%d bytes (%s)", n, units.BytesSize(float64(n)))
}

// parseSize accepts plain byte counts and binary suffixes such as 512M or 4KiB.
func parseSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return uint64(n), nil
}

// parseOffset accepts decimal, 0x hex and size suffixes.
func parseOffset(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, nil
	}
	return parseSize(s)
}
