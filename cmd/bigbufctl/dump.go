package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bigbuf/control"
)

func init() {
	rootCmd.AddCommand(newDumpCmd(), newPokeCmd())
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <offset> <length>",
		Short: "Hex dump a range of the buffer",
		Long: `The dump command reads <length> bytes at <offset> and prints them as a hex
dump. Offsets and lengths accept 0x hex and size suffixes.

Example:
  bigbufctl dump 0 64
  bigbufctl dump 0x1000 4K`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := parseOffset(args[0])
			if err != nil {
				return err
			}
			n, err := parseOffset(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				data, err := c.Read(ctx, off, n)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(map[string]string{
						"offset": fmt.Sprintf("0x%x", off),
						"data":   hex.EncodeToString(data),
					})
				}
				printVerbose("%s at offset 0x%x\n", formatBytes(uint64(len(data))), off)
				if !quiet {
					d := hex.Dumper(os.Stdout)
					defer d.Close()
					_, err = d.Write(data)
				}
				return err
			})
		},
	}
}

func newPokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poke <offset> <value>...",
		Short: "Write 32-bit little-endian integers into the buffer",
		Example: `  bigbufctl poke 0 1 2 3 4
  bigbufctl poke 0x2000 0xdeadbeef`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := parseOffset(args[0])
			if err != nil {
				return err
			}
			data := make([]byte, 0, 4*(len(args)-1))
			for _, a := range args[1:] {
				v, err := strconv.ParseUint(a, 0, 32)
				if err != nil {
					return fmt.Errorf("value %q: %w", a, err)
				}
				data = binary.LittleEndian.AppendUint32(data, uint32(v))
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				if err := c.Write(ctx, off, data); err != nil {
					return err
				}
				printInfo("Wrote %d values at 0x%x\n", len(args)-1, off)
				return nil
			})
		},
	}
}
