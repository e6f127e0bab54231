package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bigbuf/control"
	"github.com/joshuapare/bigbuf/device"
	"github.com/joshuapare/bigbuf/mem"
)

func init() {
	rootCmd.AddCommand(newAllocCmd(), newAddrCmd(), newReleaseCmd())
}

// infoJSON is the JSON shape of device.Info.
type infoJSON struct {
	Addr     string `json:"addr"`
	Size     uint64 `json:"size"`
	Capacity uint64 `json:"capacity"`
}

func printAllocation(verb string, info device.Info) error {
	if jsonOut {
		return printJSON(infoJSON{Addr: fmt.Sprintf("0x%x", info.Addr), Size: info.Size, Capacity: info.Capacity})
	}
	printInfo("%s %s at 0x%x\n", verb, formatBytes(info.Size), info.Addr)
	printVerbose("  capacity: %s\n", formatBytes(info.Capacity))
	return nil
}

func newAllocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alloc <size>",
		Short: "Allocate the device buffer",
		Long: `The alloc command asks the server for a buffer of at least <size> bytes.
Sizes accept binary suffixes. If a buffer is already live, the server either
returns it unchanged (reuse policy) or refuses (reject policy).

Example:
  bigbufctl alloc 512M
  bigbufctl alloc 48MiB --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseSize(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				info, err := c.Alloc(ctx, size)
				if errors.Is(err, mem.ErrAlreadyAllocated) {
					_ = printAllocation("Already allocated", info)
					return err
				}
				if err != nil {
					return err
				}
				if info.Size != size {
					printInfo("Reusing live buffer; requested size %s ignored\n", formatBytes(size))
				}
				return printAllocation("Allocated", info)
			})
		},
	}
}

func newAddrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addr",
		Short: "Print the buffer address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				info, err := c.Addr(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return printAllocation("", info)
				}
				printInfo("0x%x\n", info.Addr)
				return nil
			})
		},
	}
}

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Release the buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				if err := c.Release(ctx); err != nil {
					return err
				}
				printInfo("Released\n")
				return nil
			})
		},
	}
}
