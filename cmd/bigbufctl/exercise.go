package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bigbuf/control"
)

var (
	exerciseSize   string
	exerciseCount  int
	exerciseOffset string
	exerciseKeep   bool
)

func init() {
	cmd := newExerciseCmd()
	cmd.Flags().StringVar(&exerciseSize, "size", "512M", "Buffer size to allocate")
	cmd.Flags().IntVar(&exerciseCount, "count", 10, "Number of integers to write and read back")
	cmd.Flags().StringVar(&exerciseOffset, "offset", "0", "Offset of the first integer")
	cmd.Flags().BoolVar(&exerciseKeep, "keep", false, "Leave the buffer allocated")
	rootCmd.AddCommand(cmd)
}

func newExerciseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exercise",
		Short: "Allocate, write, verify and release the buffer",
		Long: `The exercise command runs a full session against the server: allocate a
buffer, print its address, write a run of integers, read them back and compare,
then release.

Example:
  bigbufctl exercise --size 512M
  bigbufctl exercise --size 64M --count 1024 --offset 0x10000 --keep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parseSize(exerciseSize)
			if err != nil {
				return err
			}
			off, err := parseOffset(exerciseOffset)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				return runExercise(ctx, c, size, off, exerciseCount, exerciseKeep)
			})
		},
	}
}

func runExercise(ctx context.Context, c *control.Client, size, off uint64, count int, keep bool) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	if off+uint64(count)*4 > size {
		return fmt.Errorf("%d values at 0x%x do not fit in %s", count, off, formatBytes(size))
	}
	info, err := c.Alloc(ctx, size)
	if err != nil {
		return fmt.Errorf("alloc: %w", err)
	}
	printInfo("Allocated %s\n", formatBytes(info.Size))

	addr, err := c.Addr(ctx)
	if err != nil {
		return fmt.Errorf("addr: %w", err)
	}
	printInfo("Buffer at 0x%x\n", addr.Addr)

	want := make([]byte, 0, 4*count)
	for i := range count {
		want = binary.LittleEndian.AppendUint32(want, uint32(i))
	}
	got := make([]byte, len(want))
	for start := 0; start < len(want); start += control.DefaultMaxTransfer {
		end := min(start+control.DefaultMaxTransfer, len(want))
		if err := c.Write(ctx, off+uint64(start), want[start:end]); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		part, err := c.Read(ctx, off+uint64(start), uint64(end-start))
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		copy(got[start:], part)
	}
	for i := range count {
		v := binary.LittleEndian.Uint32(got[i*4:])
		printVerbose("  [%d] = %d\n", i, v)
		if v != uint32(i) {
			return fmt.Errorf("verify: value %d at 0x%x reads back as %d", i, off+uint64(i*4), v)
		}
	}
	printInfo("Verified %d values\n", count)

	if keep {
		return nil
	}
	if err := c.Release(ctx); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	printInfo("Released\n")
	return nil
}
