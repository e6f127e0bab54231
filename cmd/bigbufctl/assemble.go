package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/bigbuf/mem/assemble"
	"github.com/joshuapare/bigbuf/mem/buddy"
)

var (
	assembleStack  stackConfig
	assembleRepeat int
	assembleHold   bool
)

func init() {
	cmd := newAssembleCmd()
	assembleStack.register(cmd.Flags())
	cmd.Flags().IntVar(&assembleRepeat, "repeat", 1, "Allocate each size this many times")
	cmd.Flags().BoolVar(&assembleHold, "hold", false, "Keep every region until the end instead of releasing each at once")
	rootCmd.AddCommand(cmd)
}

func newAssembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <size>...",
		Short: "Run the assembler in-process and report what it did",
		Long: `The assemble command builds a private arena, allocates each size through
the assembler and prints where the region landed and how many chapters were
drawn. Use -v to trace every chapter and the cluster list.

Example:
  bigbufctl assemble 48M 100M --chapters 128
  bigbufctl assemble 16M --repeat 20 --seed 7 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes := make([]uint64, len(args))
			for i, a := range args {
				s, err := parseSize(a)
				if err != nil {
					return err
				}
				sizes[i] = s
			}
			return runAssemble(cmd.Context(), sizes)
		},
	}
}

type assembleResult struct {
	Size     uint64 `json:"size"`
	Base     string `json:"base"`
	Class    string `json:"class"`
	Chapters uint64 `json:"chapters"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type assembleReport struct {
	Results   []assembleResult `json:"results"`
	Assembler assemble.Stats   `json:"assembler"`
	Provider  buddy.Stats      `json:"provider"`
}

func runAssemble(ctx context.Context, sizes []uint64) error {
	st, err := assembleStack.build()
	if err != nil {
		return err
	}
	defer st.Close()

	var report assembleReport
	var held []assemble.Region
	for range assembleRepeat {
		for _, size := range sizes {
			r, err := st.assembler.Allocate(ctx, size)
			res := assembleResult{Size: size}
			if err != nil {
				res.Attempts = st.assembler.Stats().LastAttempts
				res.Error = err.Error()
				report.Results = append(report.Results, res)
				if !jsonOut {
					printInfo("%s: %v\n", formatBytes(size), err)
				}
				continue
			}
			res.Base = fmt.Sprintf("0x%x", r.Base<<st.provider.PageShift())
			res.Class = r.Class.Kind.String()
			res.Chapters = r.Class.Chapters
			if r.Class.Kind == assemble.Assembled {
				res.Attempts = st.assembler.Stats().LastAttempts
			}
			report.Results = append(report.Results, res)
			if !jsonOut {
				printInfo("%s: %s at %s", formatBytes(size), res.Class, res.Base)
				if r.Class.Kind == assemble.Assembled {
					printInfo(" (%d chapters, %d drawn)", res.Chapters, res.Attempts)
				}
				printInfo("\n")
			}
			if assembleHold {
				held = append(held, r)
				continue
			}
			if err := st.assembler.Release(r); err != nil {
				return err
			}
		}
	}
	for _, r := range held {
		if err := st.assembler.Release(r); err != nil {
			return err
		}
	}

	report.Assembler = st.assembler.Stats()
	report.Provider = st.provider.Stats()
	if jsonOut {
		return printJSON(report)
	}
	a := report.Assembler
	printInfo("Assemblies: %d, failures: %d, chapters drawn: %d, returned: %d\n",
		a.Assemblies, a.Failures, a.ChaptersDrawn, a.ChaptersReturned)
	printVerbose("Provider: %s free of %s\n",
		formatBytes(report.Provider.FreePages<<st.provider.PageShift()),
		formatBytes(report.Provider.TotalPages<<st.provider.PageShift()))
	return nil
}
