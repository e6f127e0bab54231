package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/joshuapare/bigbuf/cmd/bigbufctl/logger"
	"github.com/joshuapare/bigbuf/device"
	"github.com/joshuapare/bigbuf/internal/format"
	"github.com/joshuapare/bigbuf/mem/assemble"
	"github.com/joshuapare/bigbuf/mem/buddy"
)

// stackConfig holds the flags that build provider, assembler and device.
type stackConfig struct {
	chapters     int
	maxOrder     uint
	base         uint64
	shuffle      bool
	seed         int64
	lock         bool
	maxAttempts  int
	budget       time.Duration
	clusterLimit int
	policy       string
}

func (c *stackConfig) register(fs *pflag.FlagSet) {
	fs.IntVar(&c.chapters, "chapters", 256, "Arena size in chapters")
	fs.UintVar(&c.maxOrder, "max-order", format.DefaultMaxOrder, "Chapter order (chapter = 4KiB << order)")
	fs.Uint64Var(&c.base, "base", 0x100000, "Frame number of the first arena page")
	fs.BoolVar(&c.shuffle, "shuffle", true, "Hand out chapters in a seeded random order")
	fs.Int64Var(&c.seed, "seed", 1, "Shuffle seed")
	fs.BoolVar(&c.lock, "lock", false, "Lock the arena in RAM")
	fs.IntVar(&c.maxAttempts, "max-attempts", assemble.DefaultRetryPolicy.MaxAttempts, "Chapters drawn per assembly before giving up (0 = unbounded)")
	fs.DurationVar(&c.budget, "budget", 0, "Wall-clock limit per assembly (0 = none)")
	fs.IntVar(&c.clusterLimit, "cluster-limit", 0, "Maximum disjoint clusters tracked per assembly (0 = unbounded)")
	fs.StringVar(&c.policy, "policy", "reuse", "Occupied-slot policy: reuse or reject")
}

// stack is a wired provider, assembler and device.
type stack struct {
	provider  *buddy.Allocator
	assembler *assemble.Assembler
	device    *device.Device
}

func (c *stackConfig) build() (*stack, error) {
	policy, err := device.ParsePolicy(c.policy)
	if err != nil {
		return nil, err
	}
	p, err := buddy.New(buddy.Config{
		Chapters: c.chapters,
		MaxOrder: c.maxOrder,
		Base:     c.base,
		Shuffle:  c.shuffle,
		Seed:     c.seed,
		Lock:     c.lock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	a, err := assemble.New(p,
		assemble.WithRetryPolicy(assemble.RetryPolicy{MaxAttempts: c.maxAttempts, Budget: c.budget}),
		assemble.WithClusterLimit(c.clusterLimit),
		assemble.WithLogger(logger.L.With("component", "assemble")),
	)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	d := device.New(a, device.Options{Policy: policy, Logger: logger.L.With("component", "device")})
	logger.Info("provider ready",
		"chapters", c.chapters,
		"chapter_size", assemble.NewClassifier(p).ChapterSize(),
		"shuffle", c.shuffle,
		"policy", policy)
	return &stack{provider: p, assembler: a, device: d}, nil
}

// Close releases the live allocation and unmaps the arena.
func (s *stack) Close() error {
	err := s.device.Close()
	if cerr := s.provider.Close(); err == nil {
		err = cerr
	}
	return err
}
