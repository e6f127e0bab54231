package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/joshuapare/bigbuf/internal/format"
	"github.com/joshuapare/bigbuf/mem"
	"github.com/joshuapare/bigbuf/mem/cluster"
)

// Region is a live block handed out by an Assembler.
type Region struct {
	Base  mem.PFN // first frame
	Size  uint64  // requested bytes
	Class Class

	capacity uint64
}

// Capacity returns the usable bytes, which is at least Size.
func (r Region) Capacity() uint64 { return r.capacity }

// Stats is a snapshot of assembler counters.
type Stats struct {
	Direct           uint64 `json:"direct"`
	Assemblies       uint64 `json:"assemblies"`
	Failures         uint64 `json:"failures"`
	Exhausted        uint64 `json:"exhausted"`
	ChaptersDrawn    uint64 `json:"chapters_drawn"`
	ChaptersReturned uint64 `json:"chapters_returned"`
	Merges           uint64 `json:"merges"`
	LastClusters     int    `json:"last_clusters"`
	LastAttempts     int    `json:"last_attempts"`
}

// Assembler serves sizes of any class from a chapter provider.
type Assembler struct {
	p            mem.Provider
	cls          Classifier
	policy       RetryPolicy
	clusterLimit int
	log          *slog.Logger
	now          func() time.Time

	direct, assemblies, failures, exhausted atomic.Uint64
	drawn, returned, merges                 atomic.Uint64
	lastClusters, lastAttempts              atomic.Int64
}

// New creates an Assembler over p.
func New(p mem.Provider, opts ...Option) (*Assembler, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", mem.ErrInvalidRequest)
	}
	if p.MaxOrder() > format.MaxSupportedOrder {
		return nil, fmt.Errorf("%w: provider max order %d above %d", mem.ErrInvalidRequest, p.MaxOrder(), format.MaxSupportedOrder)
	}
	a := &Assembler{
		p:      p,
		cls:    NewClassifier(p),
		policy: DefaultRetryPolicy,
		log:    discardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.policy.MaxAttempts < 0 || a.policy.Budget < 0 {
		return nil, fmt.Errorf("%w: negative retry policy %+v", mem.ErrInvalidRequest, a.policy)
	}
	return a, nil
}

// Classifier returns the classifier shared by allocation and release.
func (a *Assembler) Classifier() Classifier { return a.cls }

// Provider returns the underlying chapter provider.
func (a *Assembler) Provider() mem.Provider { return a.p }

// Allocate returns a region of at least size bytes.
func (a *Assembler) Allocate(ctx context.Context, size uint64) (Region, error) {
	if size == 0 {
		return Region{}, fmt.Errorf("%w: zero size", mem.ErrInvalidRequest)
	}
	class := a.cls.Classify(size)
	if s, ok := a.p.(mem.Sizer); ok && a.cls.Pages(class) > s.TotalPages() {
		return Region{}, fmt.Errorf("%w: %d bytes exceeds provider capacity of %d pages",
			mem.ErrInvalidRequest, size, s.TotalPages())
	}

	if class.Kind == Direct {
		pfn, err := a.p.AcquireDirect(class.Order)
		if err != nil {
			a.failures.Add(1)
			return Region{}, fmt.Errorf("assemble: direct order %d: %w", class.Order, asOOM(err))
		}
		a.direct.Add(1)
		a.log.Debug("direct block", "size", size, "order", class.Order, "pfn", pfn)
		return Region{Base: pfn, Size: size, Class: class, capacity: a.cls.Bytes(class)}, nil
	}

	r, err := a.Assemble(ctx, class.Chapters)
	if err != nil {
		return Region{}, err
	}
	r.Size = size
	return r, nil
}

// Assemble draws chapters until chapters of them form one contiguous run.
// Chapters not part of the run, and any run chapters beyond the requested
// count, go back to the provider before it returns. On failure every chapter
// drawn has been returned.
func (a *Assembler) Assemble(ctx context.Context, chapters uint64) (Region, error) {
	if chapters == 0 {
		return Region{}, fmt.Errorf("%w: zero chapters", mem.ErrInvalidRequest)
	}
	order := a.cls.ChapterOrder
	span := a.cls.ChapterPages()
	set := cluster.NewSet(span, cluster.WithLimit(a.clusterLimit))
	a.assemblies.Add(1)

	release := func(start uint64) {
		if err := a.p.ReleaseDirect(start, order); err != nil {
			a.log.Warn("chapter release failed", "pfn", start, "err", err)
			return
		}
		a.returned.Add(1)
	}
	fail := func(attempts int, err error) (Region, error) {
		a.record(set, attempts)
		n := set.Drain(release)
		a.failures.Add(1)
		if errors.Is(err, mem.ErrExhausted) {
			a.exhausted.Add(1)
		}
		a.log.Debug("assembly failed", "chapters", chapters, "attempts", attempts, "returned", n, "err", err)
		return Region{}, err
	}

	start := a.now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(attempt-1, err)
		}
		if a.policy.MaxAttempts > 0 && attempt > a.policy.MaxAttempts {
			return fail(attempt-1, fmt.Errorf("%w: %d chapters drawn without a run of %d", mem.ErrExhausted, attempt-1, chapters))
		}
		if a.policy.Budget > 0 && a.now().Sub(start) > a.policy.Budget {
			return fail(attempt-1, fmt.Errorf("%w: budget %s spent without a run of %d", mem.ErrExhausted, a.policy.Budget, chapters))
		}

		pfn, err := a.p.AcquireDirect(order)
		if err != nil {
			return fail(attempt-1, fmt.Errorf("assemble: chapter %d: %w", attempt, asOOM(err)))
		}
		a.drawn.Add(1)

		before := set.Stats().Absorbs
		id, err := set.Insert(pfn)
		if err != nil {
			if errors.Is(err, mem.ErrOutOfMemory) {
				release(pfn)
			}
			return fail(attempt, fmt.Errorf("assemble: chapter %d: %w", attempt, err))
		}
		a.merges.Add(uint64(set.Stats().Absorbs - before))

		if a.log.Enabled(ctx, slog.LevelDebug) {
			a.log.Debug("chapter drawn", "attempt", attempt, "pfn", pfn, "clusters", set.Len())
			a.log.Debug("cluster list\n" + set.String())
		}

		c, _ := set.Get(id)
		if uint64(c.Length) < chapters {
			continue
		}

		a.record(set, attempt)
		set.Remove(id)
		for k := chapters; k < uint64(c.Length); k++ {
			release(c.Start + k*span)
		}
		n := set.Drain(release)
		class := Class{Kind: Assembled, Order: order, Chapters: chapters}
		a.log.Debug("assembled", "pfn", c.Start, "chapters", chapters, "attempts", attempt, "returned", n)
		return Region{
			Base:     c.Start,
			Size:     chapters * a.cls.ChapterSize(),
			Class:    class,
			capacity: a.cls.Bytes(class),
		}, nil
	}
}

// Release frees a region returned by Allocate or Assemble.
func (a *Assembler) Release(r Region) error {
	return a.Free(r.Base, r.Size)
}

// Free releases size bytes at base, re-deriving the class from size.
// Assembled regions are returned one chapter at a time; every chapter is
// attempted even when some fail.
func (a *Assembler) Free(base mem.PFN, size uint64) error {
	if size == 0 {
		return fmt.Errorf("%w: zero size", mem.ErrInvalidRequest)
	}
	class := a.cls.Classify(size)
	if class.Kind == Direct {
		return a.p.ReleaseDirect(base, class.Order)
	}
	var errs []error
	span := a.cls.ChapterPages()
	for k := range class.Chapters {
		if err := a.p.ReleaseDirect(base+k*span, class.Order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (a *Assembler) Stats() Stats {
	return Stats{
		Direct:           a.direct.Load(),
		Assemblies:       a.assemblies.Load(),
		Failures:         a.failures.Load(),
		Exhausted:        a.exhausted.Load(),
		ChaptersDrawn:    a.drawn.Load(),
		ChaptersReturned: a.returned.Load(),
		Merges:           a.merges.Load(),
		LastClusters:     int(a.lastClusters.Load()),
		LastAttempts:     int(a.lastAttempts.Load()),
	}
}

func (a *Assembler) record(set *cluster.Set, attempts int) {
	a.lastClusters.Store(int64(set.Len()))
	a.lastAttempts.Store(int64(attempts))
}

func asOOM(err error) error {
	if errors.Is(err, mem.ErrOutOfMemory) {
		return err
	}
	return fmt.Errorf("%w: %w", mem.ErrOutOfMemory, err)
}
