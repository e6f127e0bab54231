package buddy

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/joshuapare/bigbuf/internal/arena"
	"github.com/joshuapare/bigbuf/internal/format"
	"github.com/joshuapare/bigbuf/mem"
)

// Config describes the arena an Allocator manages.
type Config struct {
	// Chapters is the arena size in chapters (blocks of 1<<MaxOrder pages).
	// Required.
	Chapters int

	// MaxOrder is the chapter order. Zero selects format.DefaultMaxOrder.
	MaxOrder uint

	// Base is the frame number reported for the first page of the arena.
	// Frame numbers are opaque to callers; a non-zero base keeps a live
	// region from ever reporting address 0.
	Base mem.PFN

	// Shuffle seeds the chapter free list in a random order derived from Seed.
	Shuffle bool
	Seed    int64

	// Lock pins the arena in RAM.
	Lock bool
}

// Stats is a snapshot of allocator counters.
type Stats struct {
	TotalPages   uint64 `json:"total_pages"`
	FreePages    uint64 `json:"free_pages"`
	LiveBlocks   int    `json:"live_blocks"`
	Acquires     uint64 `json:"acquires"`
	Releases     uint64 `json:"releases"`
	Failures     uint64 `json:"failures"`
	Splits       uint64 `json:"splits"`
	Merges       uint64 `json:"merges"`
	FreeChapters int    `json:"free_chapters"`
}

// Allocator is a buddy allocator over one arena.
type Allocator struct {
	mu sync.Mutex

	region   *arena.Region
	maxOrder uint
	base     mem.PFN
	pages    uint64

	// free[o] holds indexes (page offsets from the arena start) of free
	// blocks of order o.
	free []freeList

	// live maps the index of every outstanding block to its order.
	live map[uint64]uint

	stats Stats
}

var _ mem.Provider = (*Allocator)(nil)
var _ mem.Sizer = (*Allocator)(nil)
var _ mem.Viewer = (*Allocator)(nil)

// New maps the arena and seeds the free lists with every chapter.
func New(cfg Config) (*Allocator, error) {
	if cfg.Chapters <= 0 {
		return nil, fmt.Errorf("%w: chapters must be positive, got %d", ErrBadConfig, cfg.Chapters)
	}
	maxOrder := cfg.MaxOrder
	if maxOrder == 0 {
		maxOrder = format.DefaultMaxOrder
	}
	if maxOrder > format.MaxSupportedOrder {
		return nil, fmt.Errorf("%w: max order %d above %d", ErrBadConfig, maxOrder, format.MaxSupportedOrder)
	}

	chapterPages := format.OrderPages(maxOrder)
	pages := uint64(cfg.Chapters) * chapterPages
	region, err := arena.New(int(pages<<format.PageShift), format.PageSize, arena.Options{Lock: cfg.Lock})
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		region:   region,
		maxOrder: maxOrder,
		base:     cfg.Base,
		pages:    pages,
		free:     make([]freeList, maxOrder+1),
		live:     make(map[uint64]uint),
	}
	for o := range a.free {
		a.free[o] = newFreeList()
	}

	order := make([]uint64, cfg.Chapters)
	for i := range order {
		// Pushed in reverse so the unshuffled allocator pops ascending addresses.
		order[i] = uint64(cfg.Chapters-1-i) * chapterPages
	}
	if cfg.Shuffle {
		rng := rand.New(rand.NewSource(cfg.Seed))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	for _, idx := range order {
		a.free[maxOrder].push(idx)
	}
	a.stats.TotalPages = pages
	a.stats.FreePages = pages

	return a, nil
}

// MaxOrder returns the chapter order.
func (a *Allocator) MaxOrder() uint { return a.maxOrder }

// PageShift returns log2 of the page size.
func (a *Allocator) PageShift() uint { return format.PageShift }

// TotalPages returns the arena size in pages.
func (a *Allocator) TotalPages() uint64 { return a.pages }

// AcquireDirect takes the smallest free block of at least the given order,
// splitting it down as needed.
func (a *Allocator) AcquireDirect(order uint) (mem.PFN, error) {
	if order > a.maxOrder {
		return 0, fmt.Errorf("%w: %d > %d", ErrBadOrder, order, a.maxOrder)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	o := order
	for o <= a.maxOrder && a.free[o].len() == 0 {
		o++
	}
	if o > a.maxOrder {
		a.stats.Failures++
		return 0, mem.ErrOutOfMemory
	}

	idx, _ := a.free[o].pop()
	for o > order {
		o--
		a.free[o].push(idx + format.OrderPages(o))
		a.stats.Splits++
	}

	a.live[idx] = order
	a.stats.Acquires++
	a.stats.FreePages -= format.OrderPages(order)
	return a.base + idx, nil
}

// ReleaseDirect frees a block and merges it with its buddy for as long as
// the buddy is free.
func (a *Allocator) ReleaseDirect(pfn mem.PFN, order uint) error {
	if pfn < a.base {
		return fmt.Errorf("%w: frame 0x%x below base 0x%x", ErrOutOfRange, pfn, a.base)
	}
	idx := pfn - a.base

	a.mu.Lock()
	defer a.mu.Unlock()

	got, ok := a.live[idx]
	if !ok || got != order {
		return fmt.Errorf("%w: frame 0x%x order %d", ErrBadRelease, pfn, order)
	}
	delete(a.live, idx)
	a.stats.Releases++
	a.stats.FreePages += format.OrderPages(order)

	o := order
	for o < a.maxOrder {
		buddy := idx ^ format.OrderPages(o)
		if !a.free[o].remove(buddy) {
			break
		}
		idx = min(idx, buddy)
		o++
		a.stats.Merges++
	}
	a.free[o].push(idx)
	return nil
}

// View returns the bytes backing pages [pfn, pfn+pages).
func (a *Allocator) View(pfn mem.PFN, pages uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := a.region.Bytes()
	if data == nil {
		return nil, arena.ErrClosed
	}
	if pfn < a.base || pages == 0 || pfn-a.base+pages > a.pages || pfn-a.base+pages < pages {
		return nil, fmt.Errorf("%w: frames [0x%x, +%d)", ErrOutOfRange, pfn, pages)
	}
	start := (pfn - a.base) << format.PageShift
	end := start + pages<<format.PageShift
	return data[start:end:end], nil
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.LiveBlocks = len(a.live)
	s.FreeChapters = a.free[a.maxOrder].len()
	return s
}

// FreePages returns the number of pages not held by live blocks.
func (a *Allocator) FreePages() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats.FreePages
}

// Close unmaps the arena. Outstanding blocks become invalid.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.region.Close()
}
