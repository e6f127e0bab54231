package cluster

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	"github.com/joshuapare/bigbuf/mem"
)

// ErrOverlap indicates an inserted chapter overlaps a tracked cluster, which
// means the provider handed out the same memory twice.
var ErrOverlap = errors.New("cluster: chapter overlaps tracked cluster")

// Cluster is one maximal run of adjacent chapters.
type Cluster struct {
	Start  uint64 // first address, in the provider's address units
	Length int    // chapters, always >= 1
}

// End returns the first address past the cluster.
func (c Cluster) End(span uint64) uint64 {
	return c.Start + uint64(c.Length)*span
}

// ID identifies a tracked cluster. It stays valid while the cluster grows
// and becomes invalid once the cluster is removed, absorbed or drained.
type ID int32

// Stats counts how insertions were resolved.
type Stats struct {
	Prepends int // chapter joined the front of a cluster
	Appends  int // chapter joined the back of a cluster
	Absorbs  int // prepend bridged the gap and swallowed the predecessor
	Creates  int // chapter started a new cluster
}

type record struct {
	Cluster
	live bool
}

// Option configures a Set.
type Option func(*Set)

// WithLimit caps the number of clusters the set may track at once. A
// chapter that would need a new cluster beyond the cap fails with
// mem.ErrOutOfMemory. Zero means no cap.
func WithLimit(n int) Option {
	return func(s *Set) { s.limit = n }
}

// Set is an address-ordered collection of pairwise non-adjacent clusters.
type Set struct {
	span  uint64
	limit int

	slots     []record
	freeSlots []ID
	order     []ID // ascending by Start

	chapters int
	stats    Stats
}

// NewSet creates an empty set for chapters spanning span address units.
func NewSet(span uint64, opts ...Option) *Set {
	if span == 0 {
		panic("cluster: zero chapter span")
	}
	s := &Set{span: span}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Span returns the chapter length in address units.
func (s *Set) Span() uint64 { return s.span }

// Len returns the number of tracked clusters.
func (s *Set) Len() int { return len(s.order) }

// Chapters returns the total number of chapters across all clusters.
func (s *Set) Chapters() int { return s.chapters }

// Stats returns insertion counters.
func (s *Set) Stats() Stats { return s.stats }

// Get returns the cluster for id.
func (s *Set) Get(id ID) (Cluster, bool) {
	if id < 0 || int(id) >= len(s.slots) || !s.slots[id].live {
		return Cluster{}, false
	}
	return s.slots[id].Cluster, true
}

// Insert folds the chapter starting at start into the set and returns the
// cluster it joined or created.
//
// Resolution order:
//  1. prepend onto the cluster at the insertion point, then absorb the
//     predecessor if the two now touch
//  2. append onto the predecessor
//  3. create a singleton cluster
//
// On error the set is unchanged.
func (s *Set) Insert(start uint64) (ID, error) {
	i := sort.Search(len(s.order), func(k int) bool {
		return s.slots[s.order[k]].Start > start
	})

	var prev, next *record
	if i > 0 {
		prev = &s.slots[s.order[i-1]]
	}
	if i < len(s.order) {
		next = &s.slots[s.order[i]]
	}
	if (prev != nil && prev.End(s.span) > start) || (next != nil && start+s.span > next.Start) {
		return 0, fmt.Errorf("%w: 0x%x", ErrOverlap, start)
	}

	if next != nil && start+s.span == next.Start {
		next.Start = start
		next.Length++
		s.chapters++
		s.stats.Prepends++
		id := s.order[i]
		if prev != nil && prev.End(s.span) == next.Start {
			next.Start = prev.Start
			next.Length += prev.Length
			s.releaseSlot(s.order[i-1])
			s.order = slices.Delete(s.order, i-1, i)
			s.stats.Absorbs++
		}
		return id, nil
	}

	if prev != nil && prev.End(s.span) == start {
		prev.Length++
		s.chapters++
		s.stats.Appends++
		return s.order[i-1], nil
	}

	if s.limit > 0 && len(s.order) >= s.limit {
		return 0, fmt.Errorf("%w: cluster limit %d reached", mem.ErrOutOfMemory, s.limit)
	}
	id := s.allocSlot(Cluster{Start: start, Length: 1})
	s.order = slices.Insert(s.order, i, id)
	s.chapters++
	s.stats.Creates++
	return id, nil
}

// Remove detaches a cluster without releasing its chapters. The caller
// becomes responsible for them.
func (s *Set) Remove(id ID) (Cluster, bool) {
	c, ok := s.Get(id)
	if !ok {
		return Cluster{}, false
	}
	i := sort.Search(len(s.order), func(k int) bool {
		return s.slots[s.order[k]].Start >= c.Start
	})
	s.order = slices.Delete(s.order, i, i+1)
	s.releaseSlot(id)
	s.chapters -= c.Length
	return c, true
}

// Drain calls release once per tracked chapter, in ascending address order,
// and empties the set. It returns the number of chapters released. Draining
// an empty set does nothing.
func (s *Set) Drain(release func(start uint64)) int {
	n := 0
	for _, id := range s.order {
		c := s.slots[id].Cluster
		for k := range c.Length {
			release(c.Start + uint64(k)*s.span)
			n++
		}
	}
	s.slots = s.slots[:0]
	s.freeSlots = s.freeSlots[:0]
	s.order = s.order[:0]
	s.chapters = 0
	return n
}

// All yields a snapshot of every cluster in ascending address order. The
// sequence can be ranged over repeatedly; each pass reflects the set at the
// time the pass starts.
func (s *Set) All() iter.Seq[Cluster] {
	return func(yield func(Cluster) bool) {
		for _, c := range s.Snapshot() {
			if !yield(c) {
				return
			}
		}
	}
}

// Snapshot returns a copy of every cluster in ascending address order.
func (s *Set) Snapshot() []Cluster {
	out := make([]Cluster, len(s.order))
	for k, id := range s.order {
		out[k] = s.slots[id].Cluster
	}
	return out
}

// String lists the clusters, one per line.
func (s *Set) String() string {
	var b strings.Builder
	for _, c := range s.Snapshot() {
		fmt.Fprintf(&b, "cluster 0x%x..0x%x (%d chapters)\n", c.Start, c.End(s.span), c.Length)
	}
	return b.String()
}

func (s *Set) allocSlot(c Cluster) ID {
	if n := len(s.freeSlots); n > 0 {
		id := s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
		s.slots[id] = record{Cluster: c, live: true}
		return id
	}
	s.slots = append(s.slots, record{Cluster: c, live: true})
	return ID(len(s.slots) - 1)
}

func (s *Set) releaseSlot(id ID) {
	s.slots[id] = record{}
	s.freeSlots = append(s.freeSlots, id)
}
