package cluster

import (
	"math/rand"
	"testing"
)

// BenchmarkInsert_Shuffled measures inserting 4096 chapters in random order
// and draining them.
func BenchmarkInsert_Shuffled(b *testing.B) {
	const n = 4096
	starts := make([]uint64, n)
	for i := range starts {
		starts[i] = uint64(i) * 1024
	}
	rand.New(rand.NewSource(1)).Shuffle(n, func(i, j int) { starts[i], starts[j] = starts[j], starts[i] })

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		s := NewSet(1024)
		for _, st := range starts {
			if _, err := s.Insert(st); err != nil {
				b.Fatal(err)
			}
		}
		s.Drain(func(uint64) {})
	}
}

// BenchmarkInsert_Sparse measures the worst case for the index: every chapter
// starts its own cluster.
func BenchmarkInsert_Sparse(b *testing.B) {
	const n = 4096
	b.ReportAllocs()

	for range b.N {
		s := NewSet(1)
		for i := range n {
			if _, err := s.Insert(uint64(n-i) * 2); err != nil {
				b.Fatal(err)
			}
		}
	}
}
