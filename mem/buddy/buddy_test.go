package buddy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/bigbuf/mem"
)

// newTestAllocator creates a small arena: chapters of 4 pages (order 2).
func newTestAllocator(t testing.TB, cfg Config) *Allocator {
	t.Helper()
	if cfg.MaxOrder == 0 {
		cfg.MaxOrder = 2
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_BadConfig(t *testing.T) {
	_, err := New(Config{Chapters: 0})
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = New(Config{Chapters: 1, MaxOrder: 31})
	require.ErrorIs(t, err, ErrBadConfig)
}

func TestAcquireDirect_Unshuffled_AscendingChapters(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 4})

	for want := uint64(0); want < 16; want += 4 {
		pfn, err := a.AcquireDirect(2)
		require.NoError(t, err)
		assert.Equal(t, want, pfn)
	}

	_, err := a.AcquireDirect(2)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)

	stats := a.Stats()
	assert.Equal(t, uint64(0), stats.FreePages)
	assert.Equal(t, 4, stats.LiveBlocks)
	assert.Equal(t, uint64(1), stats.Failures)
}

func TestAcquireDirect_SplitsAndMergesBack(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 1})

	p0, err := a.AcquireDirect(0)
	require.NoError(t, err)
	p1, err := a.AcquireDirect(0)
	require.NoError(t, err)
	p2, err := a.AcquireDirect(1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), p0)
	assert.Equal(t, uint64(1), p1)
	assert.Equal(t, uint64(2), p2)
	assert.Equal(t, uint64(0), a.FreePages())

	require.NoError(t, a.ReleaseDirect(p1, 0))
	require.NoError(t, a.ReleaseDirect(p0, 0))
	require.NoError(t, a.ReleaseDirect(p2, 1))

	// Fully merged: one chapter available again.
	stats := a.Stats()
	assert.Equal(t, 1, stats.FreeChapters)
	assert.Equal(t, uint64(4), stats.FreePages)

	pfn, err := a.AcquireDirect(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pfn)
}

func TestReleaseDirect_Validates(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 2, Base: 0x100})

	pfn, err := a.AcquireDirect(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x100), pfn)

	require.ErrorIs(t, a.ReleaseDirect(pfn, 0), ErrBadRelease, "wrong order")
	require.ErrorIs(t, a.ReleaseDirect(pfn+2, 1), ErrBadRelease, "never allocated")
	require.ErrorIs(t, a.ReleaseDirect(0x10, 1), ErrOutOfRange, "below base")
	require.NoError(t, a.ReleaseDirect(pfn, 1))
	require.ErrorIs(t, a.ReleaseDirect(pfn, 1), ErrBadRelease, "double free")
}

func TestAcquireDirect_BadOrder(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 1})
	_, err := a.AcquireDirect(3)
	require.ErrorIs(t, err, ErrBadOrder)
}

func TestShuffle_IsDeterministicPerSeed(t *testing.T) {
	draw := func(seed int64) []uint64 {
		a := newTestAllocator(t, Config{Chapters: 16, Shuffle: true, Seed: seed})
		var out []uint64
		for range 16 {
			pfn, err := a.AcquireDirect(2)
			require.NoError(t, err)
			out = append(out, pfn)
		}
		return out
	}

	first := draw(7)
	assert.Equal(t, first, draw(7))
	assert.ElementsMatch(t, first, []uint64{0, 4, 8, 12, 16, 20, 24, 28, 32, 36, 40, 44, 48, 52, 56, 60})
}

func TestView(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 2, Base: 0x40})

	pfn, err := a.AcquireDirect(2)
	require.NoError(t, err)

	buf, err := a.View(pfn, 4)
	require.NoError(t, err)
	require.Len(t, buf, 4*4096)
	buf[0] = 0x5A

	again, err := a.View(pfn, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), again[0])

	_, err = a.View(pfn, 9)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = a.View(0, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

// TestRandomAcquireRelease_ConservesPages performs random traffic across all
// orders and checks that releasing everything restores every chapter.
func TestRandomAcquireRelease_ConservesPages(t *testing.T) {
	a := newTestAllocator(t, Config{Chapters: 8, Shuffle: true, Seed: 3})
	rng := rand.New(rand.NewSource(42))

	type block struct {
		pfn   uint64
		order uint
	}
	var live []block
	var used uint64

	for range 500 {
		if len(live) > 0 && rng.Intn(3) == 0 {
			i := rng.Intn(len(live))
			b := live[i]
			live = append(live[:i], live[i+1:]...)
			require.NoError(t, a.ReleaseDirect(b.pfn, b.order))
			used -= 1 << b.order
		} else {
			order := uint(rng.Intn(3))
			pfn, err := a.AcquireDirect(order)
			if err != nil {
				require.ErrorIs(t, err, mem.ErrOutOfMemory)
				continue
			}
			require.Zero(t, pfn%(1<<order), "block not aligned to its order")
			live = append(live, block{pfn, order})
			used += 1 << order
		}
		require.Equal(t, a.TotalPages()-used, a.FreePages())
	}

	for _, b := range live {
		require.NoError(t, a.ReleaseDirect(b.pfn, b.order))
	}
	stats := a.Stats()
	assert.Equal(t, 8, stats.FreeChapters)
	assert.Equal(t, 0, stats.LiveBlocks)
}
