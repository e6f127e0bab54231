package assemble

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/bigbuf/mem"
	"github.com/joshuapare/bigbuf/mem/buddy"
)

// scriptedProvider hands out chapters in a fixed order. Chapters are 4 pages
// (order 2), so adjacent chapters differ by 4.
type scriptedProvider struct {
	script   []uint64
	failAt   int // 1-based AcquireDirect call that fails; 0 never
	onAcq    func(call int)
	calls    int
	live     map[uint64]uint
	released []uint64
}

func newScripted(script ...uint64) *scriptedProvider {
	return &scriptedProvider{script: script, live: make(map[uint64]uint)}
}

func (p *scriptedProvider) MaxOrder() uint  { return 2 }
func (p *scriptedProvider) PageShift() uint { return 12 }

func (p *scriptedProvider) AcquireDirect(order uint) (mem.PFN, error) {
	p.calls++
	if p.onAcq != nil {
		p.onAcq(p.calls)
	}
	if p.calls == p.failAt || len(p.script) == 0 {
		return 0, mem.ErrOutOfMemory
	}
	pfn := p.script[0]
	p.script = p.script[1:]
	p.live[pfn] = order
	return pfn, nil
}

func (p *scriptedProvider) ReleaseDirect(pfn mem.PFN, order uint) error {
	got, ok := p.live[pfn]
	if !ok || got != order {
		return errors.New("scripted: bad release")
	}
	delete(p.live, pfn)
	p.released = append(p.released, pfn)
	return nil
}

func newAssembler(t *testing.T, p mem.Provider, opts ...Option) *Assembler {
	t.Helper()
	a, err := New(p, opts...)
	require.NoError(t, err)
	return a
}

// TestAssemble_AppendWins: 12 creates, 0 creates, 4 appends onto 0 and the
// two-chapter run wins; 12 goes back.
func TestAssemble_AppendWins(t *testing.T) {
	p := newScripted(12, 0, 4)
	a := newAssembler(t, p)

	r, err := a.Assemble(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), r.Base)
	assert.Equal(t, uint64(2*16384), r.Capacity())
	assert.Equal(t, Class{Kind: Assembled, Order: 2, Chapters: 2}, r.Class)
	assert.Equal(t, []uint64{12}, p.released)
	assert.Equal(t, map[uint64]uint{0: 2, 4: 2}, p.live)

	require.NoError(t, a.Release(r))
	assert.Empty(t, p.live)

	stats := a.Stats()
	assert.Equal(t, uint64(3), stats.ChaptersDrawn)
	assert.Equal(t, uint64(1), stats.ChaptersReturned)
	assert.Equal(t, 3, stats.LastAttempts)
	assert.Equal(t, 2, stats.LastClusters)
}

func TestAssemble_ProviderFailureDrainsEverything(t *testing.T) {
	p := newScripted(0, 8, 16)
	p.failAt = 3
	a := newAssembler(t, p)

	_, err := a.Assemble(context.Background(), 3)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
	assert.ElementsMatch(t, []uint64{0, 8}, p.released)
	assert.Empty(t, p.live)
	assert.Equal(t, uint64(1), a.Stats().Failures)
}

func TestAssemble_AttemptBoundExhausts(t *testing.T) {
	p := newScripted(0, 8, 16, 24, 32)
	a := newAssembler(t, p, WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))

	_, err := a.Assemble(context.Background(), 2)
	require.ErrorIs(t, err, mem.ErrExhausted)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []uint64{0, 8, 16}, p.released)
	assert.Empty(t, p.live)
	assert.Equal(t, uint64(1), a.Stats().Exhausted)
}

func TestAssemble_BudgetExhausts(t *testing.T) {
	p := newScripted(0, 8, 16, 24, 32)
	base := time.Unix(0, 0)
	ticks := 0
	clock := func() time.Time {
		now := base.Add(time.Duration(ticks) * time.Second)
		ticks++
		return now
	}
	a := newAssembler(t, p,
		WithRetryPolicy(RetryPolicy{Budget: 2500 * time.Millisecond}),
		withClock(clock))

	_, err := a.Assemble(context.Background(), 2)
	require.ErrorIs(t, err, mem.ErrExhausted)
	assert.Equal(t, 2, p.calls)
	assert.Empty(t, p.live)
}

func TestAssemble_CancelDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newScripted(0, 8, 16, 24)
	p.onAcq = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	a := newAssembler(t, p)

	_, err := a.Assemble(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, p.calls)
	assert.Empty(t, p.live)
}

// TestAssemble_TrimsOversizedRun: 0 and 8 are separate until 4 bridges them
// into a three-chapter run; the third chapter goes back.
func TestAssemble_TrimsOversizedRun(t *testing.T) {
	p := newScripted(0, 8, 4)
	a := newAssembler(t, p)

	r, err := a.Assemble(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.Base)
	assert.Equal(t, []uint64{8}, p.released)
	assert.Equal(t, map[uint64]uint{0: 2, 4: 2}, p.live)
	assert.Equal(t, uint64(1), a.Stats().Merges)

	require.NoError(t, a.Release(r))
	assert.Empty(t, p.live)
}

func TestAssemble_ClusterLimit(t *testing.T) {
	p := newScripted(0, 8, 4)
	a := newAssembler(t, p, WithClusterLimit(1))

	_, err := a.Assemble(context.Background(), 2)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
	assert.ElementsMatch(t, []uint64{0, 8}, p.released)
	assert.Empty(t, p.live)
}

func TestAssemble_LogsClusterList(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := newAssembler(t, newScripted(12, 0, 4), WithLogger(log))

	_, err := a.Assemble(context.Background(), 2)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "chapter drawn")
	assert.Contains(t, buf.String(), "cluster 0xc..0x10 (1 chapters)")
}

func TestAllocate_InvalidRequests(t *testing.T) {
	a := newAssembler(t, newScripted())

	_, err := a.Allocate(context.Background(), 0)
	require.ErrorIs(t, err, mem.ErrInvalidRequest)
	_, err = a.Assemble(context.Background(), 0)
	require.ErrorIs(t, err, mem.ErrInvalidRequest)
	require.ErrorIs(t, a.Free(0, 0), mem.ErrInvalidRequest)

	_, err = New(nil)
	require.ErrorIs(t, err, mem.ErrInvalidRequest)
	_, err = New(newScripted(), WithRetryPolicy(RetryPolicy{MaxAttempts: -1}))
	require.ErrorIs(t, err, mem.ErrInvalidRequest)
}

func TestAllocate_DirectFailureIsOutOfMemory(t *testing.T) {
	a := newAssembler(t, newScripted())
	_, err := a.Allocate(context.Background(), 4096)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func newBuddy(t *testing.T, cfg buddy.Config) *buddy.Allocator {
	t.Helper()
	b, err := buddy.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// TestAllocate_RoundTripRestoresProvider allocates every class against the
// buddy provider and checks that release restores every page.
func TestAllocate_RoundTripRestoresProvider(t *testing.T) {
	b := newBuddy(t, buddy.Config{Chapters: 16, MaxOrder: 2, Shuffle: true, Seed: 11})
	a := newAssembler(t, b)
	total := b.TotalPages()

	sizes := []uint64{1, 4096, 5000, 16384, 16385, 3 * 16384, 5*16384 - 7, 16 * 16384}
	for _, size := range sizes {
		r, err := a.Allocate(context.Background(), size)
		require.NoError(t, err, "size %d", size)
		require.GreaterOrEqual(t, r.Capacity(), size)
		require.Equal(t, size, r.Size)

		pages := a.Classifier().Pages(r.Class)
		require.Equal(t, total-pages, b.FreePages(), "size %d", size)

		view, err := b.View(r.Base, pages)
		require.NoError(t, err)
		view[len(view)-1] = 1

		require.NoError(t, a.Release(r))
		require.Equal(t, total, b.FreePages(), "size %d leaked", size)
	}
	stats := b.Stats()
	assert.Equal(t, 16, stats.FreeChapters)
	assert.Equal(t, 0, stats.LiveBlocks)
}

func TestAllocate_LargerThanProvider(t *testing.T) {
	b := newBuddy(t, buddy.Config{Chapters: 4, MaxOrder: 2})
	a := newAssembler(t, b)

	_, err := a.Allocate(context.Background(), 4*16384+1)
	require.ErrorIs(t, err, mem.ErrInvalidRequest)
	assert.Equal(t, b.TotalPages(), b.FreePages())
}

func TestFree_AttemptsEveryChapter(t *testing.T) {
	p := newScripted(0, 4, 8)
	a := newAssembler(t, p)

	r, err := a.Assemble(context.Background(), 3)
	require.NoError(t, err)
	delete(p.live, 4) // simulate a chapter the provider no longer tracks

	err = a.Free(r.Base, 3*16384)
	require.Error(t, err)
	assert.ElementsMatch(t, []uint64{0, 8}, p.released)
}
