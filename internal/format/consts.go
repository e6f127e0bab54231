// Package format holds the page and chapter arithmetic shared by the memory
// packages.
package format

const (
	// PageShift is log2 of the base page size used by the arenas.
	PageShift = 12

	// PageSize is the base page size in bytes (4 KiB).
	PageSize = 1 << PageShift

	// DefaultMaxOrder is the largest order a buddy arena serves in one call
	// unless configured otherwise. Order 10 gives 4 MiB chapters with 4 KiB
	// pages, the same as a stock Linux MAX_ORDER-1.
	DefaultMaxOrder = 10

	// MaxSupportedOrder bounds configurable orders so shifts stay in range.
	MaxSupportedOrder = 30
)
