package mem

// PFN is a page frame number: an address expressed in pages of the
// provider's page size.
type PFN = uint64

// Provider is the chapter provider: a page allocator that can only
// guarantee contiguity within one block of at most MaxOrder().
//
// Successive AcquireDirect results carry no ordering or adjacency
// guarantee.
type Provider interface {
	// AcquireDirect returns the first frame of a free block of 1<<order
	// pages, or ErrOutOfMemory.
	AcquireDirect(order uint) (PFN, error)

	// ReleaseDirect returns a block obtained from AcquireDirect with the
	// same order.
	ReleaseDirect(pfn PFN, order uint) error

	// MaxOrder is the largest order served by one AcquireDirect call.
	// It defines the chapter size.
	MaxOrder() uint

	// PageShift is log2 of the page size in bytes.
	PageShift() uint
}

// Sizer is implemented by providers that know their total capacity.
type Sizer interface {
	TotalPages() uint64
}

// Viewer is implemented by providers whose pages are addressable from this
// process.
type Viewer interface {
	// View returns the bytes of pages [pfn, pfn+pages).
	View(pfn PFN, pages uint64) ([]byte, error)
}
