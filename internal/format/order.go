package format

import "math/bits"

// Order returns the smallest order such that (1<<order) pages of
// (1<<pageShift) bytes cover size. Zero and sub-page sizes map to order 0.
//
// Example (pageShift = 12):
//
//	Order(1, 12)    = 0
//	Order(4096, 12) = 0
//	Order(4097, 12) = 1
//	Order(16384, 12) = 2
func Order(size uint64, pageShift uint) uint {
	if size <= 1<<pageShift {
		return 0
	}
	pages := (size - 1) >> pageShift
	return uint(bits.Len64(pages))
}

// OrderBytes returns the byte size of a block of the given order.
func OrderBytes(order, pageShift uint) uint64 {
	return uint64(1) << (order + pageShift)
}

// OrderPages returns the number of pages in a block of the given order.
func OrderPages(order uint) uint64 {
	return uint64(1) << order
}
