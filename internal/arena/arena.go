// Package arena provides the raw backing memory for page allocators: one
// anonymous, page-aligned region obtained from the operating system.
package arena

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when operating on a released region.
var ErrClosed = errors.New("arena: region closed")

// Region is a single anonymous mapping.
type Region struct {
	data   []byte
	locked bool
	unmap  func([]byte) error
}

// Options controls how a Region is obtained.
type Options struct {
	// Lock pins the region in RAM (mlock). Unsupported platforms ignore it.
	Lock bool
}

// New maps size bytes of zeroed memory. size must be a positive multiple of
// pageSize.
func New(size, pageSize int, opts Options) (*Region, error) {
	if size <= 0 || pageSize <= 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("arena: size %d is not a positive multiple of page size %d", size, pageSize)
	}
	return mapRegion(size, opts)
}

// Bytes returns the full mapping. It is nil after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the mapping size in bytes.
func (r *Region) Len() int {
	return len(r.data)
}

// Locked reports whether the region was pinned with mlock.
func (r *Region) Locked() bool {
	return r.locked
}

// Close releases the mapping. Calling Close twice is a no-op.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if r.unmap == nil {
		return nil
	}
	return r.unmap(data)
}
