//go:build unix

package arena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func mapRegion(size int, opts Options) (*Region, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	r := &Region{data: data, unmap: unmapRegion}
	if opts.Lock {
		if err := unix.Mlock(data); err != nil {
			_ = unix.Munmap(data)
			return nil, fmt.Errorf("arena: mlock %d bytes: %w", size, err)
		}
		r.locked = true
	}
	return r, nil
}

func unmapRegion(data []byte) error {
	err := unix.Munmap(data)
	if errors.Is(err, unix.EINVAL) {
		// Already unmapped.
		return nil
	}
	if err != nil {
		return fmt.Errorf("arena: munmap: %w", err)
	}
	return nil
}
