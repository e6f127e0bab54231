package mem

import "errors"

var (
	// ErrOutOfMemory indicates the provider could not supply a block, or the
	// tracking structures could not grow. Fatal to an in-progress assembly.
	ErrOutOfMemory = errors.New("mem: out of memory")

	// ErrInvalidRequest indicates a zero or unreasonable size, or an operation
	// that needs a live allocation when there is none.
	ErrInvalidRequest = errors.New("mem: invalid request")

	// ErrAlreadyAllocated indicates a live allocation already occupies the slot.
	ErrAlreadyAllocated = errors.New("mem: already allocated")

	// ErrExhausted indicates the assembly retry bound was reached before a
	// large enough contiguous run formed.
	ErrExhausted = errors.New("mem: assembly attempts exhausted")
)
