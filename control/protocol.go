// Package control carries device operations over a stream socket.
//
// Every message is one CBOR array. A client writes a Request and reads back
// exactly one Response; connections carry any number of such exchanges.
package control

import (
	"errors"
	"fmt"

	"github.com/joshuapare/bigbuf/device"
	"github.com/joshuapare/bigbuf/mem"
)

// Op selects the device operation.
type Op uint8

const (
	OpAlloc   Op = iota + 1 // Size
	OpAddr                  // no arguments
	OpRelease               // no arguments
	OpRead                  // Off, Len
	OpWrite                 // Off, Data
)

func (o Op) String() string {
	switch o {
	case OpAlloc:
		return "alloc"
	case OpAddr:
		return "addr"
	case OpRelease:
		return "release"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Status is the outcome of a request.
type Status uint8

const (
	StatusOK Status = iota
	StatusInvalid
	StatusNotAllocated
	StatusOutOfMemory
	StatusAlreadyAllocated
	StatusExhausted
	StatusInternal
)

// Request is one client message.
type Request struct {
	_    struct{} `cbor:",toarray"`
	Op   Op
	Size uint64
	Off  uint64
	Len  uint64
	Data []byte
}

// Response is one server message. Info fields are filled whenever the
// device has a live allocation to report, including alongside
// StatusAlreadyAllocated.
type Response struct {
	_        struct{} `cbor:",toarray"`
	Status   Status
	Message  string
	Addr     uint64
	Size     uint64
	Capacity uint64
	Data     []byte
}

// Info returns the allocation fields of r.
func (r *Response) Info() device.Info {
	return device.Info{Addr: r.Addr, Size: r.Size, Capacity: r.Capacity}
}

func (r *Response) setInfo(info device.Info) {
	r.Addr, r.Size, r.Capacity = info.Addr, info.Size, info.Capacity
}

// ErrInternal is returned for server failures outside the mem error kinds.
var ErrInternal = errors.New("control: internal error")

// statusOf maps an error to its wire status.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, device.ErrNotAllocated):
		return StatusNotAllocated
	case errors.Is(err, mem.ErrInvalidRequest):
		return StatusInvalid
	case errors.Is(err, mem.ErrOutOfMemory):
		return StatusOutOfMemory
	case errors.Is(err, mem.ErrAlreadyAllocated):
		return StatusAlreadyAllocated
	case errors.Is(err, mem.ErrExhausted):
		return StatusExhausted
	default:
		return StatusInternal
	}
}

// Err converts a response status back into an error that matches the same
// sentinels the server saw.
func (r *Response) Err() error {
	var kind error
	switch r.Status {
	case StatusOK:
		return nil
	case StatusInvalid:
		kind = mem.ErrInvalidRequest
	case StatusNotAllocated:
		return device.ErrNotAllocated
	case StatusOutOfMemory:
		kind = mem.ErrOutOfMemory
	case StatusAlreadyAllocated:
		kind = mem.ErrAlreadyAllocated
	case StatusExhausted:
		kind = mem.ErrExhausted
	default:
		kind = ErrInternal
	}
	return fmt.Errorf("%w (remote: %s)", kind, r.Message)
}
