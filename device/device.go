// Package device owns at most one live large allocation and exposes it the
// way a character device would: allocate, describe, map, release.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/joshuapare/bigbuf/internal/format"
	"github.com/joshuapare/bigbuf/mem"
	"github.com/joshuapare/bigbuf/mem/assemble"
)

var (
	// ErrNotAllocated indicates an operation that needs a live allocation.
	ErrNotAllocated = fmt.Errorf("%w: device: nothing allocated", mem.ErrInvalidRequest)

	// ErrBadMapping indicates a map request outside the allocation or with
	// a misaligned offset.
	ErrBadMapping = fmt.Errorf("%w: device: bad mapping", mem.ErrInvalidRequest)

	// ErrNotAddressable indicates the provider's pages cannot be viewed from
	// this process.
	ErrNotAddressable = errors.New("device: provider pages are not addressable")

	// ErrClosed indicates the device was closed.
	ErrClosed = errors.New("device: closed")
)

// Policy decides what Allocate does when the slot is occupied.
type Policy uint8

const (
	// ReuseExisting returns the live allocation and ignores the new size.
	ReuseExisting Policy = iota
	// RejectExisting returns the live allocation with mem.ErrAlreadyAllocated.
	RejectExisting
)

func (p Policy) String() string {
	switch p {
	case ReuseExisting:
		return "reuse"
	case RejectExisting:
		return "reject"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy accepts the names printed by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "reuse", "":
		return ReuseExisting, nil
	case "reject":
		return RejectExisting, nil
	}
	return 0, fmt.Errorf("%w: unknown policy %q", mem.ErrInvalidRequest, s)
}

// Info describes the live allocation. Addr is in bytes.
type Info struct {
	Addr     uint64
	Size     uint64
	Capacity uint64
}

// Allocation is the single live record.
type Allocation struct {
	Size   uint64
	Region assemble.Region
}

// Options configures a Device.
type Options struct {
	Policy Policy
	Logger *slog.Logger // nil discards
}

// Device is a single-slot owner of one large allocation.
type Device struct {
	asm    *assemble.Assembler
	policy Policy
	log    *slog.Logger

	mu     sync.Mutex
	live   *Allocation
	closed bool
}

// New creates a Device serving allocations from asm.
func New(asm *assemble.Assembler, opts Options) *Device {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Device{asm: asm, policy: opts.Policy, log: log}
}

// PageSize returns the provider page size in bytes.
func (d *Device) PageSize() uint64 { return 1 << d.asm.Classifier().PageShift }

// Policy returns the occupied-slot policy.
func (d *Device) Policy() Policy { return d.policy }

// Allocate fills the slot with a region of at least size bytes. When the
// slot is occupied the result depends on the Policy.
func (d *Device) Allocate(ctx context.Context, size uint64) (Info, error) {
	if size == 0 {
		return Info{}, fmt.Errorf("%w: zero size", mem.ErrInvalidRequest)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Info{}, ErrClosed
	}
	if d.live != nil {
		info := d.info()
		if d.policy == RejectExisting {
			return info, fmt.Errorf("%w: %d bytes at 0x%x", mem.ErrAlreadyAllocated, info.Size, info.Addr)
		}
		if size != d.live.Size {
			d.log.Debug("reusing live allocation", "requested", size, "size", d.live.Size)
		}
		return info, nil
	}

	r, err := d.asm.Allocate(ctx, size)
	if err != nil {
		d.log.Warn("allocation failed", "size", size, "err", err)
		return Info{}, err
	}
	d.live = &Allocation{Size: size, Region: r}
	info := d.info()
	d.log.Info("allocated", "size", size, "addr", fmt.Sprintf("0x%x", info.Addr), "class", r.Class.Kind)
	return info, nil
}

// Describe returns the live allocation, or ErrNotAllocated with zeros.
func (d *Device) Describe() (Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live == nil {
		return Info{}, ErrNotAllocated
	}
	return d.info(), nil
}

// Allocation returns a copy of the live record.
func (d *Device) Allocation() (Allocation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live == nil {
		return Allocation{}, false
	}
	return *d.live, true
}

// Release frees the live allocation. Releasing an empty slot is a no-op.
// The slot is cleared even when the provider reports an error.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release()
}

// Map returns the allocation bytes [off, off+length). off must be page
// aligned and the range must lie within the requested size. The view stays
// valid only until the allocation is released; use ReadAt and WriteAt when
// another goroutine may release concurrently.
func (d *Device) Map(off, length uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapLocked(off, length)
}

// ReadAt copies len(p) bytes at off into p. off need not be page aligned.
// The copy runs under the device lock.
func (d *Device) ReadAt(p []byte, off uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.windowLocked(off, uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

// WriteAt copies p into the allocation at off. off need not be page
// aligned. The copy runs under the device lock.
func (d *Device) WriteAt(p []byte, off uint64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := d.windowLocked(off, uint64(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(buf, p), nil
}

func (d *Device) mapLocked(off, length uint64) ([]byte, error) {
	if d.live == nil {
		return nil, ErrNotAllocated
	}
	shift := d.asm.Classifier().PageShift
	if length == 0 || off&(1<<shift-1) != 0 || off+length < off || off+length > d.live.Size {
		return nil, fmt.Errorf("%w: [0x%x, +0x%x) of 0x%x", ErrBadMapping, off, length, d.live.Size)
	}
	v, ok := d.asm.Provider().(mem.Viewer)
	if !ok {
		return nil, ErrNotAddressable
	}
	first := off >> shift
	pages := format.CeilDiv(off+length, 1<<shift) - first
	buf, err := v.View(d.live.Region.Base+first, pages)
	if err != nil {
		return nil, err
	}
	return buf[:length:length], nil
}

// windowLocked maps the pages covering [off, off+n) and returns exactly
// that range.
func (d *Device) windowLocked(off, n uint64) ([]byte, error) {
	aligned := off &^ (d.PageSize() - 1)
	buf, err := d.mapLocked(aligned, off-aligned+n)
	if err != nil {
		return nil, err
	}
	return buf[off-aligned:], nil
}

// Close releases any live allocation and refuses further allocations.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.release()
}

func (d *Device) release() error {
	if d.live == nil {
		return nil
	}
	a := d.live
	d.live = nil
	err := d.asm.Release(a.Region)
	if err != nil {
		d.log.Error("release failed", "size", a.Size, "err", err)
		return err
	}
	d.log.Info("released", "size", a.Size)
	return nil
}

func (d *Device) info() Info {
	shift := d.asm.Classifier().PageShift
	return Info{
		Addr:     d.live.Region.Base << shift,
		Size:     d.live.Size,
		Capacity: d.live.Region.Capacity(),
	}
}
