package buddy

import "errors"

var (
	// ErrBadConfig indicates an unusable arena configuration.
	ErrBadConfig = errors.New("buddy: bad config")

	// ErrBadOrder indicates an order above the allocator's MaxOrder.
	ErrBadOrder = errors.New("buddy: order out of range")

	// ErrBadRelease indicates a release of a block that is not live at that order.
	ErrBadRelease = errors.New("buddy: release of block not allocated at this order")

	// ErrOutOfRange indicates a frame range outside the arena.
	ErrOutOfRange = errors.New("buddy: frame range outside arena")
)
