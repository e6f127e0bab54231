// Package assemble builds address-contiguous regions larger than one
// chapter out of chapters whose addresses happen to be adjacent.
//
// # Overview
//
// A Classifier decides how a byte size is served:
//
//   - Direct: the covering power-of-two page block fits in one chapter and
//     is taken from the provider in a single call.
//   - Assembled: the size needs ceil(size/ChapterSize) chapters. The
//     Assembler keeps drawing chapters, feeding each into a cluster.Set,
//     until one cluster is long enough. That cluster is detached and every
//     other chapter drawn along the way goes back to the provider.
//
// The same Classifier must be used to release a region as to allocate it;
// releasing with a different classification corrupts the provider's
// bookkeeping.
//
// # Retry Policy
//
// Assembly only succeeds when the provider happens to hand out adjacent
// chapters, so the loop is bounded by a RetryPolicy (chapter draws and/or
// wall-clock budget). Hitting the bound fails with mem.ErrExhausted. The
// context is checked before every draw. Whatever the failure, every chapter
// drawn is returned before the error surfaces.
package assemble
