// Package buddy implements the chapter provider: a binary buddy page
// allocator over a single anonymous arena.
//
// Blocks of 1<<order pages are served for orders 0 through MaxOrder. The
// largest order is the chapter; callers needing more than one chapter must
// assemble adjacent chapters themselves (see mem/assemble).
//
// Free blocks are kept on per-order LIFO stacks. With Config.Shuffle the
// initial chapters are pushed in a seeded random order, so successive
// chapter-sized acquisitions come back scattered across the arena the way
// physical pages do on a long-running machine.
//
// Allocator is safe for concurrent use.
package buddy
