// Package mem defines the vocabulary shared by the large-region allocator:
// page frame numbers, the chapter provider contract, and the error kinds
// every layer reports.
//
// # Overview
//
// A chapter is the largest block the underlying page allocator can hand out
// in one call. Regions larger than a chapter are built by drawing chapters
// until enough of them happen to be adjacent:
//
//	mem/buddy     - ChapterProvider: buddy page allocator over an mmap arena
//	mem/cluster   - ClusterSet: address-ordered runs of adjacent chapters
//	mem/assemble  - SizeClassifier + Assembler: routes and builds regions
//
// # Usage Example
//
//	p, err := buddy.New(buddy.Config{Chapters: 64})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	a, err := assemble.New(p)
//	if err != nil {
//	    return err
//	}
//
//	r, err := a.Allocate(ctx, 48<<20)
//	if err != nil {
//	    return err
//	}
//	defer a.Release(r)
//
// # Thread Safety
//
// Providers must be safe for concurrent use. Assemblers hold no shared
// mutable state beyond their statistics, which are updated atomically.
package mem
