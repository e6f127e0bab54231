package assemble

import (
	"github.com/joshuapare/bigbuf/internal/format"
	"github.com/joshuapare/bigbuf/mem"
)

// Kind says which path serves a request.
type Kind uint8

const (
	// Direct requests are served by one provider call.
	Direct Kind = iota
	// Assembled requests are built from adjacent chapters.
	Assembled
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Assembled:
		return "assembled"
	default:
		return "unknown"
	}
}

// Class is the classification of one size.
type Class struct {
	Kind     Kind
	Order    uint   // block order; the chapter order for Assembled
	Chapters uint64 // chapters needed; zero for Direct
}

// Classifier converts between byte sizes, orders and chapter counts.
type Classifier struct {
	PageShift    uint
	ChapterOrder uint
}

// NewClassifier derives the chapter geometry from a provider.
func NewClassifier(p mem.Provider) Classifier {
	return Classifier{PageShift: p.PageShift(), ChapterOrder: p.MaxOrder()}
}

// ChapterPages returns pages per chapter.
func (c Classifier) ChapterPages() uint64 {
	return format.OrderPages(c.ChapterOrder)
}

// ChapterSize returns bytes per chapter.
func (c Classifier) ChapterSize() uint64 {
	return format.OrderBytes(c.ChapterOrder, c.PageShift)
}

// Chapters returns ceil(size / ChapterSize).
func (c Classifier) Chapters(size uint64) uint64 {
	return format.CeilDiv(size, c.ChapterSize())
}

// Classify routes size. A zero size classifies as a direct order-0 block.
func (c Classifier) Classify(size uint64) Class {
	order := format.Order(size, c.PageShift)
	if order <= c.ChapterOrder {
		return Class{Kind: Direct, Order: order}
	}
	return Class{Kind: Assembled, Order: c.ChapterOrder, Chapters: c.Chapters(size)}
}

// Pages returns the number of pages a class occupies.
func (c Classifier) Pages(cl Class) uint64 {
	if cl.Kind == Direct {
		return format.OrderPages(cl.Order)
	}
	return cl.Chapters * c.ChapterPages()
}

// Bytes returns the capacity of a class in bytes.
func (c Classifier) Bytes(cl Class) uint64 {
	return c.Pages(cl) << c.PageShift
}
