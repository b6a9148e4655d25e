// Package docstore is the boundary to the page-based document codec.
//
// The resize pipeline only needs to open a document, inspect and rewrite the
// bounding box of each page, scale page content and serialize the result.
// PDFCPU implements this on top of github.com/pdfcpu/pdfcpu.
package docstore

import (
	"io"
)

// Box is a page bounding box given by its lower-left and upper-right corners.
type Box struct {
	LLX, LLY float64
	URX, URY float64
}

// Width of the box.
func (b Box) Width() float64 { return b.URX - b.LLX }

// Height of the box.
func (b Box) Height() float64 { return b.URY - b.LLY }

// Store opens documents.
type Store interface {
	Open(path string) (Document, error)
}

// Document is an opened, in-memory document. Page indices are zero-based.
// A Document is not safe for concurrent use; each worker opens its own.
type Document interface {
	PageCount() int
	PageBox(index int) (Box, error)
	// ScalePage applies (sx, sy) to the page's content coordinate system,
	// anchored at the lower-left corner of the current box.
	ScalePage(index int, sx, sy float64) error
	SetPageBox(index int, box Box) error
	Write(w io.Writer) error
}
