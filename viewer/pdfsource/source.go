// Package pdfsource abstracts PDF document access and page rasterization so
// the viewer never talks to a PDF engine directly. Two production backends are
// provided: go-pdfium over WebAssembly (pure Go, no CGo) and go-fitz (CGo and
// MuPDF). Tests use the deterministic static source.
package pdfsource

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
)

var Logger *slog.Logger

// ErrPasswordRequired is returned by Open when the document is encrypted and
// no password, or a wrong one, was supplied. Callers prompt and retry.
var ErrPasswordRequired = errors.New("document requires a password")

// Document is an open PDF. Implementations own the engine resources and
// release them on Close. Page numbers are 1-based throughout.
type Document interface {
	NumPages() int
	Page(number int) (Page, error)
	Close() error
}

// Page rasterizes one page of a document
type Page interface {
	Number() int

	// Size returns the page dimensions in CSS pixels at scale 1.0
	Size() (width, height float64)

	// Render rasterizes the page for the given viewport. The context carries
	// cooperative cancellation; a render abandoned mid-flight returns the
	// context error.
	Render(ctx context.Context, viewport Viewport) (image.Image, error)
}

// Viewport describes the target raster. Width and height are the scaled page
// dimensions in CSS pixels; Scale is relative to the page's natural size.
type Viewport struct {
	Scale  float64 `json:"scale"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OpenOptions carries optional parameters for opening a document
type OpenOptions struct {
	// Password for encrypted documents. Empty means none supplied.
	Password string

	// Progress, when set, receives byte counts while the file is read.
	// total is -1 when the size is unknown.
	Progress func(done, total int64)
}

// Open opens a PDF with the named backend ("pdfium" or "fitz"). An empty
// backend selects pdfium, which needs no CGo.
func Open(path string, backend string, opts OpenOptions) (Document, error) {
	switch strings.ToLower(backend) {
	case "", "pdfium":
		return OpenPDFium(path, opts)
	case "fitz", "mupdf":
		return OpenFitz(path, opts)
	default:
		return nil, errors.New("unknown pdf backend: " + backend)
	}
}

// progressReader reports read progress to a callback as a file is consumed
type progressReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress func(done, total int64)
}

func newProgressReader(r io.Reader, total int64, progress func(done, total int64)) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.progress(p.done, p.total)
	}
	return n, err
}
