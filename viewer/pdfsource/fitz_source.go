package pdfsource

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// fitzDocument wraps a go-fitz document. MuPDF handles are not safe for
// concurrent use, so every engine call holds the mutex.
type fitzDocument struct {
	mu       sync.Mutex
	doc      *fitz.Document
	numPages int
	closed   bool
}

// OpenFitz opens a document with the go-fitz backend. Encrypted documents are
// not supported by this backend; they surface as ErrPasswordRequired so the
// caller can fall back to pdfium.
func OpenFitz(path string, opts OpenOptions) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF file: %w", err)
	}
	defer f.Close()

	total := int64(-1)
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	data, err := io.ReadAll(newProgressReader(f, total, opts.Progress))
	if err != nil {
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if opts.Password != "" {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	return &fitzDocument{doc: doc, numPages: doc.NumPage()}, nil
}

func (d *fitzDocument) NumPages() int {
	return d.numPages
}

func (d *fitzDocument) Page(number int) (Page, error) {
	if number < 1 || number > d.numPages {
		return nil, fmt.Errorf("page %d out of range 1..%d", number, d.numPages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("document is closed")
	}

	// Bound reports pixels at 72 DPI, which matches CSS pixels at scale 1.0
	bound, err := d.doc.Bound(number - 1)
	if err != nil {
		return nil, fmt.Errorf("unable to measure page %d: %w", number, err)
	}

	return &fitzPage{
		doc:    d,
		number: number,
		width:  float64(bound.Dx()),
		height: float64(bound.Dy()),
	}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type fitzPage struct {
	doc    *fitzDocument
	number int
	width  float64
	height float64
}

func (p *fitzPage) Number() int {
	return p.number
}

func (p *fitzPage) Size() (float64, float64) {
	return p.width, p.height
}

func (p *fitzPage) Render(ctx context.Context, viewport Viewport) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.closed {
		return nil, fmt.Errorf("document is closed")
	}

	img, err := p.doc.doc.ImageDPI(p.number-1, 72*viewport.Scale)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", p.number, err)
	}

	// The engine call is not interruptible; honour a cancellation that
	// arrived while it ran
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
