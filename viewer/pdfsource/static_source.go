package pdfsource

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// StaticDocument is an in-memory document with solid-colour pages. It renders
// deterministically and records which pages were rasterized, which makes it
// the backend of choice for viewer tests.
type StaticDocument struct {
	mu       sync.Mutex
	sizes    []Viewport
	delay    time.Duration
	rendered []int
	closed   bool
}

// NewStaticDocument builds a document whose page n has the given size. All
// pages share the same dimensions when a single size is supplied.
func NewStaticDocument(numPages int, width, height float64) *StaticDocument {
	sizes := make([]Viewport, numPages)
	for i := range sizes {
		sizes[i] = Viewport{Scale: 1, Width: width, Height: height}
	}
	return &StaticDocument{sizes: sizes}
}

// NewStaticDocumentWithSizes builds a document with per-page dimensions
func NewStaticDocumentWithSizes(sizes []Viewport) *StaticDocument {
	copied := make([]Viewport, len(sizes))
	copy(copied, sizes)
	return &StaticDocument{sizes: copied}
}

// SetRenderDelay makes every Render sleep first, so tests can hold renders
// in flight and cancel them
func (d *StaticDocument) SetRenderDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// RenderedPages returns the page numbers rasterized so far, in order
func (d *StaticDocument) RenderedPages() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.rendered...)
}

func (d *StaticDocument) NumPages() int {
	return len(d.sizes)
}

func (d *StaticDocument) Page(number int) (Page, error) {
	if number < 1 || number > len(d.sizes) {
		return nil, fmt.Errorf("page %d out of range 1..%d", number, len(d.sizes))
	}
	return &staticPage{doc: d, number: number, size: d.sizes[number-1]}, nil
}

func (d *StaticDocument) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

type staticPage struct {
	doc    *StaticDocument
	number int
	size   Viewport
}

func (p *staticPage) Number() int {
	return p.number
}

func (p *staticPage) Size() (float64, float64) {
	return p.size.Width, p.size.Height
}

// pageColor gives each page a distinct fill so tests can tell renders apart
func pageColor(number int) color.RGBA {
	return color.RGBA{
		R: uint8(40 * number % 256),
		G: uint8(85 * number % 256),
		B: uint8(130 * number % 256),
		A: 255,
	}
}

func (p *staticPage) Render(ctx context.Context, viewport Viewport) (image.Image, error) {
	p.doc.mu.Lock()
	delay := p.doc.delay
	closed := p.doc.closed
	p.doc.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("document is closed")
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := int(p.size.Width * viewport.Scale)
	h := int(p.size.Height * viewport.Scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(pageColor(p.number)), image.Point{}, draw.Src)

	p.doc.mu.Lock()
	p.doc.rendered = append(p.doc.rendered, p.number)
	p.doc.mu.Unlock()
	return img, nil
}
