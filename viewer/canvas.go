package viewer

import (
	"image"
	"time"
)

// CompositeOp mirrors the drawing-context compositing mode carried by a
// surface. Only the mode is tracked; actual compositing happens in the
// rasterization backend.
type CompositeOp string

const (
	CompositeSourceOver CompositeOp = "source-over"
	CompositeCopy       CompositeOp = "copy"
	CompositeMultiply   CompositeOp = "multiply"
)

const defaultAlpha = 1.0

// Canvas is a reusable drawing surface. A canvas marked in use must never be
// handed to a second caller; release resets both pixels and paint state so
// nothing leaks across unrelated pages.
type Canvas struct {
	img      *image.RGBA
	width    int // requested size
	height   int
	bucketW  int // allocated (bucketed) size
	bucketH  int
	inUse    bool
	pooled   bool // false for overflow fallback allocations
	lastUsed time.Time
	created  time.Time

	alpha     float64
	composite CompositeOp
	clip      image.Rectangle
}

func newCanvas(width, height, bucketW, bucketH int, pooled bool) *Canvas {
	now := time.Now()
	return &Canvas{
		img:       image.NewRGBA(image.Rect(0, 0, bucketW, bucketH)),
		width:     width,
		height:    height,
		bucketW:   bucketW,
		bucketH:   bucketH,
		pooled:    pooled,
		created:   now,
		lastUsed:  now,
		alpha:     defaultAlpha,
		composite: CompositeSourceOver,
	}
}

// Image exposes the backing surface for rasterization
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Bounds returns the requested drawing area, which may be smaller than the
// allocated bucket
func (c *Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// BucketSize returns the allocated surface size
func (c *Canvas) BucketSize() (int, int) {
	return c.bucketW, c.bucketH
}

// InUse reports whether the canvas is currently handed out
func (c *Canvas) InUse() bool {
	return c.inUse
}

// Pooled reports whether the canvas is tracked by its pool. Overflow
// fallback surfaces are not.
func (c *Canvas) Pooled() bool {
	return c.pooled
}

// Alpha returns the current global alpha of the paint state
func (c *Canvas) Alpha() float64 {
	return c.alpha
}

// SetAlpha sets the global alpha of the paint state
func (c *Canvas) SetAlpha(alpha float64) {
	c.alpha = alpha
}

// Composite returns the current compositing mode
func (c *Canvas) Composite() CompositeOp {
	return c.composite
}

// SetComposite sets the compositing mode
func (c *Canvas) SetComposite(op CompositeOp) {
	c.composite = op
}

// Clip returns the current clipping rectangle; the zero rectangle means
// unclipped
func (c *Canvas) Clip() image.Rectangle {
	return c.clip
}

// SetClip sets the clipping rectangle
func (c *Canvas) SetClip(r image.Rectangle) {
	c.clip = r
}

// Clear zeroes the drawn content and resets the paint state to defaults.
// Called on every release so a reused surface carries no prior content,
// alpha, compositing mode or clip.
func (c *Canvas) Clear() {
	pix := c.img.Pix
	for i := range pix {
		pix[i] = 0
	}
	c.alpha = defaultAlpha
	c.composite = CompositeSourceOver
	c.clip = image.Rectangle{}
}

// resize repoints the canvas at a new requested size within its bucket
func (c *Canvas) resize(width, height int) {
	c.width = width
	c.height = height
}
