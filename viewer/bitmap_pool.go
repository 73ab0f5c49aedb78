package viewer

import (
	"image"
	"sync"
	"time"

	"github.com/drummonds/goPDFView/config"
)

// Bitmap is an immutable decoded image handle produced by a high resolution
// render. It is cheap to blit repeatedly and must be explicitly released so
// decoded-image memory does not leak when it is replaced.
type Bitmap struct {
	img      image.Image
	width    int
	height   int
	pooled   bool
	released bool
	created  time.Time
	lastUsed time.Time

	// Set only on untracked overflow bitmaps, so releasing one can return
	// its slot to the pool's overflow count
	pool *BitmapPool
}

// Image returns the decoded image. Nil once released.
func (b *Bitmap) Image() image.Image {
	if b.released {
		return nil
	}
	b.lastUsed = time.Now()
	return b.img
}

// Size returns the bitmap dimensions
func (b *Bitmap) Size() (int, int) {
	return b.width, b.height
}

// Released reports whether the bitmap has been released
func (b *Bitmap) Released() bool {
	return b.released
}

// Release drops the decoded image. Safe to call more than once.
func (b *Bitmap) Release() {
	if b.released {
		return
	}
	b.released = true
	b.img = nil
	if b.pool != nil {
		b.pool.releaseOverflow()
	}
}

// BitmapPool bounds how many decoded bitmaps are kept alive at once. Unlike
// the canvas pool, bitmaps are adopted after rendering rather than acquired
// blank; the policies (bound, LRU eviction, overflow fallback) are the same.
type BitmapPool struct {
	mu        sync.Mutex
	cfg       config.ViewerConfig
	entries   []*Bitmap
	overflow  int
	destroyed bool
}

// NewBitmapPool creates an empty bitmap pool
func NewBitmapPool(cfg config.ViewerConfig) *BitmapPool {
	return &BitmapPool{cfg: cfg}
}

// Adopt wraps a freshly decoded image in a tracked Bitmap. At capacity the
// least recently used released entry is evicted first; if nothing is
// evictable the bitmap is handed out untracked (or refused, per the overflow
// policy).
func (p *BitmapPool) Adopt(img image.Image) (*Bitmap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, ErrPoolDestroyed
	}

	bounds := img.Bounds()
	now := time.Now()
	bitmap := &Bitmap{
		img:      img,
		width:    bounds.Dx(),
		height:   bounds.Dy(),
		created:  now,
		lastUsed: now,
	}

	if len(p.entries) < p.cfg.BitmapPoolSize {
		bitmap.pooled = true
		p.entries = append(p.entries, bitmap)
		return bitmap, nil
	}

	if idx := p.lruReleasedIndex(); idx >= 0 {
		p.entries[idx] = p.entries[len(p.entries)-1]
		p.entries = p.entries[:len(p.entries)-1]
		bitmap.pooled = true
		p.entries = append(p.entries, bitmap)
		return bitmap, nil
	}

	// Every tracked entry is still live. Hand out an untracked bitmap rather
	// than fail the render, matching the canvas pool's overflow policy.
	if p.cfg.PoolAllowOverflow {
		p.overflow++
		bitmap.pool = p
		Logger.Warn("Bitmap pool at capacity, handing out untracked bitmap",
			"capacity", p.cfg.BitmapPoolSize, "overflow", p.overflow)
		return bitmap, nil
	}

	return nil, ErrPoolExhausted
}

// releaseOverflow returns one overflow slot when an untracked bitmap is
// released, mirroring how the canvas pool counts live overflow surfaces
func (p *BitmapPool) releaseOverflow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.overflow > 0 {
		p.overflow--
	}
}

func (p *BitmapPool) lruReleasedIndex() int {
	idx := -1
	var oldest time.Time
	for i, bitmap := range p.entries {
		if !bitmap.released {
			continue
		}
		if idx == -1 || bitmap.lastUsed.Before(oldest) {
			idx = i
			oldest = bitmap.lastUsed
		}
	}
	return idx
}

// Cleanup releases tracked bitmaps older than maxAge that are already
// released, and drops them from tracking
func (p *BitmapPool) Cleanup(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	kept := p.entries[:0]
	for _, bitmap := range p.entries {
		if bitmap.released && bitmap.created.Before(cutoff) {
			continue
		}
		kept = append(kept, bitmap)
	}
	p.entries = kept
}

// HandleMemoryPressure releases and drops every already-released entry and
// shrinks tracking toward a quarter of capacity
func (p *BitmapPool) HandleMemoryPressure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.cfg.BitmapPoolSize / 4
	kept := p.entries[:0]
	for _, bitmap := range p.entries {
		if bitmap.released {
			continue
		}
		kept = append(kept, bitmap)
	}
	p.entries = kept
	if len(p.entries) > target {
		Logger.Info("Bitmap pool over pressure target", "target", target, "live", len(p.entries))
	}
}

// Stats returns a snapshot of the pool occupancy
func (p *BitmapPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Tracked: len(p.entries), Overflow: p.overflow}
	for _, bitmap := range p.entries {
		if bitmap.released {
			stats.Free++
		} else {
			stats.InUse++
		}
	}
	return stats
}

// Destroy releases every tracked bitmap and marks the pool unusable
func (p *BitmapPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, bitmap := range p.entries {
		bitmap.Release()
	}
	p.entries = nil
	p.overflow = 0
	p.destroyed = true
}
