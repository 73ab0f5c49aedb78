package viewer

import (
	"sync"
	"time"

	"github.com/drummonds/goPDFView/config"
)

// CanvasPool is a bounded pool of reusable drawing surfaces keyed by bucketed
// size. Each viewer instance owns its own pool; surfaces are never shared
// across instances.
type CanvasPool struct {
	mu        sync.Mutex
	cfg       config.ViewerConfig
	entries   []*Canvas // tracked entries, in use or free
	overflow  int       // untracked fallback allocations handed out
	destroyed bool
}

// PoolStats is a snapshot of pool occupancy for the status endpoint and tests
type PoolStats struct {
	Tracked  int `json:"tracked"`
	InUse    int `json:"inUse"`
	Free     int `json:"free"`
	Overflow int `json:"overflow"`
}

// NewCanvasPool creates an empty pool; surfaces allocate lazily on demand
func NewCanvasPool(cfg config.ViewerConfig) *CanvasPool {
	return &CanvasPool{cfg: cfg}
}

// bucketUp rounds a dimension up to the next multiple of the bucket step so
// slightly different page sizes can share a physical surface
func bucketUp(size, step int) int {
	if size < 1 {
		size = 1
	}
	if step <= 1 {
		return size
	}
	return ((size + step - 1) / step) * step
}

// Acquire hands out a surface of at least width x height. The search order
// is: free entry with a big enough bucket, new allocation below capacity,
// LRU eviction of a free entry, then an untracked overflow allocation when
// the configuration permits it.
func (p *CanvasPool) Acquire(width, height int) (*Canvas, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, ErrPoolDestroyed
	}

	bucketW := bucketUp(width, p.cfg.BucketStep)
	bucketH := bucketUp(height, p.cfg.BucketStep)

	// Reuse a free entry whose bucket covers the request
	var best *Canvas
	for _, canvas := range p.entries {
		if canvas.inUse {
			continue
		}
		if canvas.bucketW >= bucketW && canvas.bucketH >= bucketH {
			if best == nil || canvas.bucketW*canvas.bucketH < best.bucketW*best.bucketH {
				best = canvas
			}
		}
	}
	if best != nil {
		best.inUse = true
		best.lastUsed = time.Now()
		best.resize(width, height)
		return best, nil
	}

	if len(p.entries) < p.cfg.CanvasPoolSize {
		canvas := newCanvas(width, height, bucketW, bucketH, true)
		canvas.inUse = true
		p.entries = append(p.entries, canvas)
		return canvas, nil
	}

	// At capacity: evict the least recently used free entry and replace it
	if idx := p.lruFreeIndex(); idx >= 0 {
		p.entries[idx] = p.entries[len(p.entries)-1]
		p.entries = p.entries[:len(p.entries)-1]

		canvas := newCanvas(width, height, bucketW, bucketH, true)
		canvas.inUse = true
		p.entries = append(p.entries, canvas)
		return canvas, nil
	}

	// Everything is in use. Trade bounded memory for availability when the
	// overflow policy permits; the surface is untracked and dies on release.
	if p.cfg.PoolAllowOverflow {
		p.overflow++
		canvas := newCanvas(width, height, bucketW, bucketH, false)
		canvas.inUse = true
		Logger.Warn("Canvas pool at capacity, allocating untracked overflow surface",
			"capacity", p.cfg.CanvasPoolSize, "overflow", p.overflow)
		return canvas, nil
	}

	return nil, ErrPoolExhausted
}

// lruFreeIndex returns the index of the least recently used free entry, or -1
func (p *CanvasPool) lruFreeIndex() int {
	idx := -1
	var oldest time.Time
	for i, canvas := range p.entries {
		if canvas.inUse {
			continue
		}
		if idx == -1 || canvas.lastUsed.Before(oldest) {
			idx = i
			oldest = canvas.lastUsed
		}
	}
	return idx
}

// Release returns a surface to the pool. The surface is cleared so reuse
// never leaks prior pixels or paint state. Overflow surfaces are simply
// dropped for the garbage collector.
func (p *CanvasPool) Release(canvas *Canvas) {
	if canvas == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	canvas.Clear()
	canvas.inUse = false
	canvas.lastUsed = time.Now()

	if !canvas.pooled && p.overflow > 0 {
		p.overflow--
	}
}

// Shrink drops free entries until at most target tracked entries remain.
// Entries in use are never dropped.
func (p *CanvasPool) Shrink(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shrinkLocked(target)
}

func (p *CanvasPool) shrinkLocked(target int) {
	if target < 0 {
		target = 0
	}
	for len(p.entries) > target {
		idx := p.lruFreeIndex()
		if idx < 0 {
			break
		}
		p.entries[idx] = p.entries[len(p.entries)-1]
		p.entries = p.entries[:len(p.entries)-1]
	}
}

// HandleMemoryPressure aggressively shrinks toward a quarter of capacity
func (p *CanvasPool) HandleMemoryPressure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := p.cfg.CanvasPoolSize / 4
	Logger.Info("Canvas pool responding to memory pressure", "target", target, "tracked", len(p.entries))
	p.shrinkLocked(target)
}

// Cleanup drops free entries that have not been used within maxAge. Run
// periodically from the maintenance job.
func (p *CanvasPool) Cleanup(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	kept := p.entries[:0]
	for _, canvas := range p.entries {
		if !canvas.inUse && canvas.lastUsed.Before(cutoff) {
			continue
		}
		kept = append(kept, canvas)
	}
	p.entries = kept
}

// Stats returns a snapshot of the pool occupancy
func (p *CanvasPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Tracked: len(p.entries), Overflow: p.overflow}
	for _, canvas := range p.entries {
		if canvas.inUse {
			stats.InUse++
		} else {
			stats.Free++
		}
	}
	return stats
}

// Destroy releases every entry and marks the pool unusable
func (p *CanvasPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = nil
	p.overflow = 0
	p.destroyed = true
}
