package viewer

import (
	"image"
	"math"
	"sync"
	"time"

	"github.com/drummonds/goPDFView/config"
)

// TileKey identifies one tile of a page's raster grid
type TileKey struct {
	Page int `json:"page"`
	Row  int `json:"row"`
	Col  int `json:"col"`
}

type tileStatus int

const (
	tileEmpty tileStatus = iota
	tileRendering
	tileRendered
)

type tile struct {
	status   tileStatus
	img      image.Image
	visible  bool
	lastUsed time.Time
}

// TileGrid manages per-page tile rasters for high zoom levels, where a full
// page raster would be too large for a single surface. Rendered tiles are
// cached up to a budget; past it the least recently used invisible tile is
// evicted.
type TileGrid struct {
	mu    sync.Mutex
	cfg   config.ViewerConfig
	tiles map[TileKey]*tile
}

// NewTileGrid creates an empty grid
func NewTileGrid(cfg config.ViewerConfig) *TileGrid {
	return &TileGrid{cfg: cfg, tiles: make(map[TileKey]*tile)}
}

// GridSize returns how many rows and columns cover a page rendered at scale
func (g *TileGrid) GridSize(pageWidth, pageHeight, scale float64) (rows, cols int) {
	step := float64(g.cfg.TileSize)
	rows = int(math.Ceil(pageHeight * scale / step))
	cols = int(math.Ceil(pageWidth * scale / step))
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return rows, cols
}

// TileRect returns the pixel rectangle a tile covers within the scaled page
// raster. Edge tiles are clipped to the page bounds.
func (g *TileGrid) TileRect(key TileKey, pageWidth, pageHeight, scale float64) image.Rectangle {
	step := g.cfg.TileSize
	rect := image.Rect(key.Col*step, key.Row*step, (key.Col+1)*step, (key.Row+1)*step)
	page := image.Rect(0, 0, int(pageWidth*scale), int(pageHeight*scale))
	return rect.Intersect(page)
}

// VisibleTiles returns the keys of tiles intersecting the visible rectangle
// of the scaled page raster, and records their visibility so the evictor
// leaves them alone
func (g *TileGrid) VisibleTiles(page int, pageWidth, pageHeight, scale float64, visible image.Rectangle) []TileKey {
	rows, cols := g.GridSize(pageWidth, pageHeight, scale)
	step := g.cfg.TileSize

	var keys []TileKey
	g.mu.Lock()
	// Reset visibility for the page before marking the current set
	for key, t := range g.tiles {
		if key.Page == page {
			t.visible = false
		}
	}
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			rect := image.Rect(col*step, row*step, (col+1)*step, (row+1)*step)
			if !rect.Overlaps(visible) {
				continue
			}
			key := TileKey{Page: page, Row: row, Col: col}
			keys = append(keys, key)
			if t, ok := g.tiles[key]; ok {
				t.visible = true
				t.lastUsed = time.Now()
			}
		}
	}
	g.mu.Unlock()
	return keys
}

// MarkRendering claims a tile for rendering. Returns false when the tile is
// already rendered or being rendered, so duplicate tile work is skipped the
// same way duplicate page enqueues are.
func (g *TileGrid) MarkRendering(key TileKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tiles[key]
	if ok && t.status != tileEmpty {
		return false
	}
	if !ok {
		t = &tile{}
		g.tiles[key] = t
	}
	t.status = tileRendering
	t.visible = true
	t.lastUsed = time.Now()
	return true
}

// SetRendered stores a finished tile raster and evicts past the cache budget
func (g *TileGrid) SetRendered(key TileKey, img image.Image) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tiles[key]
	if !ok {
		t = &tile{}
		g.tiles[key] = t
	}
	t.status = tileRendered
	t.img = img
	t.lastUsed = time.Now()

	g.evictLocked()
}

// AbandonRendering returns a claimed tile to the empty state after a
// cancelled or failed render
func (g *TileGrid) AbandonRendering(key TileKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tiles[key]; ok && t.status == tileRendering {
		delete(g.tiles, key)
	}
}

// Rendered returns the cached raster for a tile, if present
func (g *TileGrid) Rendered(key TileKey) (image.Image, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tiles[key]
	if !ok || t.status != tileRendered {
		return nil, false
	}
	t.lastUsed = time.Now()
	return t.img, true
}

// evictLocked drops least recently used invisible rendered tiles until the
// rendered count fits the budget. Visible and in-flight tiles are never
// evicted.
func (g *TileGrid) evictLocked() {
	budget := g.cfg.TileCacheBudget
	if budget <= 0 {
		return
	}
	for g.renderedCountLocked() > budget {
		var victim TileKey
		var victimTile *tile
		for key, t := range g.tiles {
			if t.status != tileRendered || t.visible {
				continue
			}
			if victimTile == nil || t.lastUsed.Before(victimTile.lastUsed) {
				victim = key
				victimTile = t
			}
		}
		if victimTile == nil {
			return
		}
		delete(g.tiles, victim)
	}
}

func (g *TileGrid) renderedCountLocked() int {
	count := 0
	for _, t := range g.tiles {
		if t.status == tileRendered {
			count++
		}
	}
	return count
}

// RenderedCount returns how many tiles currently hold a raster
func (g *TileGrid) RenderedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.renderedCountLocked()
}

// ReleasePage drops every tile belonging to a page
func (g *TileGrid) ReleasePage(page int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.tiles {
		if key.Page == page {
			delete(g.tiles, key)
		}
	}
}

// Clear drops every tile. Called on scale changes, which invalidate all
// cached rasters at once.
func (g *TileGrid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tiles = make(map[TileKey]*tile)
}
