package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/viewer/pdfsource"
)

// PageRenderState is everything currently rendered for one page: the base
// canvas and, when present, the high resolution bitmap overlay
type PageRenderState struct {
	PageNumber   int
	Canvas       *Canvas
	CanvasScale  float64
	HighRes      *Bitmap
	HighResScale float64
}

// PageRenderer executes render work against a document. It owns the per-page
// render state and guarantees that replacing a surface always releases the
// one it replaces; callers drive it through the scheduler, which supplies the
// cancellation context.
type PageRenderer struct {
	mu       sync.Mutex
	cfg      config.ViewerConfig
	doc      pdfsource.Document
	canvases *CanvasPool
	bitmaps  *BitmapPool
	pages    map[int]*PageRenderState
}

// NewPageRenderer binds a renderer to a document and its instance's pools
func NewPageRenderer(cfg config.ViewerConfig, doc pdfsource.Document, canvases *CanvasPool, bitmaps *BitmapPool) *PageRenderer {
	return &PageRenderer{
		cfg:      cfg,
		doc:      doc,
		canvases: canvases,
		bitmaps:  bitmaps,
		pages:    make(map[int]*PageRenderState),
	}
}

// mapRenderErr folds context cancellation into the cancellation sentinel so
// callers never mistake an abandoned render for a page failure
func mapRenderErr(pageNumber int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRenderCancelled) {
		return ErrRenderCancelled
	}
	return fmt.Errorf("render of page %d failed: %w", pageNumber, err)
}

// RenderBaseCanvas renders the fast base tier for a page onto a pooled
// canvas. The rasterization scale is capped at 1.0; zooming beyond that
// stretches the canvas in CSS until the high resolution tier lands. The
// previous base canvas for the page, if any, is released on success.
func (r *PageRenderer) RenderBaseCanvas(ctx context.Context, pageNumber int, scale float64) (*Canvas, error) {
	baseScale := scale
	if baseScale > 1.0 {
		baseScale = 1.0
	}

	img, err := r.renderPage(ctx, pageNumber, baseScale)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	canvas, err := r.canvases.Acquire(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("no canvas for page %d: %w", pageNumber, err)
	}

	if err := ctx.Err(); err != nil {
		r.canvases.Release(canvas)
		return nil, ErrRenderCancelled
	}

	draw.Draw(canvas.Image(), canvas.Bounds(), img, bounds.Min, draw.Src)

	r.mu.Lock()
	state := r.stateLocked(pageNumber)
	if state.Canvas != nil {
		r.canvases.Release(state.Canvas)
	}
	state.Canvas = canvas
	state.CanvasScale = baseScale
	r.mu.Unlock()

	return canvas, nil
}

// RenderHighResImage renders the full resolution tier for a page and adopts
// the result as an immutable bitmap. The raster scale is capped at
// MaxRenderScale; the previous bitmap for the page is released before the
// replacement is stored so decoded-image memory never accumulates.
func (r *PageRenderer) RenderHighResImage(ctx context.Context, pageNumber int, scale float64) (*Bitmap, error) {
	renderScale := scale
	if max := r.cfg.MaxRenderScale; max > 0 && renderScale > max {
		renderScale = max
	}

	img, err := r.renderPage(ctx, pageNumber, renderScale)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, ErrRenderCancelled
	}

	bitmap, err := r.bitmaps.Adopt(img)
	if err != nil {
		return nil, fmt.Errorf("no bitmap slot for page %d: %w", pageNumber, err)
	}

	if err := ctx.Err(); err != nil {
		bitmap.Release()
		return nil, ErrRenderCancelled
	}

	r.mu.Lock()
	state := r.stateLocked(pageNumber)
	if state.HighRes != nil {
		state.HighRes.Release()
	}
	state.HighRes = bitmap
	state.HighResScale = renderScale
	r.mu.Unlock()

	return bitmap, nil
}

// RenderHighResTiles renders the high resolution tier for a page whose raster
// at the display scale would be too large for a single surface. Visible tiles
// are rasterized at the true display scale and cached in the grid; the
// composed visible region is adopted as the page's high resolution bitmap and
// the returned point is its offset within the scaled page. The page source
// rasterizes whole pages only, so the full raster is transient; only the
// visible tiles survive it, bounded by the tile cache budget.
func (r *PageRenderer) RenderHighResTiles(ctx context.Context, pageNumber int, scale float64, visible image.Rectangle, grid *TileGrid) (*Bitmap, image.Point, error) {
	page, err := r.doc.Page(pageNumber)
	if err != nil {
		return nil, image.Point{}, mapRenderErr(pageNumber, err)
	}
	w, h := page.Size()

	keys := grid.VisibleTiles(pageNumber, w, h, scale, visible)
	if len(keys) == 0 {
		return nil, image.Point{}, fmt.Errorf("page %d has no visible tiles", pageNumber)
	}

	var claimed []TileKey
	for _, key := range keys {
		if grid.MarkRendering(key) {
			claimed = append(claimed, key)
		}
	}

	if len(claimed) > 0 {
		full, err := r.renderPage(ctx, pageNumber, scale)
		if err != nil {
			for _, key := range claimed {
				grid.AbandonRendering(key)
			}
			return nil, image.Point{}, err
		}
		for _, key := range claimed {
			rect := grid.TileRect(key, w, h, scale)
			cut := image.NewRGBA(rect)
			draw.Draw(cut, rect, full, rect.Min, draw.Src)
			grid.SetRendered(key, cut)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, image.Point{}, ErrRenderCancelled
	}

	var region image.Rectangle
	for _, key := range keys {
		region = region.Union(grid.TileRect(key, w, h, scale))
	}
	composed := image.NewRGBA(region)
	for _, key := range keys {
		img, ok := grid.Rendered(key)
		if !ok {
			continue
		}
		rect := grid.TileRect(key, w, h, scale)
		draw.Draw(composed, rect, img, rect.Min, draw.Src)
	}

	bitmap, err := r.bitmaps.Adopt(composed)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("no bitmap slot for page %d: %w", pageNumber, err)
	}

	if err := ctx.Err(); err != nil {
		bitmap.Release()
		return nil, image.Point{}, ErrRenderCancelled
	}

	r.mu.Lock()
	state := r.stateLocked(pageNumber)
	if state.HighRes != nil {
		state.HighRes.Release()
	}
	state.HighRes = bitmap
	state.HighResScale = scale
	r.mu.Unlock()

	return bitmap, region.Min, nil
}

func (r *PageRenderer) renderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrRenderCancelled
	}

	page, err := r.doc.Page(pageNumber)
	if err != nil {
		return nil, mapRenderErr(pageNumber, err)
	}
	w, h := page.Size()

	img, err := page.Render(ctx, pdfsource.Viewport{
		Scale:  scale,
		Width:  w * scale,
		Height: h * scale,
	})
	if err != nil {
		return nil, mapRenderErr(pageNumber, err)
	}
	return img, nil
}

// stateLocked returns the state entry for a page, creating it on first use
func (r *PageRenderer) stateLocked(pageNumber int) *PageRenderState {
	state, ok := r.pages[pageNumber]
	if !ok {
		state = &PageRenderState{PageNumber: pageNumber}
		r.pages[pageNumber] = state
	}
	return state
}

// State returns a copy of the render state for a page, or false when the page
// has nothing rendered
func (r *PageRenderer) State(pageNumber int) (PageRenderState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.pages[pageNumber]
	if !ok {
		return PageRenderState{}, false
	}
	return *state, true
}

// RenderedPages returns the page numbers that currently hold a base canvas
func (r *PageRenderer) RenderedPages() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pages []int
	for number, state := range r.pages {
		if state.Canvas != nil {
			pages = append(pages, number)
		}
	}
	return pages
}

// ClearHighRes releases the high resolution bitmap for a page, keeping the
// base canvas. Used when a scale change makes the overlay stale.
func (r *PageRenderer) ClearHighRes(pageNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.pages[pageNumber]; ok && state.HighRes != nil {
		state.HighRes.Release()
		state.HighRes = nil
		state.HighResScale = 0
	}
}

// ReleasePage returns every surface held for a page to its pool
func (r *PageRenderer) ReleasePage(pageNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releasePageLocked(pageNumber)
}

func (r *PageRenderer) releasePageLocked(pageNumber int) {
	state, ok := r.pages[pageNumber]
	if !ok {
		return
	}
	if state.Canvas != nil {
		r.canvases.Release(state.Canvas)
	}
	if state.HighRes != nil {
		state.HighRes.Release()
	}
	delete(r.pages, pageNumber)
}

// ReleaseAll drops every page's surfaces. Called on scale change re-render
// sweeps and on destroy.
func (r *PageRenderer) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for number := range r.pages {
		r.releasePageLocked(number)
	}
}
