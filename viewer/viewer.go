package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/viewer/pdfsource"
)

// LoadOptions carries per-document load parameters
type LoadOptions struct {
	Password string
	Backend  string
}

// LoadProgress is the payload of load-progress events
type LoadProgress struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

// Viewer is one viewing instance: one document, its own pools, scheduler,
// wrapper arena and event bus. Instances share nothing, so several can live
// on one page without interfering.
type Viewer struct {
	mu  sync.Mutex
	id  string
	cfg config.ViewerConfig

	doc       pdfsource.Document
	docPath   string
	pageSizes []PageSize
	textIndex *pdfsource.TextIndex

	positions    map[int]PageDimensions
	viewport     ViewportState
	currentPage  int
	visible      []int
	bufferRadius int
	pageErrors   map[int]error

	canvases  *CanvasPool
	bitmaps   *BitmapPool
	scheduler *RenderScheduler
	renderer  *PageRenderer
	tiles     *TileGrid
	scales    *ScaleManager
	memory    *MemoryManager
	arena     *WrapperArena
	bus       *Bus

	loaded    bool
	destroyed bool
}

// NewViewer builds an unloaded instance bound to a container element. Call
// Load before anything else; most methods fail until a document is in.
func NewViewer(cfg config.ViewerConfig, factory ElementFactory, container Element) *Viewer {
	v := &Viewer{
		id:           ulid.Make().String(),
		cfg:          cfg,
		canvases:     NewCanvasPool(cfg),
		bitmaps:      NewBitmapPool(cfg),
		tiles:        NewTileGrid(cfg),
		scales:       NewScaleManager(cfg),
		memory:       NewMemoryManager(cfg, nil),
		arena:        NewWrapperArena(cfg, factory, container),
		bus:          NewBus(),
		bufferRadius: cfg.PageBufferSize,
		pageErrors:   make(map[int]error),
		currentPage:  1,
	}
	return v
}

// ID returns the instance's ulid
func (v *Viewer) ID() string {
	return v.id
}

// Bus exposes the instance event bus for subscribers
func (v *Viewer) Bus() *Bus {
	return v.bus
}

// Load opens the document at path and prepares the initial layout. A failed
// load leaves the instance clean: it can retry Load (for example with a
// password after ErrPasswordRequired) or be destroyed.
func (v *Viewer) Load(ctx context.Context, path string, opts LoadOptions) error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return ErrViewerDestroyed
	}
	if v.loaded {
		v.mu.Unlock()
		return fmt.Errorf("viewer %s already has a document", v.id)
	}
	v.mu.Unlock()

	doc, err := pdfsource.Open(path, opts.Backend, pdfsource.OpenOptions{
		Password: opts.Password,
		Progress: func(done, total int64) {
			v.bus.Publish(EventLoadProgress, LoadProgress{Done: done, Total: total})
		},
	})
	if err != nil {
		v.bus.Publish(EventLoadError, err)
		if errors.Is(err, pdfsource.ErrPasswordRequired) {
			return err
		}
		return fmt.Errorf("load of %s failed: %w", path, err)
	}

	if index, err := pdfsource.ExtractText(path); err == nil {
		v.mu.Lock()
		v.textIndex = index
		v.mu.Unlock()
	}

	if err := v.LoadFromSource(ctx, doc); err != nil {
		doc.Close()
		return err
	}
	v.mu.Lock()
	v.docPath = path
	v.mu.Unlock()
	return nil
}

// LoadFromSource installs an already-open document. Tests drive the viewer
// through this with the static source.
func (v *Viewer) LoadFromSource(ctx context.Context, doc pdfsource.Document) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return ErrViewerDestroyed
	}
	if v.loaded {
		return fmt.Errorf("viewer %s already has a document", v.id)
	}

	numPages := doc.NumPages()
	sizes := make([]PageSize, numPages)
	for i := 0; i < numPages; i++ {
		page, err := doc.Page(i + 1)
		if err != nil {
			v.bus.Publish(EventLoadError, err)
			return fmt.Errorf("page %d unavailable: %w", i+1, err)
		}
		w, h := page.Size()
		sizes[i] = PageSize{Width: w, Height: h}
	}

	v.doc = doc
	v.pageSizes = sizes
	v.renderer = NewPageRenderer(v.cfg, doc, v.canvases, v.bitmaps)
	v.scheduler = NewRenderScheduler(v.cfg, v.executeTask)
	v.layoutLocked()
	v.loaded = true

	v.bus.Publish(EventLoadComplete, numPages)
	Logger.Info("Document loaded", "viewer", v.id, "pages", numPages)
	return nil
}

// layoutLocked recomputes page positions at the current display scale
func (v *Viewer) layoutLocked() {
	scale := v.scales.Scale()
	scaled := make([]PageSize, len(v.pageSizes))
	for i, size := range v.pageSizes {
		scaled[i] = PageSize{Width: size.Width * scale, Height: size.Height * scale}
	}
	v.positions = CalculatePagePositions(scaled, v.cfg)
}

// executeTask is the scheduler's executor: it renders one tier of one page
// and attaches the result to the page's wrapper
func (v *Viewer) executeTask(ctx context.Context, task *RenderTask) error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return ErrRenderCancelled
	}
	renderer := v.renderer
	v.mu.Unlock()

	scale := v.scales.Scale()

	switch task.Tier {
	case TierHighRes:
		if v.scales.NeedsTiling(scale) {
			region := v.pageVisibleRect(task.PageNumber)
			if region.Empty() {
				// The page left the viewport between enqueue and execution
				return ErrRenderCancelled
			}
			bitmap, origin, err := renderer.RenderHighResTiles(ctx, task.PageNumber, scale, region, v.tiles)
			if err != nil {
				return v.notePageErr(task.PageNumber, err)
			}
			if wrapper, ok := v.arena.WrapperFor(task.PageNumber); ok {
				wrapper.ImageLayer.SetImage(bitmap.Image())
				wrapper.ImageLayer.SetStyle("left", fmt.Sprintf("%dpx", origin.X))
				wrapper.ImageLayer.SetStyle("top", fmt.Sprintf("%dpx", origin.Y))
				wrapper.ImageLayer.Show()
			}
			break
		}
		bitmap, err := renderer.RenderHighResImage(ctx, task.PageNumber, v.scales.OptimalRenderScale(scale))
		if err != nil {
			return v.notePageErr(task.PageNumber, err)
		}
		if wrapper, ok := v.arena.WrapperFor(task.PageNumber); ok {
			wrapper.ImageLayer.SetImage(bitmap.Image())
			// A prior tiled overlay may have offset the layer
			wrapper.ImageLayer.SetStyle("left", "0px")
			wrapper.ImageLayer.SetStyle("top", "0px")
			wrapper.ImageLayer.Show()
		}
	default:
		canvas, err := renderer.RenderBaseCanvas(ctx, task.PageNumber, scale)
		if err != nil {
			return v.notePageErr(task.PageNumber, err)
		}
		if wrapper, ok := v.arena.WrapperFor(task.PageNumber); ok {
			wrapper.CanvasLayer.SetImage(canvas.Image())
			v.mu.Lock()
			index := v.textIndex
			v.mu.Unlock()
			if index != nil {
				wrapper.TextLayer.SetText(index.PageText(task.PageNumber))
			}
		}
	}

	v.mu.Lock()
	delete(v.pageErrors, task.PageNumber)
	v.mu.Unlock()
	return nil
}

// pageVisibleRect returns the viewport's intersection with a page, in the
// page's scaled raster coordinates. Tile rendering works in this space.
func (v *Viewer) pageVisibleRect(page int) image.Rectangle {
	v.mu.Lock()
	dims, ok := v.positions[page]
	vp := v.viewport
	v.mu.Unlock()
	if !ok {
		return image.Rectangle{}
	}

	x0 := math.Max(0, -dims.Left)
	x1 := math.Min(dims.Width, vp.ContainerWidth-dims.Left)
	y0 := math.Max(0, vp.ScrollTop-dims.Top)
	y1 := math.Min(dims.Height, vp.ScrollTop+vp.ContainerHeight-dims.Top)
	if x1 <= x0 || y1 <= y0 {
		return image.Rectangle{}
	}
	return image.Rect(int(x0), int(y0), int(math.Ceil(x1)), int(math.Ceil(y1)))
}

// notePageErr records a page failure without poisoning sibling pages.
// Cancellations pass through untouched.
func (v *Viewer) notePageErr(page int, err error) error {
	if !errors.Is(err, ErrRenderCancelled) {
		v.mu.Lock()
		if !v.destroyed {
			v.pageErrors[page] = err
		}
		v.mu.Unlock()
	}
	return err
}

// HandleScroll runs one virtualization pass for the given viewport: updates
// the visible set, prunes pages that left the render window, and queues
// renders for pages that entered it
func (v *Viewer) HandleScroll(viewport ViewportState) (VisiblePageResult, error) {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return VisiblePageResult{}, ErrViewerDestroyed
	}
	scheduler := v.scheduler
	v.mu.Unlock()

	if scheduler != nil {
		scheduler.NoteScroll()
	}
	return v.refresh(viewport)
}

// refresh is the virtualization pass proper, shared by scroll handling and
// the full zoom phase. Unlike HandleScroll it does not feed the rapid-scroll
// detector, so a zoom is never mistaken for a fling.
func (v *Viewer) refresh(viewport ViewportState) (VisiblePageResult, error) {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return VisiblePageResult{}, ErrViewerDestroyed
	}
	if !v.loaded {
		v.mu.Unlock()
		return VisiblePageResult{}, ErrNotLoaded
	}
	v.viewport = viewport

	cfg := v.cfg
	cfg.PageBufferSize = v.bufferRadius
	result := CalculateVisiblePages(viewport, v.positions, cfg, v.renderer.RenderedPages())
	v.visible = result.VisiblePages

	pageChanged := result.CenterPage != v.currentPage
	v.currentPage = result.CenterPage
	positions := v.positions
	scheduler := v.scheduler
	renderer := v.renderer
	v.mu.Unlock()

	for _, page := range result.PagesToRemove {
		scheduler.CancelPage(page)
		renderer.ReleasePage(page)
		v.tiles.ReleasePage(page)
		v.arena.ReleaseFor(page)
	}

	scale := v.scales.Scale()
	desiredBase := scale
	if desiredBase > 1.0 {
		desiredBase = 1.0
	}
	rapid := scheduler.IsRapidScrolling()

	for _, page := range result.PagesToRender {
		wrapper, err := v.arena.AcquireFor(page)
		if err != nil {
			return result, err
		}
		wrapper.SetPosition(positions[page])

		visible := containsPage(result.VisiblePages, page)
		priority := CalculateRenderPriority(page, result.CenterPage, visible)

		state, ok := renderer.State(page)
		if !ok || state.Canvas == nil || state.CanvasScale != desiredBase {
			scheduler.Enqueue(page, TierBase, priority)
		}
		if scale > 1.0 && visible && !rapid {
			want := v.scales.OptimalRenderScale(scale)
			// Past the single-raster cap the overlay tracks the visible
			// region, so scrolling re-queues it; enqueue dedups in-flight work
			if v.scales.NeedsTiling(scale) || !ok || state.HighResScale != want {
				scheduler.Enqueue(page, TierHighRes, priority)
			}
		}
	}

	scheduler.CancelDistantTasks(result.CenterPage)

	if pageChanged {
		v.bus.Publish(EventPageChanged, result.CenterPage)
	}
	return result, nil
}

func containsPage(pages []int, page int) bool {
	for _, p := range pages {
		if p == page {
			return true
		}
	}
	return false
}

// SetScale applies a display scale in two phases. The quick phase happens
// here: layout at the new scale, wrappers repositioned, existing base rasters
// stretched in place, stale overlays cleared, the reading position anchored.
// The full phase is the re-render pass queued by the follow-up virtualization
// run, skipped entirely for deltas below the re-render threshold.
func (v *Viewer) SetScale(target float64) (float64, error) {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return 0, ErrViewerDestroyed
	}
	if !v.loaded {
		v.mu.Unlock()
		return 0, ErrNotLoaded
	}

	oldScale := v.scales.Scale()
	anchor := v.scales.CaptureAnchor(v.viewport.ScrollTop, v.positions, v.currentPage)

	applied, changed := v.scales.SetScale(target)
	if !changed {
		v.mu.Unlock()
		return applied, nil
	}

	v.layoutLocked()
	positions := v.positions
	v.viewport.ScrollTop = v.scales.RestoreScrollTop(anchor, positions, applied)
	viewport := v.viewport
	renderer := v.renderer
	scheduler := v.scheduler
	v.mu.Unlock()

	// In-flight work targets the old scale; none of it is worth finishing
	scheduler.CancelAll()
	v.tiles.Clear()

	rerender := v.scales.RequiresRerender(oldScale, applied)
	for _, page := range renderer.RenderedPages() {
		wrapper, ok := v.arena.WrapperFor(page)
		if !ok {
			continue
		}
		wrapper.SetPosition(positions[page])

		if state, ok := renderer.State(page); ok && state.Canvas != nil {
			dims := positions[page]
			wrapper.CanvasLayer.SetImage(StretchRaster(state.Canvas.Image(), int(dims.Width), int(dims.Height)))
		}
		renderer.ClearHighRes(page)
		wrapper.ImageLayer.Clear()
		wrapper.ImageLayer.Hide()
	}

	v.bus.Publish(EventScaleChanged, applied)

	if rerender {
		if _, err := v.refresh(viewport); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// ZoomIn steps the scale up by the configured increment
func (v *Viewer) ZoomIn() (float64, error) {
	return v.SetScale(v.scales.Scale() + v.cfg.ZoomStep)
}

// ZoomOut steps the scale down by the configured increment
func (v *Viewer) ZoomOut() (float64, error) {
	return v.SetScale(v.scales.Scale() - v.cfg.ZoomStep)
}

// FitWidth scales the widest page to the current container width
func (v *Viewer) FitWidth() (float64, error) {
	v.mu.Lock()
	width := v.viewport.ContainerWidth
	maxPage := 0.0
	for _, size := range v.pageSizes {
		if size.Width > maxPage {
			maxPage = size.Width
		}
	}
	v.mu.Unlock()

	if width <= 0 || maxPage <= 0 {
		return v.scales.Scale(), nil
	}
	return v.SetScale(width / maxPage)
}

// GoToPage scrolls so the given page's top sits at the viewport top
func (v *Viewer) GoToPage(page int) error {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return ErrViewerDestroyed
	}
	if !v.loaded {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	dims, ok := v.positions[page]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: page %d", ErrNoSuchPage, page)
	}
	viewport := v.viewport
	viewport.ScrollTop = dims.Top
	v.mu.Unlock()

	// A deliberate jump, not a fling; bypass the rapid-scroll detector
	_, err := v.refresh(viewport)
	return err
}

// NextPage advances one page, clamped at the end
func (v *Viewer) NextPage() error {
	page := v.CurrentPage() + 1
	if page > v.NumPages() {
		return nil
	}
	return v.GoToPage(page)
}

// PrevPage goes back one page, clamped at the start
func (v *Viewer) PrevPage() error {
	page := v.CurrentPage() - 1
	if page < 1 {
		return nil
	}
	return v.GoToPage(page)
}

// FirstPage jumps to the start of the document
func (v *Viewer) FirstPage() error {
	return v.GoToPage(1)
}

// LastPage jumps to the end of the document
func (v *Viewer) LastPage() error {
	n := v.NumPages()
	if n == 0 {
		return ErrNotLoaded
	}
	return v.GoToPage(n)
}

// CurrentPage returns the page closest to the viewport center
func (v *Viewer) CurrentPage() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentPage
}

// NumPages returns the page count, zero before load
func (v *Viewer) NumPages() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pageSizes)
}

// Scale returns the current display scale
func (v *Viewer) Scale() float64 {
	return v.scales.Scale()
}

// VisiblePages returns the pages intersecting the viewport as of the last
// virtualization pass
func (v *Viewer) VisiblePages() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.visible...)
}

// Layout returns the current page positions and total stacked height
func (v *Viewer) Layout() (map[int]PageDimensions, float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return nil, 0, ErrViewerDestroyed
	}
	if !v.loaded {
		return nil, 0, ErrNotLoaded
	}

	positions := make(map[int]PageDimensions, len(v.positions))
	for page, dims := range v.positions {
		positions[page] = dims
	}
	return positions, TotalHeight(positions, v.cfg), nil
}

// DocumentPath returns the path the document was loaded from, empty for
// documents installed via LoadFromSource
func (v *Viewer) DocumentPath() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.docPath
}

// PageImage rasterizes one page directly, bypassing the pools and scheduler.
// Serves the HTTP page-image and thumbnail endpoints, where the result is
// encoded and thrown away rather than kept on a surface.
func (v *Viewer) PageImage(ctx context.Context, page int, scale float64) (image.Image, error) {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return nil, ErrViewerDestroyed
	}
	if !v.loaded {
		v.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if page < 1 || page > len(v.pageSizes) {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPage, page)
	}
	doc := v.doc
	size := v.pageSizes[page-1]
	v.mu.Unlock()

	if scale <= 0 {
		scale = v.scales.Scale()
	}
	if scale > v.cfg.MaxRenderScale {
		scale = v.cfg.MaxRenderScale
	}

	p, err := doc.Page(page)
	if err != nil {
		return nil, err
	}
	img, err := p.Render(ctx, pdfsource.Viewport{
		Scale:  scale,
		Width:  size.Width * scale,
		Height: size.Height * scale,
	})
	if err != nil {
		return nil, mapRenderErr(page, err)
	}
	return img, nil
}

// PageError returns the recorded render error for a page, if any
func (v *Viewer) PageError(page int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageErrors[page]
}

// Search returns the pages whose text matches the query. Empty without a
// text index.
func (v *Viewer) Search(query string) []int {
	v.mu.Lock()
	index := v.textIndex
	v.mu.Unlock()
	if index == nil {
		return nil
	}
	return index.Search(query)
}

// PollMemory runs one memory pressure check, adjusting scheduler concurrency
// and the render buffer radius. Wired to the maintenance cron.
func (v *Viewer) PollMemory() PressureLevel {
	v.mu.Lock()
	if v.destroyed || !v.loaded {
		v.mu.Unlock()
		return PressureNone
	}
	scheduler := v.scheduler
	v.mu.Unlock()

	level, buffer := v.memory.Poll(scheduler, v.canvases, v.bitmaps)

	v.mu.Lock()
	v.bufferRadius = buffer
	v.mu.Unlock()
	return level
}

// CleanupPools drops stale pool entries. Wired to the maintenance cron.
func (v *Viewer) CleanupPools() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	maxAge := time.Duration(v.cfg.BitmapMaxAgeSecs) * time.Second
	v.mu.Unlock()

	v.canvases.Cleanup(maxAge)
	v.bitmaps.Cleanup(maxAge)
}

// InstanceStatus is a point-in-time snapshot for the status endpoint
type InstanceStatus struct {
	ID           string    `json:"id"`
	DocumentPath string    `json:"documentPath"`
	Loaded       bool      `json:"loaded"`
	Destroyed    bool      `json:"destroyed"`
	CurrentPage  int       `json:"currentPage"`
	NumPages     int       `json:"numPages"`
	Scale        float64   `json:"scale"`
	VisiblePages []int     `json:"visiblePages"`
	QueuedTasks  int       `json:"queuedTasks"`
	ActiveTasks  int       `json:"activeTasks"`
	CanvasPool   PoolStats `json:"canvasPool"`
	BitmapPool   PoolStats `json:"bitmapPool"`
}

// Status reports the instance's current state
func (v *Viewer) Status() InstanceStatus {
	v.mu.Lock()
	status := InstanceStatus{
		ID:           v.id,
		DocumentPath: v.docPath,
		Loaded:       v.loaded,
		Destroyed:    v.destroyed,
		CurrentPage:  v.currentPage,
		NumPages:     len(v.pageSizes),
		VisiblePages: append([]int(nil), v.visible...),
	}
	scheduler := v.scheduler
	v.mu.Unlock()

	status.Scale = v.scales.Scale()
	if scheduler != nil {
		status.QueuedTasks = scheduler.QueueLength()
		status.ActiveTasks = scheduler.ActiveCount()
	}
	status.CanvasPool = v.canvases.Stats()
	status.BitmapPool = v.bitmaps.Stats()
	return status
}

// Destroyed reports whether the instance has been torn down
func (v *Viewer) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

// Destroy tears the instance down: cancels and drains render work, releases
// every surface and wrapper, closes the document and kills the bus. Safe to
// call more than once; everything else fails with ErrViewerDestroyed after.
func (v *Viewer) Destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	scheduler := v.scheduler
	renderer := v.renderer
	doc := v.doc
	v.mu.Unlock()

	if scheduler != nil {
		scheduler.Destroy()
	}
	if renderer != nil {
		renderer.ReleaseAll()
	}
	v.tiles.Clear()
	v.arena.Destroy()
	v.canvases.Destroy()
	v.bitmaps.Destroy()
	if doc != nil {
		doc.Close()
	}

	v.bus.Publish(EventInstanceDestroyed, v.id)
	v.bus.Destroy()
	Logger.Info("Viewer destroyed", "viewer", v.id)
}
