package viewer

import (
	"fmt"
	"image"
	"sync"

	"github.com/drummonds/goPDFView/config"
)

// Element is the only seam through which the engine touches the document
// tree. The webapp implements it over real browser nodes; tests use an
// in-memory fake. Methods never return errors: DOM mutation failures are not
// recoverable by the engine.
type Element interface {
	SetStyle(name, value string)
	SetAttribute(name, value string)
	SetText(text string)
	SetImage(img image.Image)
	AppendChild(child Element)
	Show()
	Hide()
	Clear()
	Remove()
}

// ElementFactory creates elements of a named kind ("div", "canvas", "img")
type ElementFactory interface {
	CreateElement(kind string) Element
}

// PageWrapper is the positioned container for one page and its layers. The
// canvas layer carries the base render, the image layer the high resolution
// overlay, then text and annotations on top.
type PageWrapper struct {
	Page            int
	Root            Element
	CanvasLayer     Element
	ImageLayer      Element
	TextLayer       Element
	AnnotationLayer Element

	pooled bool
	inUse  bool
}

// SetPosition places the wrapper absolutely according to the layout pass
func (w *PageWrapper) SetPosition(dims PageDimensions) {
	w.Root.SetStyle("position", "absolute")
	w.Root.SetStyle("top", fmt.Sprintf("%.2fpx", dims.Top))
	w.Root.SetStyle("left", fmt.Sprintf("%.2fpx", dims.Left))
	w.Root.SetStyle("width", fmt.Sprintf("%.2fpx", dims.Width))
	w.Root.SetStyle("height", fmt.Sprintf("%.2fpx", dims.Height))
}

// WrapperArena hands out page wrappers from a fixed set of slots. Pooled
// wrappers are hidden and cleared on release but stay attached, so showing
// them again is cheap; past capacity the arena creates transient wrappers
// that are fully removed on release, mirroring the canvas pool's overflow
// policy.
type WrapperArena struct {
	mu        sync.Mutex
	cfg       config.ViewerConfig
	factory   ElementFactory
	container Element
	byPage    map[int]*PageWrapper
	free      []*PageWrapper
	tracked   int
	destroyed bool
}

// NewWrapperArena binds an arena to the container element all wrappers
// attach to
func NewWrapperArena(cfg config.ViewerConfig, factory ElementFactory, container Element) *WrapperArena {
	return &WrapperArena{
		cfg:       cfg,
		factory:   factory,
		container: container,
		byPage:    make(map[int]*PageWrapper),
	}
}

// AcquireFor returns the wrapper for a page, creating or reusing one. A page
// never gets a second wrapper: acquiring an already-wrapped page returns the
// existing wrapper.
func (a *WrapperArena) AcquireFor(page int) (*PageWrapper, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return nil, ErrPoolDestroyed
	}
	if wrapper, ok := a.byPage[page]; ok {
		return wrapper, nil
	}

	var wrapper *PageWrapper
	switch {
	case len(a.free) > 0:
		wrapper = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		wrapper.Root.Show()
	case a.tracked < a.cfg.WrapperPoolSize:
		wrapper = a.buildWrapper(true)
		a.tracked++
	default:
		wrapper = a.buildWrapper(false)
		Logger.Warn("Wrapper arena at capacity, creating transient wrapper",
			"capacity", a.cfg.WrapperPoolSize, "page", page)
	}

	wrapper.Page = page
	wrapper.inUse = true
	wrapper.Root.SetAttribute("data-page", fmt.Sprintf("%d", page))
	a.byPage[page] = wrapper
	return wrapper, nil
}

// buildWrapper assembles the root and layer elements and attaches the root
// to the container
func (a *WrapperArena) buildWrapper(pooled bool) *PageWrapper {
	wrapper := &PageWrapper{
		Root:            a.factory.CreateElement("div"),
		CanvasLayer:     a.factory.CreateElement("canvas"),
		ImageLayer:      a.factory.CreateElement("img"),
		TextLayer:       a.factory.CreateElement("div"),
		AnnotationLayer: a.factory.CreateElement("div"),
		pooled:          pooled,
	}
	wrapper.Root.AppendChild(wrapper.CanvasLayer)
	wrapper.Root.AppendChild(wrapper.ImageLayer)
	wrapper.Root.AppendChild(wrapper.TextLayer)
	wrapper.Root.AppendChild(wrapper.AnnotationLayer)
	a.container.AppendChild(wrapper.Root)
	return wrapper
}

// WrapperFor returns the active wrapper for a page, if any
func (a *WrapperArena) WrapperFor(page int) (*PageWrapper, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	wrapper, ok := a.byPage[page]
	return wrapper, ok
}

// ReleaseFor retires a page's wrapper. Pooled wrappers are cleared and hidden
// but stay attached for reuse; transient ones are removed from the tree.
func (a *WrapperArena) ReleaseFor(page int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	wrapper, ok := a.byPage[page]
	if !ok {
		return
	}
	delete(a.byPage, page)
	a.retireLocked(wrapper)
}

func (a *WrapperArena) retireLocked(wrapper *PageWrapper) {
	wrapper.inUse = false
	wrapper.CanvasLayer.Clear()
	wrapper.ImageLayer.Clear()
	wrapper.TextLayer.Clear()
	wrapper.AnnotationLayer.Clear()

	if wrapper.pooled {
		wrapper.Root.Hide()
		a.free = append(a.free, wrapper)
	} else {
		wrapper.Root.Remove()
	}
}

// ActivePages returns the pages that currently hold a wrapper
func (a *WrapperArena) ActivePages() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	pages := make([]int, 0, len(a.byPage))
	for page := range a.byPage {
		pages = append(pages, page)
	}
	return pages
}

// Stats reports arena occupancy
func (a *WrapperArena) Stats() PoolStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := PoolStats{Tracked: a.tracked, Free: len(a.free)}
	for _, wrapper := range a.byPage {
		if wrapper.pooled {
			stats.InUse++
		} else {
			stats.Overflow++
		}
	}
	return stats
}

// Destroy removes every wrapper, pooled or not, and marks the arena unusable
func (a *WrapperArena) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for page, wrapper := range a.byPage {
		wrapper.Root.Remove()
		delete(a.byPage, page)
	}
	for _, wrapper := range a.free {
		wrapper.Root.Remove()
	}
	a.free = nil
	a.tracked = 0
	a.destroyed = true
}
