package viewer

import (
	"math"

	"github.com/drummonds/goPDFView/config"
)

// PageDimensions is the laid-out position of one page. Computed once per
// scale change for the whole document and immutable until the next one.
type PageDimensions struct {
	PageNumber int     `json:"pageNumber"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Top        float64 `json:"top"`
	Left       float64 `json:"left"`
}

// PageSize is the unscaled size of a page as reported by the document
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ViewportState is read fresh on every scroll or resize tick, never persisted
type ViewportState struct {
	ScrollTop       float64 `json:"scrollTop"`
	ContainerHeight float64 `json:"containerHeight"`
	ContainerWidth  float64 `json:"containerWidth"`
}

// VisiblePageResult is the outcome of one virtualization pass
type VisiblePageResult struct {
	VisiblePages  []int `json:"visiblePages"`
	CenterPage    int   `json:"centerPage"`
	PagesToRender []int `json:"pagesToRender"`
	PagesToRemove []int `json:"pagesToRemove"`
}

// Priority penalty for pages inside the render buffer but not intersecting
// the viewport, so visible-but-off-center pages still win.
const notVisiblePenalty = 100

// CalculatePagePositions lays pages out top to bottom with a fixed gap,
// centering each page horizontally within the widest page's width.
// pageSizes is indexed from zero; page numbers start at one.
func CalculatePagePositions(pageSizes []PageSize, cfg config.ViewerConfig) map[int]PageDimensions {
	positions := make(map[int]PageDimensions, len(pageSizes))
	if len(pageSizes) == 0 {
		return positions
	}

	maxWidth := 0.0
	for _, size := range pageSizes {
		if size.Width > maxWidth {
			maxWidth = size.Width
		}
	}

	top := cfg.PageGap
	for i, size := range pageSizes {
		pageNumber := i + 1
		positions[pageNumber] = PageDimensions{
			PageNumber: pageNumber,
			Width:      size.Width,
			Height:     size.Height,
			Top:        top,
			Left:       (maxWidth - size.Width) / 2,
		}
		top += size.Height + cfg.PageGap
	}
	return positions
}

// TotalHeight returns the height of the laid-out document including the
// trailing gap
func TotalHeight(positions map[int]PageDimensions, cfg config.ViewerConfig) float64 {
	bottom := 0.0
	for _, dims := range positions {
		if dims.Top+dims.Height > bottom {
			bottom = dims.Top + dims.Height
		}
	}
	if bottom == 0 {
		return 0
	}
	return bottom + cfg.PageGap
}

// CalculateVisiblePages determines the center page (nearest the viewport's
// vertical center), the pages intersecting the viewport, the render window
// [center-buffer, center+buffer] clamped to the document, and which currently
// rendered pages fall outside that window. In single page mode exactly one
// page is rendered and everything else is removed.
func CalculateVisiblePages(viewport ViewportState, positions map[int]PageDimensions, cfg config.ViewerConfig, currentlyRendered []int) VisiblePageResult {
	result := VisiblePageResult{}
	totalPages := len(positions)
	if totalPages == 0 {
		return result
	}

	// A collapsed container still loads at least one page
	containerHeight := viewport.ContainerHeight
	if containerHeight <= 0 {
		containerHeight = 1
	}

	clamped := viewport
	clamped.ContainerHeight = containerHeight
	viewCenter := viewport.ScrollTop + containerHeight/2

	centerPage := 1
	bestDistance := math.MaxFloat64
	for pageNumber := 1; pageNumber <= totalPages; pageNumber++ {
		dims := positions[pageNumber]
		pageCenter := dims.Top + dims.Height/2
		distance := math.Abs(viewCenter - pageCenter)
		if distance < bestDistance {
			bestDistance = distance
			centerPage = pageNumber
		}

		if intersects(dims, clamped) {
			result.VisiblePages = append(result.VisiblePages, pageNumber)
		}
	}
	result.CenterPage = centerPage

	if cfg.SinglePageMode {
		result.PagesToRender = []int{centerPage}
		for _, page := range currentlyRendered {
			if page != centerPage {
				result.PagesToRemove = append(result.PagesToRemove, page)
			}
		}
		return result
	}

	first := centerPage - cfg.PageBufferSize
	if first < 1 {
		first = 1
	}
	last := centerPage + cfg.PageBufferSize
	if last > totalPages {
		last = totalPages
	}
	for page := first; page <= last; page++ {
		result.PagesToRender = append(result.PagesToRender, page)
	}

	for _, page := range currentlyRendered {
		if page < first || page > last {
			result.PagesToRemove = append(result.PagesToRemove, page)
		}
	}
	return result
}

// CalculateRenderPriority ranks a page for the scheduler: distance from the
// center page, with a fixed penalty when the page is not actually on screen.
// Zero is the most urgent.
func CalculateRenderPriority(pageNumber, centerPage int, isVisible bool) int {
	priority := pageNumber - centerPage
	if priority < 0 {
		priority = -priority
	}
	if !isVisible {
		priority += notVisiblePenalty
	}
	return priority
}

// intersects reports whether a page's vertical extent overlaps the viewport
func intersects(dims PageDimensions, viewport ViewportState) bool {
	viewBottom := viewport.ScrollTop + viewport.ContainerHeight
	return dims.Top < viewBottom && dims.Top+dims.Height > viewport.ScrollTop
}
