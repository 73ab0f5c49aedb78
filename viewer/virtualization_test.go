package viewer

import (
	"testing"

	"github.com/drummonds/goPDFView/config"
)

func uniformPages(count int, width, height float64) []PageSize {
	pages := make([]PageSize, count)
	for i := range pages {
		pages[i] = PageSize{Width: width, Height: height}
	}
	return pages
}

func TestCalculatePagePositionsStacksVertically(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	cfg.PageGap = 10

	positions := CalculatePagePositions(uniformPages(3, 600, 800), cfg)

	if len(positions) != 3 {
		t.Fatalf("Expected 3 positions, got %d", len(positions))
	}
	if positions[1].Top != 10 {
		t.Errorf("Expected first page at top 10, got %f", positions[1].Top)
	}
	if positions[2].Top != 820 {
		t.Errorf("Expected second page at top 820, got %f", positions[2].Top)
	}
	if positions[3].Top != 1630 {
		t.Errorf("Expected third page at top 1630, got %f", positions[3].Top)
	}
}

func TestCalculatePagePositionsCentersNarrowPages(t *testing.T) {
	cfg := config.DefaultViewerConfig()

	pages := []PageSize{
		{Width: 600, Height: 800},
		{Width: 400, Height: 800}, // narrower, should be centered
	}
	positions := CalculatePagePositions(pages, cfg)

	if positions[1].Left != 0 {
		t.Errorf("Expected widest page at left 0, got %f", positions[1].Left)
	}
	if positions[2].Left != 100 {
		t.Errorf("Expected narrow page centered at left 100, got %f", positions[2].Left)
	}
}

func TestCalculatePagePositionsEmptyDocument(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	positions := CalculatePagePositions(nil, cfg)
	if len(positions) != 0 {
		t.Errorf("Expected no positions for empty document, got %d", len(positions))
	}

	result := CalculateVisiblePages(ViewportState{ContainerHeight: 500}, positions, cfg, nil)
	if len(result.PagesToRender) != 0 || result.CenterPage != 0 {
		t.Errorf("Expected empty result for empty document, got %+v", result)
	}
}

// Interval intersection example: pages at tops {0,100,220} with heights
// {90,110,95} and a viewport of [80,190] must see exactly the first two.
func TestCalculateVisiblePagesIntersection(t *testing.T) {
	cfg := config.DefaultViewerConfig()

	positions := map[int]PageDimensions{
		1: {PageNumber: 1, Top: 0, Height: 90, Width: 600},
		2: {PageNumber: 2, Top: 100, Height: 110, Width: 600},
		3: {PageNumber: 3, Top: 220, Height: 95, Width: 600},
	}
	viewport := ViewportState{ScrollTop: 80, ContainerHeight: 110}

	result := CalculateVisiblePages(viewport, positions, cfg, nil)

	if len(result.VisiblePages) != 2 || result.VisiblePages[0] != 1 || result.VisiblePages[1] != 2 {
		t.Errorf("Expected visible pages [1 2], got %v", result.VisiblePages)
	}
}

func TestCalculateVisiblePagesRenderWindow(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	cfg.PageBufferSize = 2
	cfg.PageGap = 0

	positions := CalculatePagePositions(uniformPages(20, 600, 100), cfg)
	// Viewport centered on page 10
	viewport := ViewportState{ScrollTop: 900, ContainerHeight: 100}

	result := CalculateVisiblePages(viewport, positions, cfg, []int{1, 2, 3, 9, 10})

	if result.CenterPage != 10 {
		t.Fatalf("Expected center page 10, got %d", result.CenterPage)
	}
	expected := []int{8, 9, 10, 11, 12}
	if len(result.PagesToRender) != len(expected) {
		t.Fatalf("Expected render set %v, got %v", expected, result.PagesToRender)
	}
	for i, page := range expected {
		if result.PagesToRender[i] != page {
			t.Errorf("Expected render set %v, got %v", expected, result.PagesToRender)
			break
		}
	}
	// 1, 2 and 3 are outside [8,12] and currently rendered
	if len(result.PagesToRemove) != 3 {
		t.Errorf("Expected 3 pages to remove, got %v", result.PagesToRemove)
	}
}

func TestCalculateVisiblePagesClampsToDocument(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	cfg.PageBufferSize = 3
	cfg.PageGap = 0

	positions := CalculatePagePositions(uniformPages(100, 600, 100), cfg)
	viewport := ViewportState{ScrollTop: 0, ContainerHeight: 200}

	result := CalculateVisiblePages(viewport, positions, cfg, nil)

	// Center near page 1, window clamped to [1, 4]
	expected := []int{1, 2, 3, 4}
	if len(result.PagesToRender) != len(expected) {
		t.Fatalf("Expected render set %v, got %v", expected, result.PagesToRender)
	}
	for i, page := range expected {
		if result.PagesToRender[i] != page {
			t.Fatalf("Expected render set %v, got %v", expected, result.PagesToRender)
		}
	}
}

func TestCalculateVisiblePagesZeroHeightContainer(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	positions := CalculatePagePositions(uniformPages(5, 600, 800), cfg)

	result := CalculateVisiblePages(ViewportState{ScrollTop: 0, ContainerHeight: 0}, positions, cfg, nil)

	if len(result.PagesToRender) < 1 {
		t.Error("Expected at least one page loaded with a collapsed container")
	}
}

func TestCalculateVisiblePagesFirstPageTallerThanViewport(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	positions := CalculatePagePositions(uniformPages(5, 600, 2000), cfg)

	result := CalculateVisiblePages(ViewportState{ScrollTop: 0, ContainerHeight: 400}, positions, cfg, nil)

	if len(result.VisiblePages) != 1 || result.VisiblePages[0] != 1 {
		t.Errorf("Expected only page 1 visible, got %v", result.VisiblePages)
	}
	if result.CenterPage != 1 {
		t.Errorf("Expected center page 1, got %d", result.CenterPage)
	}
}

func TestSinglePageMode(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	cfg.SinglePageMode = true
	cfg.PageGap = 0

	positions := CalculatePagePositions(uniformPages(10, 600, 100), cfg)
	viewport := ViewportState{ScrollTop: 450, ContainerHeight: 100}

	result := CalculateVisiblePages(viewport, positions, cfg, []int{4, 5, 6})

	if len(result.PagesToRender) != 1 {
		t.Fatalf("Expected exactly one page to render, got %v", result.PagesToRender)
	}
	center := result.PagesToRender[0]
	for _, page := range result.PagesToRemove {
		if page == center {
			t.Errorf("Center page %d must not be in the removal set %v", center, result.PagesToRemove)
		}
	}
	if len(result.PagesToRemove) != 2 {
		t.Errorf("Expected 2 pages removed, got %v", result.PagesToRemove)
	}
}

func TestCalculateRenderPriority(t *testing.T) {
	if got := CalculateRenderPriority(5, 5, true); got != 0 {
		t.Errorf("Expected priority 0 for the center page, got %d", got)
	}
	if got := CalculateRenderPriority(3, 5, true); got != 2 {
		t.Errorf("Expected priority 2, got %d", got)
	}
	// A visible page two away must beat a buffered page one away
	visible := CalculateRenderPriority(7, 5, true)
	buffered := CalculateRenderPriority(6, 5, false)
	if visible >= buffered {
		t.Errorf("Expected visible page priority %d to beat buffered %d", visible, buffered)
	}
}

func TestTotalHeight(t *testing.T) {
	cfg := config.DefaultViewerConfig()
	cfg.PageGap = 10
	positions := CalculatePagePositions(uniformPages(2, 600, 100), cfg)

	// gap + page + gap + page + gap
	if got := TotalHeight(positions, cfg); got != 230 {
		t.Errorf("Expected total height 230, got %f", got)
	}
	if got := TotalHeight(nil, cfg); got != 0 {
		t.Errorf("Expected zero height for empty layout, got %f", got)
	}
}
