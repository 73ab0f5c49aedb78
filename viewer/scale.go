package viewer

import (
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/drummonds/goPDFView/config"
)

// ScrollAnchor captures the reading position before a scale change so it can
// be restored afterwards: the center page and the viewport top's offset into
// it, in scaled pixels at the scale it was captured at
type ScrollAnchor struct {
	Page   int     `json:"page"`
	Offset float64 `json:"offset"`
	Scale  float64 `json:"scale"`
}

// ScaleManager owns the current display scale and the two-phase zoom math.
// The quick phase stretches existing rasters in place; the full phase
// re-renders through the scheduler. Zoom never moves the content under the
// reader: the anchor restores the same document position at the new scale.
type ScaleManager struct {
	mu    sync.Mutex
	cfg   config.ViewerConfig
	scale float64
}

// NewScaleManager starts at scale 1.0
func NewScaleManager(cfg config.ViewerConfig) *ScaleManager {
	return &ScaleManager{cfg: cfg, scale: 1.0}
}

// Scale returns the current display scale
func (m *ScaleManager) Scale() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scale
}

// clamp bounds a requested scale to the configured range
func (m *ScaleManager) clamp(scale float64) float64 {
	if scale < m.cfg.MinScale {
		return m.cfg.MinScale
	}
	if scale > m.cfg.MaxScale {
		return m.cfg.MaxScale
	}
	return scale
}

// SetScale clamps and applies a new display scale, returning the applied
// value and whether it differs from the previous one
func (m *ScaleManager) SetScale(target float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := m.clamp(target)
	changed := applied != m.scale
	m.scale = applied
	return applied, changed
}

// ZoomIn steps the scale up by the configured increment
func (m *ScaleManager) ZoomIn() (float64, bool) {
	return m.SetScale(m.Scale() + m.cfg.ZoomStep)
}

// ZoomOut steps the scale down by the configured increment
func (m *ScaleManager) ZoomOut() (float64, bool) {
	return m.SetScale(m.Scale() - m.cfg.ZoomStep)
}

// FitWidth computes and applies the scale that makes the widest page fill the
// container width
func (m *ScaleManager) FitWidth(containerWidth, pageWidth float64) (float64, bool) {
	if pageWidth <= 0 || containerWidth <= 0 {
		return m.Scale(), false
	}
	return m.SetScale(containerWidth / pageWidth)
}

// RequiresRerender reports whether the relative scale change is large enough
// to justify rasterizing again. Small deltas keep the stretched raster.
func (m *ScaleManager) RequiresRerender(oldScale, newScale float64) bool {
	if oldScale <= 0 {
		return true
	}
	return math.Abs(newScale-oldScale)/oldScale > m.cfg.RerenderThreshold
}

// OptimalRenderScale caps the rasterization scale. Beyond the cap the raster
// is stretched in CSS instead of burning memory on enormous surfaces.
func (m *ScaleManager) OptimalRenderScale(displayScale float64) float64 {
	if m.cfg.MaxRenderScale > 0 && displayScale > m.cfg.MaxRenderScale {
		return m.cfg.MaxRenderScale
	}
	return displayScale
}

// NeedsTiling reports whether a display scale is past the single-raster cap.
// There the high resolution tier switches from one stretched page bitmap to
// visible tiles rasterized at the true scale.
func (m *ScaleManager) NeedsTiling(displayScale float64) bool {
	return m.cfg.MaxRenderScale > 0 && displayScale > m.cfg.MaxRenderScale
}

// CaptureAnchor records the current reading position relative to the center
// page, at the current scale
func (m *ScaleManager) CaptureAnchor(scrollTop float64, positions map[int]PageDimensions, centerPage int) ScrollAnchor {
	anchor := ScrollAnchor{Page: centerPage, Scale: m.Scale()}
	if dims, ok := positions[centerPage]; ok {
		anchor.Offset = scrollTop - dims.Top
	}
	return anchor
}

// RestoreScrollTop computes the scroll position that shows the anchored
// document point at the new scale: the page's new top plus the captured
// offset scaled by the ratio of the two scales
func (m *ScaleManager) RestoreScrollTop(anchor ScrollAnchor, newPositions map[int]PageDimensions, newScale float64) float64 {
	dims, ok := newPositions[anchor.Page]
	if !ok {
		return 0
	}
	ratio := 1.0
	if anchor.Scale > 0 {
		ratio = newScale / anchor.Scale
	}
	top := dims.Top + anchor.Offset*ratio
	if top < 0 {
		top = 0
	}
	return top
}

// StretchRaster resizes an existing raster to the target size for the quick
// zoom phase. Linear filtering keeps it cheap; the full re-render replaces it.
func StretchRaster(src image.Image, width, height int) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return imaging.Resize(src, width, height, imaging.Linear)
}
