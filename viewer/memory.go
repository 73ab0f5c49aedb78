package viewer

import (
	"runtime"
	"strings"
	"sync"

	"github.com/drummonds/goPDFView/config"
)

// PressureLevel grades how constrained memory currently is
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureLow
	PressureMedium
	PressureHigh
	PressureCritical
)

func (l PressureLevel) String() string {
	switch l {
	case PressureNone:
		return "none"
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	}
	return "unknown"
}

// PressureSource reports the current memory pressure. The runtime heap source
// is the default; environments with better signals plug in their own.
type PressureSource interface {
	Level() PressureLevel
}

// HeapPressureSource grades pressure by the live heap against a configured
// budget in megabytes
type HeapPressureSource struct {
	BudgetMB int
}

func (s *HeapPressureSource) Level() PressureLevel {
	if s.BudgetMB <= 0 {
		return PressureNone
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return gradeRatio(float64(stats.HeapAlloc) / (float64(s.BudgetMB) * 1024 * 1024))
}

// gradeRatio maps a used/budget ratio onto a pressure level
func gradeRatio(ratio float64) PressureLevel {
	switch {
	case ratio < 0.5:
		return PressureNone
	case ratio < 0.65:
		return PressureLow
	case ratio < 0.8:
		return PressureMedium
	case ratio < 0.9:
		return PressureHigh
	default:
		return PressureCritical
	}
}

// DeviceClassSource is the fallback when no heap budget is configured: a
// coarse guess from the machine's core count. Small devices start at low
// pressure so the tunables stay conservative.
type DeviceClassSource struct{}

func (s *DeviceClassSource) Level() PressureLevel {
	if runtime.NumCPU() <= 2 {
		return PressureLow
	}
	return PressureNone
}

// staticPressureSource pins the level, used by tests and overrides
type staticPressureSource struct {
	level PressureLevel
}

func (s *staticPressureSource) Level() PressureLevel {
	return s.level
}

// MemoryManager polls a pressure source and translates the level into the
// two levers the engine exposes: scheduler concurrency and render buffer
// radius. High and critical levels additionally shrink the pools.
type MemoryManager struct {
	mu     sync.Mutex
	cfg    config.ViewerConfig
	source PressureSource
	level  PressureLevel
}

// NewMemoryManager picks the heap source when a budget is configured and the
// device-class fallback otherwise. Pass a source to override.
func NewMemoryManager(cfg config.ViewerConfig, source PressureSource) *MemoryManager {
	if source == nil {
		if cfg.MemoryBudgetMB > 0 {
			source = &HeapPressureSource{BudgetMB: cfg.MemoryBudgetMB}
		} else {
			source = &DeviceClassSource{}
		}
	}
	return &MemoryManager{cfg: cfg, source: source}
}

// Level returns the most recently polled pressure level
func (m *MemoryManager) Level() PressureLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// ConcurrencyForLevel maps a pressure level to the scheduler's concurrency cap
func (m *MemoryManager) ConcurrencyForLevel(level PressureLevel) int {
	base := m.cfg.MaxConcurrentPages
	if base < 1 {
		base = 1
	}
	switch level {
	case PressureNone, PressureLow:
		return base
	case PressureMedium:
		if base > 2 {
			return 2
		}
		return base
	default:
		return 1
	}
}

// BufferForLevel maps a pressure level to the render buffer radius
func (m *MemoryManager) BufferForLevel(level PressureLevel) int {
	base := m.cfg.PageBufferSize
	if base < 1 {
		base = 1
	}
	switch level {
	case PressureNone, PressureLow:
		return base
	case PressureMedium:
		if base > 2 {
			return 2
		}
		return base
	case PressureHigh:
		if base > 1 {
			return base / 2
		}
		return 1
	default:
		return 1
	}
}

// Poll reads the source, applies the concurrency lever to the scheduler and
// shrinks the pools when pressure is high. Returns the level and the buffer
// radius callers should virtualize with.
func (m *MemoryManager) Poll(scheduler *RenderScheduler, canvases *CanvasPool, bitmaps *BitmapPool) (PressureLevel, int) {
	level := m.source.Level()

	m.mu.Lock()
	previous := m.level
	m.level = level
	m.mu.Unlock()

	if level != previous {
		Logger.Info("Memory pressure level changed", "from", previous.String(), "to", level.String())
	}

	if scheduler != nil {
		scheduler.SetMaxConcurrent(m.ConcurrencyForLevel(level))
	}
	if level >= PressureHigh {
		if canvases != nil {
			canvases.HandleMemoryPressure()
		}
		if bitmaps != nil {
			bitmaps.HandleMemoryPressure()
		}
	}
	return level, m.BufferForLevel(level)
}

// Accelerator describes the rendering accelerator reported by the host
type Accelerator struct {
	Vendor   string `json:"vendor"`
	Renderer string `json:"renderer"`
}

// Software rasterizers that report as GPUs; hardware compositing on these is
// slower than the plain path
var knownBadAccelerators = []string{
	"swiftshader",
	"llvmpipe",
	"softpipe",
	"software rasterizer",
	"microsoft basic render",
}

// UseHardwareAcceleration reports whether compositing through the named
// accelerator is worthwhile. Unknown accelerators are trusted; known
// software fallbacks are not.
func UseHardwareAcceleration(acc Accelerator) bool {
	probe := strings.ToLower(acc.Vendor + " " + acc.Renderer)
	if strings.TrimSpace(probe) == "" {
		return false
	}
	for _, bad := range knownBadAccelerators {
		if strings.Contains(probe, bad) {
			return false
		}
	}
	return true
}
