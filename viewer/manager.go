package viewer

import (
	"fmt"
	"sync"

	"github.com/drummonds/goPDFView/config"
)

// Manager is an explicit registry of viewer instances keyed by container id.
// It is injected wherever instances need looking up; there is no process-wide
// registry. Instances never share pools or state, so the manager is purely a
// directory plus lifecycle fan-out.
type Manager struct {
	mu      sync.Mutex
	cfg     config.ViewerConfig
	viewers map[string]*Viewer
}

// NewManager creates an empty registry
func NewManager(cfg config.ViewerConfig) *Manager {
	return &Manager{cfg: cfg, viewers: make(map[string]*Viewer)}
}

// Create builds a viewer for a container and registers it. A container can
// hold at most one viewer at a time.
func (m *Manager) Create(containerID string, factory ElementFactory, container Element) (*Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.viewers[containerID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrViewerExists, containerID)
	}

	v := NewViewer(m.cfg, factory, container)
	m.viewers[containerID] = v
	Logger.Info("Viewer registered", "container", containerID, "viewer", v.ID())
	return v, nil
}

// Get looks up the viewer for a container
func (m *Manager) Get(containerID string) (*Viewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.viewers[containerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchViewer, containerID)
	}
	return v, nil
}

// Destroy tears down and unregisters the viewer for a container
func (m *Manager) Destroy(containerID string) error {
	m.mu.Lock()
	v, ok := m.viewers[containerID]
	if ok {
		delete(m.viewers, containerID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchViewer, containerID)
	}
	v.Destroy()
	return nil
}

// Containers returns the registered container ids
func (m *Manager) Containers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.viewers))
	for id := range m.viewers {
		ids = append(ids, id)
	}
	return ids
}

// each calls fn on a snapshot of the registered viewers
func (m *Manager) each(fn func(*Viewer)) {
	m.mu.Lock()
	snapshot := make([]*Viewer, 0, len(m.viewers))
	for _, v := range m.viewers {
		snapshot = append(snapshot, v)
	}
	m.mu.Unlock()

	for _, v := range snapshot {
		fn(v)
	}
}

// CleanupPools runs pool cleanup on every instance. Cron entry point.
func (m *Manager) CleanupPools() {
	m.each(func(v *Viewer) { v.CleanupPools() })
}

// PollMemory runs a memory pressure check on every instance. Cron entry point.
func (m *Manager) PollMemory() {
	m.each(func(v *Viewer) { v.PollMemory() })
}

// DestroyAll tears down every registered instance
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	viewers := m.viewers
	m.viewers = make(map[string]*Viewer)
	m.mu.Unlock()

	for id, v := range viewers {
		v.Destroy()
		Logger.Debug("Viewer unregistered", "container", id)
	}
}
