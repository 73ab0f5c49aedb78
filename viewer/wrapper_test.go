package viewer

import (
	"image"
	"sync"
	"testing"
)

// fakeElement is an in-memory Element recording mutations for assertions.
// Render completions touch it from scheduler goroutines, so it locks.
type fakeElement struct {
	mu       sync.Mutex
	kind     string
	styles   map[string]string
	attrs    map[string]string
	text     string
	img      image.Image
	children []*fakeElement
	parent   *fakeElement
	hidden   bool
	removed  bool
	cleared  int
}

func newFakeElement(kind string) *fakeElement {
	return &fakeElement{
		kind:   kind,
		styles: make(map[string]string),
		attrs:  make(map[string]string),
	}
}

func (e *fakeElement) SetStyle(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.styles[name] = value
}

func (e *fakeElement) SetAttribute(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

func (e *fakeElement) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

func (e *fakeElement) SetImage(img image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.img = img
}

func (e *fakeElement) Show() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = false
}

func (e *fakeElement) Hide() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = true
}

func (e *fakeElement) AppendChild(child Element) {
	fake := child.(*fakeElement)
	e.mu.Lock()
	defer e.mu.Unlock()
	fake.parent = e
	e.children = append(e.children, fake)
}

func (e *fakeElement) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	e.text = ""
	e.img = nil
}

func (e *fakeElement) Remove() {
	e.mu.Lock()
	parent := e.parent
	e.removed = true
	e.parent = nil
	e.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		for i, child := range parent.children {
			if child == e {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		parent.mu.Unlock()
	}
}

func (e *fakeElement) getImage() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.img
}

func (e *fakeElement) getText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *fakeElement) isHidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

type fakeFactory struct {
	created []*fakeElement
}

func (f *fakeFactory) CreateElement(kind string) Element {
	el := newFakeElement(kind)
	f.created = append(f.created, el)
	return el
}

func newTestArena(t *testing.T) (*WrapperArena, *fakeFactory, *fakeElement) {
	t.Helper()
	factory := &fakeFactory{}
	container := newFakeElement("div")
	arena := NewWrapperArena(testConfig(), factory, container)
	t.Cleanup(arena.Destroy)
	return arena, factory, container
}

func TestAcquireForIsOneWrapperPerPage(t *testing.T) {
	arena, _, container := newTestArena(t)

	first, err := arena.AcquireFor(3)
	if err != nil {
		t.Fatalf("AcquireFor failed: %v", err)
	}
	second, _ := arena.AcquireFor(3)
	if first != second {
		t.Error("Acquiring a wrapped page must return the existing wrapper")
	}
	if len(container.children) != 1 {
		t.Errorf("Expected one attached wrapper, got %d", len(container.children))
	}

	root := first.Root.(*fakeElement)
	if root.attrs["data-page"] != "3" {
		t.Errorf("Expected data-page attribute 3, got %q", root.attrs["data-page"])
	}
	if len(root.children) != 4 {
		t.Errorf("Expected 4 layer children, got %d", len(root.children))
	}
}

func TestReleasedPooledWrapperIsHiddenNotDetached(t *testing.T) {
	arena, _, container := newTestArena(t)

	wrapper, _ := arena.AcquireFor(1)
	root := wrapper.Root.(*fakeElement)
	canvasLayer := wrapper.CanvasLayer.(*fakeElement)

	arena.ReleaseFor(1)

	if root.removed {
		t.Error("Pooled wrapper must stay attached on release")
	}
	if !root.hidden {
		t.Error("Pooled wrapper must be hidden on release")
	}
	if canvasLayer.cleared == 0 {
		t.Error("Layers must be cleared on release")
	}
	if len(container.children) != 1 {
		t.Errorf("Expected wrapper still in the tree, got %d children", len(container.children))
	}

	// Reuse for another page: same slot, shown again
	reused, _ := arena.AcquireFor(2)
	if reused != wrapper {
		t.Error("Expected the freed slot to be reused")
	}
	if root.hidden {
		t.Error("Reused wrapper must be shown")
	}
}

func TestOverflowWrapperIsRemovedOnRelease(t *testing.T) {
	arena, _, container := newTestArena(t)
	cfg := testConfig()

	for page := 1; page <= cfg.WrapperPoolSize; page++ {
		if _, err := arena.AcquireFor(page); err != nil {
			t.Fatalf("AcquireFor(%d) failed: %v", page, err)
		}
	}

	extra, err := arena.AcquireFor(cfg.WrapperPoolSize + 1)
	if err != nil {
		t.Fatalf("AcquireFor overflow failed: %v", err)
	}
	if extra.pooled {
		t.Error("Expected wrapper past capacity to be transient")
	}
	if stats := arena.Stats(); stats.Overflow != 1 {
		t.Errorf("Expected 1 overflow wrapper, got %+v", stats)
	}

	extraRoot := extra.Root.(*fakeElement)
	arena.ReleaseFor(cfg.WrapperPoolSize + 1)

	if !extraRoot.removed {
		t.Error("Transient wrapper must be fully removed on release")
	}
	if len(container.children) != cfg.WrapperPoolSize {
		t.Errorf("Expected %d wrappers attached, got %d", cfg.WrapperPoolSize, len(container.children))
	}
}

func TestSetPositionWritesLayoutStyles(t *testing.T) {
	arena, _, _ := newTestArena(t)

	wrapper, _ := arena.AcquireFor(1)
	wrapper.SetPosition(PageDimensions{PageNumber: 1, Top: 110, Left: 5.5, Width: 612, Height: 792})

	root := wrapper.Root.(*fakeElement)
	if root.styles["top"] != "110.00px" || root.styles["left"] != "5.50px" {
		t.Errorf("Unexpected position styles: %v", root.styles)
	}
	if root.styles["position"] != "absolute" {
		t.Error("Expected absolute positioning")
	}
}

func TestArenaDestroyRemovesEverything(t *testing.T) {
	factory := &fakeFactory{}
	container := newFakeElement("div")
	arena := NewWrapperArena(testConfig(), factory, container)

	arena.AcquireFor(1)
	arena.AcquireFor(2)
	arena.ReleaseFor(2)

	arena.Destroy()

	if len(container.children) != 0 {
		t.Errorf("Expected no wrappers attached after destroy, got %d", len(container.children))
	}
	if _, err := arena.AcquireFor(3); err != ErrPoolDestroyed {
		t.Errorf("Expected ErrPoolDestroyed, got %v", err)
	}
}
