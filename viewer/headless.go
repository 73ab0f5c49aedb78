package viewer

import (
	"image"
	"sync"
)

// HeadlessElement is an Element with no browser behind it. The HTTP server
// runs viewer instances against these; clients read layout and page images
// over the API instead of watching a DOM. Render completions write from
// scheduler goroutines, so every mutation locks.
type HeadlessElement struct {
	mu       sync.Mutex
	kind     string
	styles   map[string]string
	attrs    map[string]string
	text     string
	img      image.Image
	children []*HeadlessElement
	parent   *HeadlessElement
	hidden   bool
}

// NewHeadlessElement creates a detached element of the given kind
func NewHeadlessElement(kind string) *HeadlessElement {
	return &HeadlessElement{
		kind:   kind,
		styles: make(map[string]string),
		attrs:  make(map[string]string),
	}
}

func (e *HeadlessElement) SetStyle(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.styles[name] = value
}

func (e *HeadlessElement) SetAttribute(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

func (e *HeadlessElement) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

func (e *HeadlessElement) SetImage(img image.Image) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.img = img
}

func (e *HeadlessElement) Show() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = false
}

func (e *HeadlessElement) Hide() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = true
}

func (e *HeadlessElement) AppendChild(child Element) {
	el := child.(*HeadlessElement)
	e.mu.Lock()
	defer e.mu.Unlock()
	el.parent = e
	e.children = append(e.children, el)
}

func (e *HeadlessElement) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = ""
	e.img = nil
}

func (e *HeadlessElement) Remove() {
	e.mu.Lock()
	parent := e.parent
	e.parent = nil
	e.mu.Unlock()

	if parent == nil {
		return
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	for i, child := range parent.children {
		if child == e {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
}

// Image returns the most recent image attached to this element
func (e *HeadlessElement) Image() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.img
}

// HeadlessFactory builds headless elements for server-side instances
type HeadlessFactory struct{}

func (HeadlessFactory) CreateElement(kind string) Element {
	return NewHeadlessElement(kind)
}
