package webapp

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/goPDFView/viewer"
)

// DOMElement backs the wrapper arena with a real browser element when the
// engine runs inside the wasm app. Images land as PNG data URLs on an img
// child so the canvas layer needs no JS canvas API.
type DOMElement struct {
	value app.Value
}

// NewDOMElement creates a detached element of the given kind
func NewDOMElement(kind string) *DOMElement {
	document := app.Window().Get("document")
	return &DOMElement{value: document.Call("createElement", kind)}
}

// Value exposes the underlying browser element
func (e *DOMElement) Value() app.Value {
	return e.value
}

func (e *DOMElement) SetStyle(name, value string) {
	e.value.Get("style").Call("setProperty", name, value)
}

func (e *DOMElement) SetAttribute(name, value string) {
	e.value.Call("setAttribute", name, value)
}

func (e *DOMElement) SetText(text string) {
	e.value.Set("textContent", text)
}

func (e *DOMElement) SetImage(img image.Image) {
	if img == nil {
		e.value.Set("innerHTML", "")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	e.value.Set("innerHTML", "")
	imgEl := app.Window().Get("document").Call("createElement", "img")
	imgEl.Set("src", dataURL)
	imgEl.Get("style").Call("setProperty", "width", "100%")
	imgEl.Get("style").Call("setProperty", "height", "100%")
	e.value.Call("appendChild", imgEl)
}

func (e *DOMElement) AppendChild(child viewer.Element) {
	el := child.(*DOMElement)
	e.value.Call("appendChild", el.value)
}

func (e *DOMElement) Show() {
	e.value.Get("style").Call("removeProperty", "display")
}

func (e *DOMElement) Hide() {
	e.value.Get("style").Call("setProperty", "display", "none")
}

func (e *DOMElement) Clear() {
	e.value.Set("innerHTML", "")
	e.value.Set("textContent", "")
}

func (e *DOMElement) Remove() {
	e.value.Call("remove")
}

// DOMFactory builds browser elements for the wrapper arena
type DOMFactory struct{}

func (DOMFactory) CreateElement(kind string) viewer.Element {
	return NewDOMElement(kind)
}
