package pdfsource

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

// writeMinimalPDF builds a valid one-page blank PDF with a correct xref table
func writeMinimalPDF(t *testing.T) string {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	add := func(obj string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}
	buf.WriteString("%PDF-1.4\n")
	add("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	add("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	add("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 300] >>\nendobj\n")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	path := filepath.Join(t.TempDir(), "blank.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write test PDF: %v", err)
	}
	return path
}

// The WebAssembly engine recycles its render buffer after every request, so
// the raster a render returns must remain readable after later engine calls
func TestPDFiumRenderSurvivesWorkerReuse(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PDFium integration test in short mode")
	}

	doc, err := OpenPDFium(writeMinimalPDF(t), OpenOptions{})
	if err != nil {
		t.Fatalf("OpenPDFium failed: %v", err)
	}
	defer doc.Close()

	if doc.NumPages() != 1 {
		t.Fatalf("Expected 1 page, got %d", doc.NumPages())
	}
	page, err := doc.Page(1)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	w, h := page.Size()
	if w != 200 || h != 300 {
		t.Errorf("Expected 200x300 points, got %fx%f", w, h)
	}

	first, err := page.Render(context.Background(), Viewport{Scale: 1, Width: 200, Height: 300})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	bounds := first.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		t.Fatalf("Expected a non-empty raster, got %v", bounds)
	}

	// A second render reuses the worker; it must not corrupt the first raster
	if _, err := page.Render(context.Background(), Viewport{Scale: 2, Width: 400, Height: 600}); err != nil {
		t.Fatalf("Second render failed: %v", err)
	}

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	center := color.RGBAModel.Convert(first.At(bounds.Dx()/2, bounds.Dy()/2))
	if center != white {
		t.Errorf("Expected blank page fill %v, got %v", white, center)
	}
}
