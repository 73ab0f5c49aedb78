package pdfsource

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	os.Exit(m.Run())
}

func TestStaticDocumentPages(t *testing.T) {
	doc := NewStaticDocument(3, 612, 792)
	defer doc.Close()

	if doc.NumPages() != 3 {
		t.Fatalf("Expected 3 pages, got %d", doc.NumPages())
	}

	page, err := doc.Page(2)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if page.Number() != 2 {
		t.Errorf("Expected page number 2, got %d", page.Number())
	}
	w, h := page.Size()
	if w != 612 || h != 792 {
		t.Errorf("Expected 612x792, got %fx%f", w, h)
	}

	if _, err := doc.Page(0); err == nil {
		t.Error("Expected error for page 0")
	}
	if _, err := doc.Page(4); err == nil {
		t.Error("Expected error for out of range page")
	}
}

func TestStaticRenderScalesAndFills(t *testing.T) {
	doc := NewStaticDocument(2, 100, 200)
	defer doc.Close()

	page, _ := doc.Page(1)
	img, err := page.Render(context.Background(), Viewport{Scale: 2, Width: 200, Height: 400})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 400 {
		t.Errorf("Expected 200x400 raster, got %v", img.Bounds())
	}

	want := pageColor(1)
	if got := color.RGBAModel.Convert(img.At(50, 50)); got != want {
		t.Errorf("Expected fill %v, got %v", want, got)
	}

	if rendered := doc.RenderedPages(); len(rendered) != 1 || rendered[0] != 1 {
		t.Errorf("Expected rendered pages [1], got %v", rendered)
	}
}

func TestStaticRenderHonoursCancellation(t *testing.T) {
	doc := NewStaticDocument(1, 100, 100)
	defer doc.Close()
	doc.SetRenderDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	page, _ := doc.Page(1)

	done := make(chan error, 1)
	go func() {
		_, err := page.Render(ctx, Viewport{Scale: 1, Width: 100, Height: 100})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Render did not observe cancellation")
	}

	if rendered := doc.RenderedPages(); len(rendered) != 0 {
		t.Errorf("Cancelled render must not count as rendered, got %v", rendered)
	}
}

func TestStaticDocumentWithSizes(t *testing.T) {
	doc := NewStaticDocumentWithSizes([]Viewport{
		{Scale: 1, Width: 612, Height: 792},
		{Scale: 1, Width: 842, Height: 595},
	})
	defer doc.Close()

	page, _ := doc.Page(2)
	w, h := page.Size()
	if w != 842 || h != 595 {
		t.Errorf("Expected per-page size 842x595, got %fx%f", w, h)
	}
}

func TestProgressReader(t *testing.T) {
	data := strings.Repeat("x", 1000)
	var reports []int64
	r := newProgressReader(bytes.NewReader([]byte(data)), int64(len(data)), func(done, total int64) {
		reports = append(reports, done)
		if total != int64(len(data)) {
			t.Errorf("Expected total %d, got %d", len(data), total)
		}
	})

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("Expected %d bytes, got %d", len(data), len(out))
	}
	if len(reports) == 0 || reports[len(reports)-1] != int64(len(data)) {
		t.Errorf("Expected final progress report %d, got %v", len(data), reports)
	}
}

func TestProgressReaderNilCallbackPassThrough(t *testing.T) {
	src := bytes.NewReader([]byte("abc"))
	if r := newProgressReader(src, 3, nil); r != io.Reader(src) {
		t.Error("Expected nil callback to return the source reader unchanged")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("nonexistent.pdf", "ghostscript", OpenOptions{}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestTextIndexSearch(t *testing.T) {
	idx := &TextIndex{pages: []string{
		"The quick brown fox",
		"jumps over the lazy dog",
		"QUICK again",
	}}

	if got := idx.Search("quick"); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Expected matches [1 3], got %v", got)
	}
	if got := idx.Search(""); got != nil {
		t.Errorf("Expected no matches for empty query, got %v", got)
	}
	if idx.PageText(2) != "jumps over the lazy dog" {
		t.Errorf("Unexpected page text: %q", idx.PageText(2))
	}
	if idx.PageText(99) != "" {
		t.Error("Expected empty text for out of range page")
	}
}
