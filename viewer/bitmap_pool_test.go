package viewer

import (
	"image"
	"testing"
	"time"
)

func testImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestAdoptTracksUpToCapacity(t *testing.T) {
	cfg := testConfig()
	pool := NewBitmapPool(cfg)
	defer pool.Destroy()

	var bitmaps []*Bitmap
	for i := 0; i < cfg.BitmapPoolSize; i++ {
		bitmap, err := pool.Adopt(testImage(100, 100))
		if err != nil {
			t.Fatalf("Adopt failed: %v", err)
		}
		if !bitmap.pooled {
			t.Error("Expected bitmap below capacity to be tracked")
		}
		bitmaps = append(bitmaps, bitmap)
	}

	if stats := pool.Stats(); stats.Tracked != cfg.BitmapPoolSize {
		t.Errorf("Expected %d tracked, got %d", cfg.BitmapPoolSize, stats.Tracked)
	}

	// All live: the next adoption must be untracked overflow
	extra, err := pool.Adopt(testImage(100, 100))
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if extra.pooled {
		t.Error("Expected overflow bitmap to be untracked")
	}
	if stats := pool.Stats(); stats.Tracked > cfg.BitmapPoolSize {
		t.Errorf("Tracked count %d exceeds capacity", stats.Tracked)
	}
	for _, bitmap := range bitmaps {
		bitmap.Release()
	}
}

func TestAdoptEvictsReleasedEntryAtCapacity(t *testing.T) {
	cfg := testConfig()
	pool := NewBitmapPool(cfg)
	defer pool.Destroy()

	first, _ := pool.Adopt(testImage(50, 50))
	for i := 1; i < cfg.BitmapPoolSize; i++ {
		pool.Adopt(testImage(50, 50))
	}
	first.Release()

	replacement, err := pool.Adopt(testImage(60, 60))
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if !replacement.pooled {
		t.Error("Expected released entry to be evicted so the new bitmap is tracked")
	}
	if stats := pool.Stats(); stats.Tracked != cfg.BitmapPoolSize {
		t.Errorf("Expected tracked count to stay at %d, got %d", cfg.BitmapPoolSize, stats.Tracked)
	}
}

func TestOverflowCountDropsOnRelease(t *testing.T) {
	cfg := testConfig()
	pool := NewBitmapPool(cfg)
	defer pool.Destroy()

	var live []*Bitmap
	for i := 0; i < cfg.BitmapPoolSize; i++ {
		bitmap, err := pool.Adopt(testImage(20, 20))
		if err != nil {
			t.Fatalf("Adopt failed: %v", err)
		}
		live = append(live, bitmap)
	}

	extra, err := pool.Adopt(testImage(20, 20))
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if stats := pool.Stats(); stats.Overflow != 1 {
		t.Fatalf("Expected overflow count 1, got %d", stats.Overflow)
	}

	// Releasing a tracked bitmap must not touch the overflow count
	live[0].Release()
	if stats := pool.Stats(); stats.Overflow != 1 {
		t.Errorf("Tracked release changed overflow count to %d", stats.Overflow)
	}

	extra.Release()
	extra.Release() // idempotent: a double release must not decrement twice
	if stats := pool.Stats(); stats.Overflow != 0 {
		t.Errorf("Expected overflow count back to 0, got %d", stats.Overflow)
	}

	for _, bitmap := range live[1:] {
		bitmap.Release()
	}
}

func TestBitmapReleaseDropsImage(t *testing.T) {
	pool := NewBitmapPool(testConfig())
	defer pool.Destroy()

	bitmap, _ := pool.Adopt(testImage(80, 40))
	if bitmap.Image() == nil {
		t.Fatal("Expected live bitmap to expose its image")
	}
	w, h := bitmap.Size()
	if w != 80 || h != 40 {
		t.Errorf("Expected size 80x40, got %dx%d", w, h)
	}

	bitmap.Release()
	bitmap.Release() // idempotent

	if bitmap.Image() != nil {
		t.Error("Expected released bitmap to return nil image")
	}
	if !bitmap.Released() {
		t.Error("Expected bitmap to report released")
	}
}

func TestBitmapCleanupDropsOldReleased(t *testing.T) {
	pool := NewBitmapPool(testConfig())
	defer pool.Destroy()

	bitmap, _ := pool.Adopt(testImage(10, 10))
	bitmap.Release()
	bitmap.created = time.Now().Add(-time.Hour)

	live, _ := pool.Adopt(testImage(10, 10))

	pool.Cleanup(time.Minute)

	stats := pool.Stats()
	if stats.Tracked != 1 || stats.InUse != 1 {
		t.Errorf("Expected only the live bitmap to survive cleanup, got %+v", stats)
	}
	live.Release()
}

func TestBitmapAdoptAfterDestroyFails(t *testing.T) {
	pool := NewBitmapPool(testConfig())
	pool.Destroy()

	if _, err := pool.Adopt(testImage(10, 10)); err != ErrPoolDestroyed {
		t.Errorf("Expected ErrPoolDestroyed, got %v", err)
	}
}
