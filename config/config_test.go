package config

import (
	"os"
	"testing"
)

func TestDefaultViewerConfig(t *testing.T) {
	cfg := DefaultViewerConfig()

	if cfg.PageBufferSize != 3 {
		t.Errorf("Expected default page buffer of 3, got %d", cfg.PageBufferSize)
	}
	if cfg.MaxConcurrentPages != 2 {
		t.Errorf("Expected default concurrency of 2, got %d", cfg.MaxConcurrentPages)
	}
	if !cfg.PoolAllowOverflow {
		t.Error("Expected pool overflow to be allowed by default")
	}
	if cfg.MaxRenderScale != 3 {
		t.Errorf("Expected default max render scale of 3, got %f", cfg.MaxRenderScale)
	}
}

func TestLoadViewerConfigFromEnv(t *testing.T) {
	os.Setenv("PAGE_BUFFER_SIZE", "7")
	os.Setenv("POOL_ALLOW_OVERFLOW", "false")
	os.Setenv("ZOOM_STEP", "0.5")
	defer func() {
		os.Unsetenv("PAGE_BUFFER_SIZE")
		os.Unsetenv("POOL_ALLOW_OVERFLOW")
		os.Unsetenv("ZOOM_STEP")
	}()

	cfg := loadViewerConfig()

	if cfg.PageBufferSize != 7 {
		t.Errorf("Expected page buffer of 7 from env, got %d", cfg.PageBufferSize)
	}
	if cfg.PoolAllowOverflow {
		t.Error("Expected pool overflow disabled from env")
	}
	if cfg.ZoomStep != 0.5 {
		t.Errorf("Expected zoom step of 0.5 from env, got %f", cfg.ZoomStep)
	}
}

func TestLoadViewerConfigBadValuesFallBack(t *testing.T) {
	os.Setenv("PAGE_BUFFER_SIZE", "not-a-number")
	os.Setenv("MAX_RENDER_SCALE", "many")
	defer func() {
		os.Unsetenv("PAGE_BUFFER_SIZE")
		os.Unsetenv("MAX_RENDER_SCALE")
	}()

	cfg := loadViewerConfig()
	defaults := DefaultViewerConfig()

	if cfg.PageBufferSize != defaults.PageBufferSize {
		t.Errorf("Expected fallback to default buffer %d, got %d", defaults.PageBufferSize, cfg.PageBufferSize)
	}
	if cfg.MaxRenderScale != defaults.MaxRenderScale {
		t.Errorf("Expected fallback to default render scale %f, got %f", defaults.MaxRenderScale, cfg.MaxRenderScale)
	}
}
