package viewer

import (
	"log/slog"
	"os"
	"testing"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/database"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	database.Logger = Logger
	os.Exit(m.Run())
}

// testConfig returns small tunables so pool and scheduler limits are easy to
// hit in tests
func testConfig() config.ViewerConfig {
	cfg := config.DefaultViewerConfig()
	cfg.CanvasPoolSize = 4
	cfg.BitmapPoolSize = 3
	cfg.BucketStep = 64
	cfg.WrapperPoolSize = 4
	cfg.MaxConcurrentPages = 2
	cfg.CancelMinIntervalMS = 0
	return cfg
}
