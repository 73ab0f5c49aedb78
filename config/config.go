package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ID               int `json:"-"` // config is stored as row 1 in the database
	ListenAddrIP     string
	ListenAddrPort   string
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
	DocumentPath     string // root folder served documents are opened from
	UseReverseProxy  bool
	BaseURL          string
	MaintenanceSecs  int // interval for pool cleanup / memory poll jobs
	ViewerConfig
	FrontEndConfig
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
}

// ViewerConfig stores the per-instance viewer engine tunables
type ViewerConfig struct {
	PageBufferSize      int     // pages kept rendered either side of the center page
	PageGap             float64 // vertical gap between pages in CSS pixels
	MaxConcurrentPages  int     // scheduler concurrency cap
	CancelDistance      int     // tasks further than this from the center page get pruned
	CancelMinIntervalMS int     // throttle for bulk distance cancellation
	RapidScrollMS       int     // scroll events closer together than this flag rapid scrolling
	CanvasPoolSize      int
	BitmapPoolSize      int
	BucketStep          int // surface dimensions round up to a multiple of this
	PoolAllowOverflow   bool
	BitmapMaxAgeSecs    int
	WrapperPoolSize     int
	ZoomStep            float64
	MinScale            float64
	MaxScale            float64
	MaxRenderScale      float64 // rasterization cap, CSS bridges the rest
	RerenderThreshold   float64 // relative scale delta below which the CSS stretch is trusted
	TileSize            int
	TileCacheBudget     int
	MemoryBudgetMB      int // heap budget used by the pressure heuristic
	SinglePageMode      bool
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// DefaultViewerConfig returns the viewer tunables with their stock values,
// without consulting the environment. Tests build on this.
func DefaultViewerConfig() ViewerConfig {
	return ViewerConfig{
		PageBufferSize:      3,
		PageGap:             10,
		MaxConcurrentPages:  2,
		CancelDistance:      5,
		CancelMinIntervalMS: 100,
		RapidScrollMS:       50,
		CanvasPoolSize:      12,
		BitmapPoolSize:      8,
		BucketStep:          256,
		PoolAllowOverflow:   true,
		BitmapMaxAgeSecs:    60,
		WrapperPoolSize:     16,
		ZoomStep:            0.25,
		MinScale:            0.25,
		MaxScale:            10,
		MaxRenderScale:      3,
		RerenderThreshold:   0.1,
		TileSize:            512,
		TileCacheBudget:     32,
		MemoryBudgetMB:      512,
	}
}

// loadViewerConfig reads the viewer tunables from the environment
func loadViewerConfig() ViewerConfig {
	defaults := DefaultViewerConfig()
	return ViewerConfig{
		PageBufferSize:      getEnvInt("PAGE_BUFFER_SIZE", defaults.PageBufferSize),
		PageGap:             getEnvFloat("PAGE_GAP", defaults.PageGap),
		MaxConcurrentPages:  getEnvInt("MAX_CONCURRENT_PAGES", defaults.MaxConcurrentPages),
		CancelDistance:      getEnvInt("CANCEL_DISTANCE", defaults.CancelDistance),
		CancelMinIntervalMS: getEnvInt("CANCEL_MIN_INTERVAL_MS", defaults.CancelMinIntervalMS),
		RapidScrollMS:       getEnvInt("RAPID_SCROLL_MS", defaults.RapidScrollMS),
		CanvasPoolSize:      getEnvInt("CANVAS_POOL_SIZE", defaults.CanvasPoolSize),
		BitmapPoolSize:      getEnvInt("BITMAP_POOL_SIZE", defaults.BitmapPoolSize),
		BucketStep:          getEnvInt("POOL_BUCKET_STEP", defaults.BucketStep),
		PoolAllowOverflow:   getEnvBool("POOL_ALLOW_OVERFLOW", defaults.PoolAllowOverflow),
		BitmapMaxAgeSecs:    getEnvInt("BITMAP_MAX_AGE_SECS", defaults.BitmapMaxAgeSecs),
		WrapperPoolSize:     getEnvInt("WRAPPER_POOL_SIZE", defaults.WrapperPoolSize),
		ZoomStep:            getEnvFloat("ZOOM_STEP", defaults.ZoomStep),
		MinScale:            getEnvFloat("MIN_SCALE", defaults.MinScale),
		MaxScale:            getEnvFloat("MAX_SCALE", defaults.MaxScale),
		MaxRenderScale:      getEnvFloat("MAX_RENDER_SCALE", defaults.MaxRenderScale),
		RerenderThreshold:   getEnvFloat("RERENDER_THRESHOLD", defaults.RerenderThreshold),
		TileSize:            getEnvInt("TILE_SIZE", defaults.TileSize),
		TileCacheBudget:     getEnvInt("TILE_CACHE_BUDGET", defaults.TileCacheBudget),
		MemoryBudgetMB:      getEnvInt("MEMORY_BUDGET_MB", defaults.MemoryBudgetMB),
		SinglePageMode:      getEnvBool("SINGLE_PAGE_MODE", false),
	}
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration (document library and view-state store)
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "gopdfview")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "gopdfview")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	// Document storage configuration
	documentPathRelative := filepath.ToSlash(getEnv("DOCUMENT_PATH", "documents"))
	documentPathAbs, err := filepath.Abs(documentPathRelative)
	if err != nil {
		logger.Error("Error creating document path", "path", documentPathRelative, "error", err)
	}
	serverConfigLive.DocumentPath = documentPathAbs

	// Reverse proxy configuration
	serverConfigLive.UseReverseProxy = getEnvBool("PROXY_ENABLED", false)
	serverConfigLive.BaseURL = getEnv("BASE_URL", "https://gopdfview.domain.org")

	if serverConfigLive.UseReverseProxy {
		logger.Info("Using Reverse Proxy", "baseURL", serverConfigLive.BaseURL)
	} else {
		logger.Info("Using relative URLs for API calls (frontend will use same host it was served from)")
	}

	serverConfigLive.MaintenanceSecs = getEnvInt("MAINTENANCE_SECS", 30)
	serverConfigLive.ViewerConfig = loadViewerConfig()
	serverConfigLive.ServerAPIURL = getEnv("SERVER_API_URL", "")

	fmt.Println("\n========================================")
	fmt.Println("   goPDFView - PDF Viewing Engine")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "gopdfview.log"))
	fmt.Println("Initializing...")

	logger.Info("Viewer configuration loaded",
		"pageBuffer", serverConfigLive.PageBufferSize,
		"maxConcurrent", serverConfigLive.MaxConcurrentPages,
		"canvasPool", serverConfigLive.CanvasPoolSize)

	return serverConfigLive, logger
}

// SetupFrontend loads configuration for frontend-only server
func SetupFrontend() (FrontEndConfig, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("frontend.env")

	logger := setupLogging()
	Logger = logger

	frontendConfig := FrontEndConfig{}
	frontendConfig.ServerAPIURL = getEnv("SERVER_API_URL", "http://localhost:8000")

	logger.Info("Frontend configuration loaded", "apiURL", frontendConfig.ServerAPIURL)

	return frontendConfig, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "gopdfview.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// GetPreferredOutboundIP gets preferred outbound IP of this machine
func GetPreferredOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP, nil
}
