package main

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	config "github.com/drummonds/goPDFView/config"
	database "github.com/drummonds/goPDFView/database"
	viewer "github.com/drummonds/goPDFView/viewer"
	"github.com/drummonds/goPDFView/viewer/pdfsource"
	"github.com/drummonds/goPDFView/webapp"
)

//go:embed web/app.wasm web/wasm_exec.js
var webFS embed.FS

//go:embed webapp/webapp.css
var webappFS embed.FS

//go:embed public/built/favicon.ico public/built/404.html
var publicFS embed.FS

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	database.Logger = Logger
	viewer.Logger = Logger
	pdfsource.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	// Show info banner if using ephemeral database
	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("\n" + strings.Repeat("=", 50))
		fmt.Println("🚀  EPHEMERAL DATABASE MODE")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println("• Database will be destroyed on exit")
		fmt.Println("• Perfect for testing and development")
		fmt.Println("• No persistent data storage")
		fmt.Println(strings.Repeat("=", 50) + "\n")
	}

	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db := database.NewRepository(serverConfig)
	defer db.Close()
	Logger.Info("Database setup complete")

	e := echo.New()
	e.HideBanner = true

	// Custom 404 handler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		if code == http.StatusNotFound {
			// Return JSON for API endpoints
			if strings.HasPrefix(c.Request().URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, map[string]string{
					"error":   "Not Found",
					"message": "The requested API endpoint does not exist",
					"path":    c.Request().URL.Path,
				})
				return
			}

			// For non-API requests, serve custom 404 HTML from embedded filesystem
			if data, err := publicFS.ReadFile("public/built/404.html"); err == nil {
				c.HTMLBlob(http.StatusNotFound, data)
				return
			}
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}

	manager := viewer.NewManager(serverConfig.ViewerConfig)
	defer manager.DestroyAll()

	serverHandler := viewer.ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Manager:      manager,
	}

	Logger.Info("About to initialize schedules")
	maintenance := viewer.InitializeSchedules(serverConfig, manager) //initialize all the cron jobs
	defer maintenance.Stop()
	Logger.Info("Schedules initialized")

	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	Logger.Info("Setting up go-app WASM UI")
	appHandler := webapp.Handler()

	// Serve wasm_exec.js from embedded filesystem (go-app expects it here)
	e.GET("/wasm_exec.js", func(c echo.Context) error {
		data, err := webFS.ReadFile("web/wasm_exec.js")
		if err != nil {
			return c.String(http.StatusNotFound, "wasm_exec.js not found")
		}
		return c.Blob(http.StatusOK, "application/javascript", data)
	})

	// Register go-app specific resources
	e.GET("/app.js", echo.WrapHandler(appHandler))
	e.GET("/app.css", echo.WrapHandler(appHandler))
	e.GET("/manifest.webmanifest", echo.WrapHandler(appHandler))

	// Serve static assets from embedded filesystem
	webSubFS, _ := fs.Sub(webFS, "web")
	e.GET("/web/*", echo.WrapHandler(http.StripPrefix("/web/", http.FileServer(http.FS(webSubFS)))))

	// Serve CSS from embedded filesystem
	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Serve favicon from embedded filesystem
	e.GET("/favicon.ico", func(c echo.Context) error {
		data, err := publicFS.ReadFile("public/built/favicon.ico")
		if err != nil {
			return c.String(http.StatusNotFound, "favicon.ico not found")
		}
		return c.Blob(http.StatusOK, "image/x-icon", data)
	})

	// Inject backend API URL into the page
	e.GET("/config.js", func(c echo.Context) error {
		configJS := fmt.Sprintf(`
// goPDFView Frontend Configuration
window.goPDFViewConfig = {
    apiURL: "%s"
};
`, serverConfig.ServerAPIURL)
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, configJS)
	})

	// Viewer and library API routes, all under /api/*
	serverHandler.RegisterRoutes()

	// Serve go-app handler for all other routes (must be last)
	// The WASM app handles its own client-side routing and 404s via NotFoundPage component
	e.Any("/*", echo.WrapHandler(appHandler))

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = e.Start(addr)

		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			portNum++
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				os.Exit(1)
			}
		} else if startErr != nil {
			Logger.Error("Failed to start server", "error", startErr)
			os.Exit(1)
		} else {
			break
		}
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
