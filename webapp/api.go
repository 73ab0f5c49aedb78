package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// GetAPIBaseURL returns the configured API base URL
// It reads from window.goPDFViewConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	config := app.Window().Get("goPDFViewConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			url := apiURL.String()
			// Ensure no trailing slash
			if len(url) > 0 && url[len(url)-1] == '/' {
				return url[:len(url)-1]
			}
			return url
		}
	}

	// Fallback to relative URLs (same origin)
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/library") -> "http://backend:8000/api/library"
// or just "/api/library" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// OpenResult mirrors the open endpoint response
type OpenResult struct {
	Container   string  `json:"container"`
	ViewerID    string  `json:"viewerID"`
	ULID        string  `json:"ulid"`
	Name        string  `json:"name"`
	NumPages    int     `json:"numPages"`
	CurrentPage int     `json:"currentPage"`
	Scale       float64 `json:"scale"`
}

// PagePosition mirrors one laid-out page from the layout endpoint
type PagePosition struct {
	PageNumber int     `json:"pageNumber"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Top        float64 `json:"top"`
	Left       float64 `json:"left"`
}

// LayoutResult mirrors the layout endpoint response
type LayoutResult struct {
	Positions   map[string]PagePosition `json:"positions"`
	TotalHeight float64                 `json:"totalHeight"`
	Scale       float64                 `json:"scale"`
}

// ScrollResult mirrors the scroll endpoint response
type ScrollResult struct {
	VisiblePages  []int `json:"visiblePages"`
	CenterPage    int   `json:"centerPage"`
	PagesToRender []int `json:"pagesToRender"`
	PagesToRemove []int `json:"pagesToRemove"`
}

// ScaleResult mirrors the scale, zoom and goto endpoint responses
type ScaleResult struct {
	Scale       float64 `json:"scale"`
	CurrentPage int     `json:"currentPage"`
	TotalHeight float64 `json:"totalHeight"`
}

// LibraryDocument mirrors one library listing entry
type LibraryDocument struct {
	ULID       string `json:"ulid"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	NumPages   int    `json:"numPages"`
	AddedTime  string `json:"addedTime"`
	LastOpened string `json:"lastOpened"`
}
