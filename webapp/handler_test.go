package webapp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestHandlerRoutes tests that all expected routes are registered
func TestHandlerRoutes(t *testing.T) {
	handler := Handler()

	tests := []struct {
		name string
		path string
	}{
		{
			name: "Library page",
			path: "/",
		},
		{
			name: "Viewer page",
			path: "/view",
		},
		{
			name: "About page",
			path: "/about",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code == http.StatusNotFound {
				t.Errorf("Route %s returned 404 Not Found - route may not be registered", tt.path)
			}
			contentType := rec.Header().Get("Content-Type")
			if !strings.Contains(contentType, "text/html") {
				t.Errorf("Route %s returned %q, expected HTML", tt.path, contentType)
			}
		})
	}
}
