package viewer

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/database"
	"github.com/drummonds/goPDFView/viewer/pdfsource"
)

// newRoutesHarness wires a ServerHandler over a sqlite repository and one
// viewer preloaded with the static source
func newRoutesHarness(t *testing.T) (*ServerHandler, string) {
	t.Helper()

	db, err := database.NewBunSqliteRepository(filepath.Join(t.TempDir(), "routes.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open sqlite repository: %v", err)
	}

	serverHandler := &ServerHandler{
		DB:           db,
		Echo:         echo.New(),
		ServerConfig: config.ServerConfig{ViewerConfig: testConfig()},
		Manager:      NewManager(testConfig()),
	}
	serverHandler.RegisterRoutes()

	const container = "viewer-main"
	v, err := serverHandler.Manager.Create(container, HeadlessFactory{}, NewHeadlessElement("div"))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}
	doc := pdfsource.NewStaticDocument(10, 100, 150)
	if err := v.LoadFromSource(context.Background(), doc); err != nil {
		t.Fatalf("Failed to load document: %v", err)
	}

	t.Cleanup(func() {
		serverHandler.Manager.DestroyAll()
		db.Close()
	})
	return serverHandler, container
}

func doJSON(t *testing.T, serverHandler *ServerHandler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)
	return rec
}

func TestScrollRoute(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/scroll",
		`{"scrollTop": 0, "containerHeight": 600, "containerWidth": 800}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var result VisiblePageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.CenterPage != 2 {
		t.Errorf("Expected center page 2, got %d", result.CenterPage)
	}
	if len(result.PagesToRender) != 5 {
		t.Errorf("Expected a 5 page render window, got %v", result.PagesToRender)
	}
}

func TestScrollRouteUnknownContainer(t *testing.T) {
	serverHandler, _ := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodPost, "/api/viewer/nope/scroll",
		`{"scrollTop": 0, "containerHeight": 600, "containerWidth": 800}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown container, got %d", rec.Code)
	}
}

func TestScaleAndZoomRoutes(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/scale",
		`{"scale": 2.0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var result scaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Scale != 2.0 {
		t.Errorf("Expected scale 2.0, got %f", result.Scale)
	}

	rec = doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/zoom?direction=out", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Scale != 1.75 {
		t.Errorf("Expected one zoom step down to 1.75, got %f", result.Scale)
	}

	rec = doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/zoom?direction=sideways", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad direction, got %d", rec.Code)
	}
}

func TestGoToPageRoute(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/goto/7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var result scaleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.CurrentPage != 7 {
		t.Errorf("Expected current page 7, got %d", result.CurrentPage)
	}

	rec = doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/goto/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an out of range page, got %d", rec.Code)
	}
}

func TestPageImageRoute(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodGet, "/api/viewer/"+container+"/page/1/image?scale=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "image/png" {
		t.Errorf("Expected image/png, got %q", got)
	}

	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 150 {
		t.Errorf("Expected a 100x150 page image, got %v", img.Bounds())
	}
}

func TestPageThumbnailRoute(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodGet, "/api/viewer/"+container+"/page/1/thumbnail?width=50", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 50 {
		t.Errorf("Expected a 50px wide thumbnail, got %v", img.Bounds())
	}
}

func TestLayoutAndStatusRoutes(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodGet, "/api/viewer/"+container+"/layout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var layout layoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &layout); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(layout.Positions) != 10 {
		t.Errorf("Expected 10 positions, got %d", len(layout.Positions))
	}
	// 10 pages of 150 plus 11 gaps of 10
	if layout.TotalHeight != 1610 {
		t.Errorf("Expected total height 1610, got %f", layout.TotalHeight)
	}

	rec = doJSON(t, serverHandler, http.MethodGet, "/api/viewer/"+container+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var status InstanceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !status.Loaded || status.NumPages != 10 {
		t.Errorf("Unexpected instance status: %+v", status)
	}

	rec = doJSON(t, serverHandler, http.MethodGet, "/api/viewers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var containers []string
	if err := json.Unmarshal(rec.Body.Bytes(), &containers); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(containers) != 1 || containers[0] != container {
		t.Errorf("Expected [%s], got %v", container, containers)
	}
}

func TestOpenViewerValidation(t *testing.T) {
	serverHandler, container := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodPost, "/api/viewer/other/open", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a path, got %d", rec.Code)
	}

	// The harness container already has a viewer
	rec = doJSON(t, serverHandler, http.MethodPost, "/api/viewer/"+container+"/open",
		`{"path": "/tmp/whatever.pdf"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for an occupied container, got %d", rec.Code)
	}
}

func TestLibraryRoutes(t *testing.T) {
	serverHandler, _ := newRoutesHarness(t)

	first, err := database.RegisterDocument("/tmp/first.pdf", 4, serverHandler.DB)
	if err != nil {
		t.Fatalf("Failed to register document: %v", err)
	}
	if _, err := database.RegisterDocument("/tmp/second.pdf", 8, serverHandler.DB); err != nil {
		t.Fatalf("Failed to register document: %v", err)
	}

	rec := doJSON(t, serverHandler, http.MethodGet, "/api/library", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var documents []libraryDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &documents); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(documents) != 2 {
		t.Fatalf("Expected 2 library entries, got %d", len(documents))
	}

	rec = doJSON(t, serverHandler, http.MethodDelete, "/api/library/"+first.ULID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, serverHandler, http.MethodGet, "/api/library", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &documents); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(documents) != 1 {
		t.Errorf("Expected 1 library entry after delete, got %d", len(documents))
	}
}

func TestServerStatusRoute(t *testing.T) {
	serverHandler, _ := newRoutesHarness(t)

	rec := doJSON(t, serverHandler, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var status serverStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Status != "ok" || status.Viewers != 1 {
		t.Errorf("Unexpected server status: %+v", status)
	}
}
