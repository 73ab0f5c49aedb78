package viewer

import (
	"errors"
	"image/png"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/labstack/echo/v4"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/database"
	"github.com/drummonds/goPDFView/internal/build"
	"github.com/drummonds/goPDFView/viewer/pdfsource"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Manager      *Manager
}

// RegisterRoutes attaches the viewer API to the handler's echo instance
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	e.POST("/api/viewer/:container/open", serverHandler.OpenViewer)
	e.DELETE("/api/viewer/:container", serverHandler.CloseViewer)
	e.POST("/api/viewer/:container/scroll", serverHandler.Scroll)
	e.POST("/api/viewer/:container/scale", serverHandler.SetScale)
	e.POST("/api/viewer/:container/zoom", serverHandler.Zoom)
	e.POST("/api/viewer/:container/goto/:page", serverHandler.GoToPage)
	e.GET("/api/viewer/:container/page/:page/image", serverHandler.PageImage)
	e.GET("/api/viewer/:container/page/:page/thumbnail", serverHandler.PageThumbnail)
	e.GET("/api/viewer/:container/layout", serverHandler.Layout)
	e.GET("/api/viewer/:container/status", serverHandler.InstanceStatus)
	e.GET("/api/viewer/:container/search", serverHandler.Search)
	e.GET("/api/viewers", serverHandler.ListViewers)
	e.GET("/api/library", serverHandler.Library)
	e.GET("/api/library/recent", serverHandler.RecentDocuments)
	e.DELETE("/api/library/:ulid", serverHandler.DeleteDocument)
	e.GET("/api/status", serverHandler.ServerStatus)
}

type openRequest struct {
	Path     string `json:"path"`
	Password string `json:"password"`
	Backend  string `json:"backend"`
}

type openResponse struct {
	Container   string  `json:"container"`
	ViewerID    string  `json:"viewerID"`
	ULID        string  `json:"ulid"`
	Name        string  `json:"name"`
	NumPages    int     `json:"numPages"`
	CurrentPage int     `json:"currentPage"`
	Scale       float64 `json:"scale"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// jsonError maps the viewer sentinels onto HTTP statuses
func jsonError(context echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNoSuchViewer), errors.Is(err, ErrNoSuchPage):
		status = http.StatusNotFound
	case errors.Is(err, ErrViewerExists):
		status = http.StatusConflict
	case errors.Is(err, ErrNotLoaded):
		status = http.StatusConflict
	case errors.Is(err, ErrViewerDestroyed):
		status = http.StatusGone
	}
	return context.JSON(status, errorResponse{Error: err.Error()})
}

// OpenViewer creates a viewer instance for a container and loads a document into it
// @Summary Open a document in a new viewer instance
// @Description Creates a viewer for the container, loads the document, records it in the library and restores the saved reading position
// @Tags Viewer
// @Accept json
// @Produce json
// @Param container path string true "Container id"
// @Param request body openRequest true "Document path and optional password/backend"
// @Success 200 {object} openResponse
// @Failure 401 {object} errorResponse "Password required"
// @Failure 409 {object} errorResponse "Container already has a viewer"
// @Router /api/viewer/{container}/open [post]
func (serverHandler *ServerHandler) OpenViewer(context echo.Context) error {
	container := context.Param("container")

	var request openRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if request.Path == "" {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "path is required"})
	}

	path := request.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(serverHandler.ServerConfig.DocumentPath, path)
	}

	v, err := serverHandler.Manager.Create(container, HeadlessFactory{}, NewHeadlessElement("div"))
	if err != nil {
		return jsonError(context, err)
	}

	err = v.Load(context.Request().Context(), path, LoadOptions{
		Password: request.Password,
		Backend:  request.Backend,
	})
	if err != nil {
		serverHandler.Manager.Destroy(container)
		if errors.Is(err, pdfsource.ErrPasswordRequired) {
			return context.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		Logger.Error("Unable to load document", "path", path, "error", err)
		return jsonError(context, err)
	}

	document, err := database.RegisterDocument(path, v.NumPages(), serverHandler.DB)
	if err != nil {
		Logger.Error("Unable to record document in library", "path", path, "error", err)
		serverHandler.Manager.Destroy(container)
		return jsonError(context, err)
	}

	// Pick up where the reader left off
	state, err := database.RestoreViewState(document.ULID.String(), serverHandler.DB)
	if err == nil {
		if state.LastScale != v.Scale() {
			if _, err := v.SetScale(state.LastScale); err != nil {
				Logger.Warn("Unable to restore scale", "ulid", document.ULID, "error", err)
			}
		}
		if state.LastPage > 1 && state.LastPage <= v.NumPages() {
			if err := v.GoToPage(state.LastPage); err != nil {
				Logger.Warn("Unable to restore page", "ulid", document.ULID, "error", err)
			}
		}
	}

	return context.JSON(http.StatusOK, openResponse{
		Container:   container,
		ViewerID:    v.ID(),
		ULID:        document.ULID.String(),
		Name:        document.Name,
		NumPages:    v.NumPages(),
		CurrentPage: v.CurrentPage(),
		Scale:       v.Scale(),
	})
}

// saveViewState persists the current reading position for later reopening
func (serverHandler *ServerHandler) saveViewState(v *Viewer) {
	path := v.DocumentPath()
	if path == "" {
		return
	}
	document, err := database.FetchDocumentFromPath(path, serverHandler.DB)
	if err != nil {
		return
	}
	err = database.RecordViewState(document.ULID.String(), v.CurrentPage(), v.Scale(), serverHandler.DB)
	if err != nil {
		Logger.Warn("Unable to persist view state", "ulid", document.ULID, "error", err)
	}
}

// CloseViewer saves the reading position and tears the instance down
// @Summary Close a viewer instance
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Success 200 {string} string "Viewer Closed"
// @Failure 404 {object} errorResponse "No viewer for container"
// @Router /api/viewer/{container} [delete]
func (serverHandler *ServerHandler) CloseViewer(context echo.Context) error {
	container := context.Param("container")
	v, err := serverHandler.Manager.Get(container)
	if err != nil {
		return jsonError(context, err)
	}

	serverHandler.saveViewState(v)
	if err := serverHandler.Manager.Destroy(container); err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, "Viewer Closed")
}

// Scroll runs a virtualization pass for a new viewport
// @Summary Report a scroll or resize
// @Tags Viewer
// @Accept json
// @Produce json
// @Param container path string true "Container id"
// @Param viewport body ViewportState true "Current viewport"
// @Success 200 {object} VisiblePageResult
// @Router /api/viewer/{container}/scroll [post]
func (serverHandler *ServerHandler) Scroll(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	var viewport ViewportState
	if err := context.Bind(&viewport); err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	result, err := v.HandleScroll(viewport)
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, result)
}

type scaleRequest struct {
	Scale float64 `json:"scale"`
}

type scaleResponse struct {
	Scale       float64 `json:"scale"`
	CurrentPage int     `json:"currentPage"`
	TotalHeight float64 `json:"totalHeight"`
}

func (serverHandler *ServerHandler) scaleResult(context echo.Context, v *Viewer) error {
	serverHandler.saveViewState(v)
	_, total, err := v.Layout()
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, scaleResponse{
		Scale:       v.Scale(),
		CurrentPage: v.CurrentPage(),
		TotalHeight: total,
	})
}

// SetScale applies an absolute display scale
// @Summary Set the display scale
// @Tags Viewer
// @Accept json
// @Produce json
// @Param container path string true "Container id"
// @Param request body scaleRequest true "Target scale"
// @Success 200 {object} scaleResponse
// @Router /api/viewer/{container}/scale [post]
func (serverHandler *ServerHandler) SetScale(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	var request scaleRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	if _, err := v.SetScale(request.Scale); err != nil {
		return jsonError(context, err)
	}
	return serverHandler.scaleResult(context, v)
}

// Zoom steps the scale in, out, or fits the widest page to the viewport
// @Summary Zoom in, out or fit width
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Param direction query string true "in, out or fit"
// @Success 200 {object} scaleResponse
// @Router /api/viewer/{container}/zoom [post]
func (serverHandler *ServerHandler) Zoom(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	switch context.QueryParam("direction") {
	case "in":
		_, err = v.ZoomIn()
	case "out":
		_, err = v.ZoomOut()
	case "fit":
		_, err = v.FitWidth()
	default:
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "direction must be in, out or fit"})
	}
	if err != nil {
		return jsonError(context, err)
	}
	return serverHandler.scaleResult(context, v)
}

// GoToPage jumps to a page
// @Summary Jump to a page
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Param page path int true "Page number"
// @Success 200 {object} scaleResponse
// @Router /api/viewer/{container}/goto/{page} [post]
func (serverHandler *ServerHandler) GoToPage(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	page, err := strconv.Atoi(context.Param("page"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "page must be an integer"})
	}

	if err := v.GoToPage(page); err != nil {
		return jsonError(context, err)
	}
	return serverHandler.scaleResult(context, v)
}

// PageImage serves a rasterized page as PNG
// @Summary Render one page as PNG
// @Tags Viewer
// @Produce png
// @Param container path string true "Container id"
// @Param page path int true "Page number"
// @Param scale query number false "Render scale, defaults to the instance scale"
// @Success 200 {file} png
// @Router /api/viewer/{container}/page/{page}/image [get]
func (serverHandler *ServerHandler) PageImage(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	page, err := strconv.Atoi(context.Param("page"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "page must be an integer"})
	}
	scale := 0.0
	if raw := context.QueryParam("scale"); raw != "" {
		scale, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return context.JSON(http.StatusBadRequest, errorResponse{Error: "scale must be a number"})
		}
	}

	img, err := v.PageImage(context.Request().Context(), page, scale)
	if err != nil {
		return jsonError(context, err)
	}

	response := context.Response()
	response.Header().Set(echo.HeaderContentType, "image/png")
	response.WriteHeader(http.StatusOK)
	return png.Encode(response, img)
}

// PageThumbnail serves a downscaled page image
// @Summary Render a page thumbnail as PNG
// @Tags Viewer
// @Produce png
// @Param container path string true "Container id"
// @Param page path int true "Page number"
// @Param width query int false "Thumbnail width in pixels, default 160"
// @Success 200 {file} png
// @Router /api/viewer/{container}/page/{page}/thumbnail [get]
func (serverHandler *ServerHandler) PageThumbnail(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	page, err := strconv.Atoi(context.Param("page"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "page must be an integer"})
	}
	width := 160
	if raw := context.QueryParam("width"); raw != "" {
		width, err = strconv.Atoi(raw)
		if err != nil || width <= 0 {
			return context.JSON(http.StatusBadRequest, errorResponse{Error: "width must be a positive integer"})
		}
	}

	// Render small and downscale rather than rasterizing full size
	img, err := v.PageImage(context.Request().Context(), page, 0.5)
	if err != nil {
		return jsonError(context, err)
	}
	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)

	response := context.Response()
	response.Header().Set(echo.HeaderContentType, "image/png")
	response.WriteHeader(http.StatusOK)
	return png.Encode(response, thumb)
}

type layoutResponse struct {
	Positions   map[int]PageDimensions `json:"positions"`
	TotalHeight float64                `json:"totalHeight"`
	Scale       float64                `json:"scale"`
}

// Layout returns the page positions at the current scale
// @Summary Get the laid-out page positions
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Success 200 {object} layoutResponse
// @Router /api/viewer/{container}/layout [get]
func (serverHandler *ServerHandler) Layout(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	positions, total, err := v.Layout()
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, layoutResponse{
		Positions:   positions,
		TotalHeight: total,
		Scale:       v.Scale(),
	})
}

// InstanceStatus returns a snapshot of one viewer instance
// @Summary Get viewer instance status
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Success 200 {object} InstanceStatus
// @Router /api/viewer/{container}/status [get]
func (serverHandler *ServerHandler) InstanceStatus(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, v.Status())
}

type searchResponse struct {
	Query string `json:"query"`
	Pages []int  `json:"pages"`
}

// Search returns the pages whose text matches the query
// @Summary Search the document text
// @Tags Viewer
// @Produce json
// @Param container path string true "Container id"
// @Param q query string true "Search term"
// @Success 200 {object} searchResponse
// @Router /api/viewer/{container}/search [get]
func (serverHandler *ServerHandler) Search(context echo.Context) error {
	v, err := serverHandler.Manager.Get(context.Param("container"))
	if err != nil {
		return jsonError(context, err)
	}

	query := context.QueryParam("q")
	if query == "" {
		return context.JSON(http.StatusBadRequest, errorResponse{Error: "q is required"})
	}
	pages := v.Search(query)
	if pages == nil {
		pages = []int{}
	}
	return context.JSON(http.StatusOK, searchResponse{Query: query, Pages: pages})
}

// ListViewers returns the registered container ids
// @Summary List open viewer instances
// @Tags Viewer
// @Produce json
// @Success 200 {array} string
// @Router /api/viewers [get]
func (serverHandler *ServerHandler) ListViewers(context echo.Context) error {
	containers := serverHandler.Manager.Containers()
	if containers == nil {
		containers = []string{}
	}
	return context.JSON(http.StatusOK, containers)
}

type libraryDocument struct {
	ULID       string `json:"ulid"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	NumPages   int    `json:"numPages"`
	AddedTime  string `json:"addedTime"`
	LastOpened string `json:"lastOpened"`
}

func toLibraryDocuments(documents []database.Document) []libraryDocument {
	out := make([]libraryDocument, 0, len(documents))
	for _, doc := range documents {
		out = append(out, libraryDocument{
			ULID:       doc.ULID.String(),
			Name:       doc.Name,
			Path:       doc.Path,
			NumPages:   doc.NumPages,
			AddedTime:  doc.AddedTime.Format("2006-01-02 15:04:05"),
			LastOpened: doc.LastOpened.Format("2006-01-02 15:04:05"),
		})
	}
	return out
}

// Library lists every document the server has opened
// @Summary List the document library
// @Tags Library
// @Produce json
// @Success 200 {array} libraryDocument
// @Router /api/library [get]
func (serverHandler *ServerHandler) Library(context echo.Context) error {
	documents, err := database.FetchAllDocuments(serverHandler.DB)
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, toLibraryDocuments(*documents))
}

// RecentDocuments lists the most recently opened documents
// @Summary List recently opened documents
// @Tags Library
// @Produce json
// @Param count query int false "How many, default 10"
// @Success 200 {array} libraryDocument
// @Router /api/library/recent [get]
func (serverHandler *ServerHandler) RecentDocuments(context echo.Context) error {
	count := 10
	if raw := context.QueryParam("count"); raw != "" {
		var err error
		count, err = strconv.Atoi(raw)
		if err != nil || count <= 0 {
			return context.JSON(http.StatusBadRequest, errorResponse{Error: "count must be a positive integer"})
		}
	}

	documents, err := database.FetchRecentDocuments(count, serverHandler.DB)
	if err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, toLibraryDocuments(documents))
}

// DeleteDocument removes a document from the library
// @Summary Delete a library entry
// @Tags Library
// @Produce json
// @Param ulid path string true "Document ULID"
// @Success 200 {string} string "Document Deleted"
// @Router /api/library/{ulid} [delete]
func (serverHandler *ServerHandler) DeleteDocument(context echo.Context) error {
	ulidStr := context.Param("ulid")
	if err := database.DeleteDocument(ulidStr, serverHandler.DB); err != nil {
		return jsonError(context, err)
	}
	return context.JSON(http.StatusOK, "Document Deleted")
}

type serverStatusResponse struct {
	Status  string     `json:"status"`
	Build   build.Info `json:"build"`
	Viewers int        `json:"viewers"`
}

// ServerStatus reports server health and build information
// @Summary Server health and build info
// @Tags Status
// @Produce json
// @Success 200 {object} serverStatusResponse
// @Router /api/status [get]
func (serverHandler *ServerHandler) ServerStatus(context echo.Context) error {
	return context.JSON(http.StatusOK, serverStatusResponse{
		Status:  "ok",
		Build:   build.GetInfo(),
		Viewers: len(serverHandler.Manager.Containers()),
	})
}
