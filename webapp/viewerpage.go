package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// viewerContainer is the container id this page registers with the backend
const viewerContainer = "webapp-viewer"

// ViewerPage drives one backend viewer instance: it reports scrolls and zooms
// over the API and absolutely positions page images from the layout data
type ViewerPage struct {
	app.Compo

	docPath     string
	opened      bool
	loadError   string
	name        string
	numPages    int
	currentPage int
	scale       float64
	totalHeight float64
	positions   map[string]PagePosition
	visible     []int
}

// OnMount opens the document named in the doc query parameter
func (p *ViewerPage) OnMount(ctx app.Context) {
	p.docPath = app.Window().URL().Query().Get("doc")
	if p.docPath == "" {
		p.loadError = "no document selected"
		return
	}
	p.openDocument(ctx)
}

// OnDismount closes the backend viewer instance
func (p *ViewerPage) OnDismount() {
	fetchJSON("DELETE", BuildAPIURL("/api/viewer/"+viewerContainer), "", nil)
}

// Render renders the viewer page
func (p *ViewerPage) Render() app.UI {
	if p.loadError != "" {
		return app.Div().Class("viewer-error").Text(p.loadError)
	}
	if !p.opened {
		return app.Div().Class("viewer-loading").Text("Opening document...")
	}

	return app.Div().
		Class("viewer-page").
		Body(
			p.renderToolbar(),
			app.Div().
				Class("viewer-scroll").
				ID("viewer-scroll").
				OnScroll(p.onScroll).
				Body(
					app.Div().
						Class("viewer-canvas").
						Style("position", "relative").
						Style("height", fmt.Sprintf("%.0fpx", p.totalHeight)).
						Body(
							app.Range(p.visible).Slice(func(i int) app.UI {
								return p.renderPageElement(p.visible[i])
							}),
						),
				),
		)
}

// renderToolbar renders the navigation and zoom controls
func (p *ViewerPage) renderToolbar() app.UI {
	return app.Div().
		Class("viewer-toolbar").
		Body(
			app.Span().Class("viewer-title").Text(p.name),
			app.Button().Class("viewer-button").Text("◀").OnClick(p.onPrevPage),
			app.Span().Class("viewer-page-indicator").
				Text(fmt.Sprintf("%d / %d", p.currentPage, p.numPages)),
			app.Button().Class("viewer-button").Text("▶").OnClick(p.onNextPage),
			app.Button().Class("viewer-button").Text("−").OnClick(p.zoomHandler("out")),
			app.Span().Class("viewer-scale").
				Text(fmt.Sprintf("%.0f%%", p.scale*100)),
			app.Button().Class("viewer-button").Text("+").OnClick(p.zoomHandler("in")),
			app.Button().Class("viewer-button").Text("Fit").OnClick(p.zoomHandler("fit")),
		)
}

// renderPageElement positions one page image from the layout data
func (p *ViewerPage) renderPageElement(page int) app.UI {
	pos, ok := p.positions[fmt.Sprintf("%d", page)]
	if !ok {
		return app.Div()
	}
	imageURL := BuildAPIURL(fmt.Sprintf("/api/viewer/%s/page/%d/image?scale=%.2f",
		viewerContainer, page, p.scale))

	return app.Div().
		Class("viewer-page-wrapper").
		DataSet("page", page).
		Style("position", "absolute").
		Style("top", fmt.Sprintf("%.2fpx", pos.Top)).
		Style("left", fmt.Sprintf("%.2fpx", pos.Left)).
		Style("width", fmt.Sprintf("%.2fpx", pos.Width)).
		Style("height", fmt.Sprintf("%.2fpx", pos.Height)).
		Body(
			app.Img().
				Src(imageURL).
				Style("width", "100%").
				Style("height", "100%"),
		)
}

// openDocument opens the backend viewer and loads the initial layout
func (p *ViewerPage) openDocument(ctx app.Context) {
	body := fmt.Sprintf(`{"path": %q}`, p.docPath)
	fetchJSON("POST", BuildAPIURL("/api/viewer/"+viewerContainer+"/open"), body, func(data string) {
		var result OpenResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			ctx.Dispatch(func(app.Context) { p.loadError = "unexpected open response" })
			return
		}
		ctx.Dispatch(func(ctx app.Context) {
			p.opened = true
			p.name = result.Name
			p.numPages = result.NumPages
			p.currentPage = result.CurrentPage
			p.scale = result.Scale
			p.refreshLayout(ctx)
		})
	})
}

// refreshLayout pulls the page positions, then reports the current viewport
func (p *ViewerPage) refreshLayout(ctx app.Context) {
	fetchJSON("GET", BuildAPIURL("/api/viewer/"+viewerContainer+"/layout"), "", func(data string) {
		var result LayoutResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return
		}
		ctx.Dispatch(func(ctx app.Context) {
			p.positions = result.Positions
			p.totalHeight = result.TotalHeight
			p.scale = result.Scale
			p.reportViewport(ctx)
		})
	})
}

// reportViewport sends the scroll container geometry to the backend
func (p *ViewerPage) reportViewport(ctx app.Context) {
	el := app.Window().GetElementByID("viewer-scroll")
	scrollTop, height, width := 0.0, 800.0, 600.0
	if el.Truthy() {
		scrollTop = el.Get("scrollTop").Float()
		height = el.Get("clientHeight").Float()
		width = el.Get("clientWidth").Float()
	}

	body := fmt.Sprintf(`{"scrollTop": %.2f, "containerHeight": %.2f, "containerWidth": %.2f}`,
		scrollTop, height, width)
	fetchJSON("POST", BuildAPIURL("/api/viewer/"+viewerContainer+"/scroll"), body, func(data string) {
		var result ScrollResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return
		}
		ctx.Dispatch(func(app.Context) {
			p.currentPage = result.CenterPage
			p.visible = result.PagesToRender
		})
	})
}

// onScroll reports each scroll tick
func (p *ViewerPage) onScroll(ctx app.Context, e app.Event) {
	p.reportViewport(ctx)
}

// zoomHandler builds a click handler for one zoom direction
func (p *ViewerPage) zoomHandler(direction string) app.EventHandler {
	return func(ctx app.Context, e app.Event) {
		url := BuildAPIURL("/api/viewer/" + viewerContainer + "/zoom?direction=" + direction)
		fetchJSON("POST", url, "", func(data string) {
			var result ScaleResult
			if err := json.Unmarshal([]byte(data), &result); err != nil {
				return
			}
			ctx.Dispatch(func(ctx app.Context) {
				p.scale = result.Scale
				p.currentPage = result.CurrentPage
				p.totalHeight = result.TotalHeight
				p.refreshLayout(ctx)
			})
		})
	}
}

// onPrevPage jumps back one page
func (p *ViewerPage) onPrevPage(ctx app.Context, e app.Event) {
	p.gotoPage(ctx, p.currentPage-1)
}

// onNextPage jumps forward one page
func (p *ViewerPage) onNextPage(ctx app.Context, e app.Event) {
	p.gotoPage(ctx, p.currentPage+1)
}

func (p *ViewerPage) gotoPage(ctx app.Context, page int) {
	if page < 1 || page > p.numPages {
		return
	}
	url := BuildAPIURL(fmt.Sprintf("/api/viewer/%s/goto/%d", viewerContainer, page))
	fetchJSON("POST", url, "", func(data string) {
		var result ScaleResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return
		}
		ctx.Dispatch(func(ctx app.Context) {
			p.currentPage = result.CurrentPage
			p.reportViewport(ctx)
		})
	})
}

// fetchJSON wraps the browser fetch API; onSuccess gets the raw JSON text
func fetchJSON(method, url, body string, onSuccess func(string)) {
	if !app.IsClient {
		return
	}

	options := map[string]any{"method": method}
	if body != "" {
		options["body"] = body
		options["headers"] = map[string]any{"Content-Type": "application/json"}
	}

	res := app.Window().Call("fetch", url, options)
	res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		response := args[0]
		status := response.Get("status").Int()
		if status < 200 || status >= 300 {
			return nil
		}
		response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if len(args) == 0 || onSuccess == nil {
				return nil
			}
			onSuccess(args[0].String())
			return nil
		}))
		return nil
	})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
		// Network failure: leave the current state in place
		return nil
	}))
}
