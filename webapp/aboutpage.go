package webapp

import (
	"encoding/json"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// serverStatus mirrors the status endpoint response
type serverStatus struct {
	Status string `json:"status"`
	Build  struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		Date      string `json:"date"`
		GoVersion string `json:"goVersion"`
	} `json:"build"`
	Viewers int `json:"viewers"`
}

// AboutPage shows what the server is running
type AboutPage struct {
	app.Compo

	status serverStatus
	loaded bool
}

// OnMount loads the server status
func (p *AboutPage) OnMount(ctx app.Context) {
	fetchJSON("GET", BuildAPIURL("/api/status"), "", func(data string) {
		var status serverStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			return
		}
		ctx.Dispatch(func(app.Context) {
			p.status = status
			p.loaded = true
		})
	})
}

// Render renders the about page
func (p *AboutPage) Render() app.UI {
	body := []app.UI{
		app.H2().Text("About goPDFView"),
		app.P().Text("A multi-instance PDF viewing engine: virtualized page rendering, pooled surfaces and a prioritized render scheduler behind a small HTTP API."),
	}
	if p.loaded {
		body = append(body,
			app.Table().Class("about-table").Body(
				app.Tr().Body(app.Td().Text("Server"), app.Td().Text(p.status.Status)),
				app.Tr().Body(app.Td().Text("Version"), app.Td().Text(p.status.Build.Version)),
				app.Tr().Body(app.Td().Text("Commit"), app.Td().Text(p.status.Build.Commit)),
				app.Tr().Body(app.Td().Text("Built"), app.Td().Text(p.status.Build.Date)),
				app.Tr().Body(app.Td().Text("Go"), app.Td().Text(p.status.Build.GoVersion)),
			),
		)
	}
	return app.Div().Class("about-page").Body(body...)
}
