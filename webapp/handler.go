package webapp

import (
	"net/http"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Handler returns an HTTP handler for the web app
func Handler() http.Handler {
	// All routes use the App component which includes the navbar
	app.Route("/", func() app.Composer { return &App{} })
	app.Route("/view", func() app.Composer { return &App{} })
	app.Route("/about", func() app.Composer { return &App{} })
	app.RunWhenOnBrowser()

	// wasm_exec.js and app.wasm are served by Echo from the embedded assets
	return &app.Handler{
		Name:        "goPDFView",
		Title:       "goPDFView",
		Description: "Embedded PDF viewing engine",
		Icon: app.Icon{
			Default: "/favicon.ico",
		},
		Styles: []string{
			"/webapp/webapp.css",
		},
		Scripts: []string{
			"/config.js", // Load backend API configuration
		},
		RawHeaders: []string{
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
		},
	}
}
