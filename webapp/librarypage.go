package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// LibraryPage lists the documents the server has opened before
type LibraryPage struct {
	app.Compo

	documents []LibraryDocument
	loaded    bool
}

// OnMount loads the library listing
func (p *LibraryPage) OnMount(ctx app.Context) {
	fetchJSON("GET", BuildAPIURL("/api/library"), "", func(data string) {
		var documents []LibraryDocument
		if err := json.Unmarshal([]byte(data), &documents); err != nil {
			return
		}
		ctx.Dispatch(func(app.Context) {
			p.documents = documents
			p.loaded = true
		})
	})
}

// Render renders the library page
func (p *LibraryPage) Render() app.UI {
	if !p.loaded {
		return app.Div().Class("library-loading").Text("Loading library...")
	}
	if len(p.documents) == 0 {
		return app.Div().
			Class("library-empty").
			Text("No documents yet. Open one with /view?doc=<path>.")
	}

	return app.Div().
		Class("library-page").
		Body(
			app.H2().Text("Library"),
			app.Table().Class("library-table").Body(
				app.THead().Body(
					app.Tr().Body(
						app.Th().Text("Name"),
						app.Th().Text("Pages"),
						app.Th().Text("Last opened"),
					),
				),
				app.TBody().Body(
					app.Range(p.documents).Slice(func(i int) app.UI {
						doc := p.documents[i]
						return app.Tr().Body(
							app.Td().Body(
								app.A().
									Href("/view?doc="+doc.Path).
									Text(doc.Name),
							),
							app.Td().Text(fmt.Sprintf("%d", doc.NumPages)),
							app.Td().Text(doc.LastOpened),
						)
					}),
				),
			),
		)
}
