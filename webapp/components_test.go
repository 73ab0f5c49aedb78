package webapp

import (
	"testing"
)

// TestNotFoundPageRender tests that the component can be rendered
func TestNotFoundPageRender(t *testing.T) {
	page := &NotFoundPage{}

	ui := page.Render()
	if ui == nil {
		t.Error("NotFoundPage Render should not return nil")
	}
}

// TestNavBarRender tests the navigation bar renders with version info
func TestNavBarRender(t *testing.T) {
	navbar := &NavBar{}

	ui := navbar.Render()
	if ui == nil {
		t.Error("NavBar Render should not return nil")
	}
	if navbar.getVersionInfo() == "" {
		t.Error("Expected version info text")
	}
}

// TestViewerPageRendersStates tests the error and loading states
func TestViewerPageRendersStates(t *testing.T) {
	page := &ViewerPage{loadError: "no document selected"}
	if page.Render() == nil {
		t.Error("ViewerPage Render should not return nil in the error state")
	}

	page = &ViewerPage{}
	if page.Render() == nil {
		t.Error("ViewerPage Render should not return nil while loading")
	}
}

// TestLibraryPageRendersEmptyState tests the empty library message
func TestLibraryPageRendersEmptyState(t *testing.T) {
	page := &LibraryPage{loaded: true}
	if page.Render() == nil {
		t.Error("LibraryPage Render should not return nil when empty")
	}
}

// TestAboutPageRender tests the about page before the status arrives
func TestAboutPageRender(t *testing.T) {
	page := &AboutPage{}
	if page.Render() == nil {
		t.Error("AboutPage Render should not return nil")
	}
}
