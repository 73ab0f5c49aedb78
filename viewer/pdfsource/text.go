package pdfsource

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextIndex holds the extracted plain text of a document, one entry per page.
// Extraction uses a separate parser from the rasterization backends, so a
// page that fails to parse simply yields an empty entry rather than failing
// the whole document.
type TextIndex struct {
	pages []string
}

// ExtractText builds a text index for the document at path
func ExtractText(path string) (*TextIndex, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF for text extraction: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			Logger.Warn("Text extraction failed for page", "page", i, "error", err)
			continue
		}
		pages[i-1] = text
	}

	return &TextIndex{pages: pages}, nil
}

// NumPages returns how many pages the index covers
func (idx *TextIndex) NumPages() int {
	return len(idx.pages)
}

// PageText returns the plain text of a page, empty when extraction failed
func (idx *TextIndex) PageText(number int) string {
	if number < 1 || number > len(idx.pages) {
		return ""
	}
	return idx.pages[number-1]
}

// Search returns the 1-based page numbers whose text contains the query,
// case-insensitively. An empty query matches nothing.
func (idx *TextIndex) Search(query string) []int {
	if query == "" {
		return nil
	}
	needle := strings.ToLower(query)
	var matches []int
	for i, text := range idx.pages {
		if strings.Contains(strings.ToLower(text), needle) {
			matches = append(matches, i+1)
		}
	}
	return matches
}
