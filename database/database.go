package database

import (
	"database/sql"
	"log/slog"
	"math/rand"
	"net/http"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
)

// Document is one PDF known to the server. The ULID is a smaller (than a
// hash) id that can be used in URL's, hopefully speed things up.
type Document struct {
	ID         int
	Name       string
	Path       string // full path to the file
	ULID       ulid.ULID
	NumPages   int
	AddedTime  time.Time
	LastOpened time.Time
}

// ViewState is the saved reading position for a document, restored when the
// document is opened again
type ViewState struct {
	DocumentULID string
	LastPage     int
	LastScale    float64
	Updated      time.Time
}

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Repository defines database operations
type Repository interface {
	Close() error
	SaveDocument(doc *Document) error
	GetDocumentByULID(ulid string) (*Document, error)
	GetDocumentByPath(path string) (*Document, error)
	GetAllDocuments() ([]Document, error)
	GetRecentDocuments(limit int) ([]Document, error)
	DeleteDocument(ulid string) error
	TouchDocument(ulid string, openedAt time.Time) error
	// View state methods
	SaveViewState(state *ViewState) error
	GetViewState(documentULID string) (*ViewState, error)
}

// RegisterDocument records a document in the library, or refreshes the
// last-opened time if the path is already known
func RegisterDocument(filePath string, numPages int, db Repository) (*Document, error) {
	filePath = filepath.ToSlash(filePath)

	existing, err := db.GetDocumentByPath(filePath)
	if err == nil && existing != nil {
		now := time.Now()
		if err := db.TouchDocument(existing.ULID.String(), now); err != nil {
			Logger.Error("Unable to update last opened time", "path", filePath, "error", err)
			return nil, err
		}
		existing.LastOpened = now
		return existing, nil
	}

	newTime := time.Now()
	newULID, err := CalculateULID(newTime)
	if err != nil {
		Logger.Error("Cannot generate ULID", "filePath", filePath, "error", err)
		return nil, err
	}

	var newDocument Document
	newDocument.Name = filepath.Base(filePath)
	newDocument.Path = filePath
	newDocument.ULID = newULID
	newDocument.NumPages = numPages
	newDocument.AddedTime = newTime
	newDocument.LastOpened = newTime

	err = db.SaveDocument(&newDocument)
	if err != nil {
		Logger.Error("Unable to write document to database", "error", err)
		return nil, err
	}
	return &newDocument, nil
}

// FetchDocument fetches the requested document by ULID
func FetchDocument(docULIDSt string, db Repository) (Document, int, error) {
	foundDocument, err := db.GetDocumentByULID(docULIDSt)
	if err != nil {
		if err == sql.ErrNoRows {
			Logger.Error("Unable to find the requested document", "error", err)
			return Document{}, http.StatusNotFound, err
		}
		Logger.Error("Database error fetching document", "error", err)
		return Document{}, http.StatusInternalServerError, err
	}
	return *foundDocument, http.StatusOK, nil
}

// FetchDocumentFromPath fetches the document by document path
func FetchDocumentFromPath(path string, db Repository) (Document, error) {
	path = filepath.ToSlash(path) // converting to slash before search
	foundDocument, err := db.GetDocumentByPath(path)
	if err != nil {
		Logger.Error("Unable to find the requested document from path", "path", path, "error", err)
		return Document{}, err
	}
	return *foundDocument, nil
}

// FetchRecentDocuments fetches the documents that were opened last
func FetchRecentDocuments(numberOf int, db Repository) ([]Document, error) {
	recentDocuments, err := db.GetRecentDocuments(numberOf)
	if err != nil {
		Logger.Error("Unable to find the latest documents", "error", err)
		return recentDocuments, err
	}
	return recentDocuments, nil
}

// FetchAllDocuments fetches all the documents in the database
func FetchAllDocuments(db Repository) (*[]Document, error) {
	allDocuments, err := db.GetAllDocuments()
	if err != nil {
		Logger.Error("Unable to list documents", "error", err)
		return nil, err
	}
	return &allDocuments, nil
}

// DeleteDocument removes the requested document by ULID
func DeleteDocument(docULIDSt string, db Repository) error {
	err := db.DeleteDocument(docULIDSt)
	if err != nil {
		Logger.Error("Unable to delete requested document", "error", err)
		return err
	}
	return nil
}

// RecordViewState saves the current page and scale for a document
func RecordViewState(docULIDSt string, page int, scale float64, db Repository) error {
	state := ViewState{
		DocumentULID: docULIDSt,
		LastPage:     page,
		LastScale:    scale,
		Updated:      time.Now(),
	}
	err := db.SaveViewState(&state)
	if err != nil {
		Logger.Error("Unable to save view state", "ulid", docULIDSt, "error", err)
		return err
	}
	return nil
}

// RestoreViewState loads the saved reading position for a document. A
// document that has never been read before starts at page 1, scale 1.0.
func RestoreViewState(docULIDSt string, db Repository) (*ViewState, error) {
	state, err := db.GetViewState(docULIDSt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &ViewState{DocumentULID: docULIDSt, LastPage: 1, LastScale: 1.0}, nil
		}
		Logger.Error("Unable to fetch view state", "ulid", docULIDSt, "error", err)
		return nil, err
	}
	return state, nil
}

// CalculateULID for the incoming file
func CalculateULID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
