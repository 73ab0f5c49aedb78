package database

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestBunSQLiteDatabase(t *testing.T) {
	// Initialize logger for tests
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
	}

	tmpFile := filepath.Join(t.TempDir(), "test_gopdfview.sqlite")
	db, err := NewBunSqliteRepository(tmpFile)
	if err != nil {
		t.Fatalf("Failed to setup sqlite repository: %v", err)
	}
	defer db.Close()

	doc := &Document{
		Name:       "report.pdf",
		Path:       "/tmp/report.pdf",
		ULID:       ulid.Make(),
		NumPages:   42,
		AddedTime:  time.Now(),
		LastOpened: time.Now(),
	}

	t.Run("Create and retrieve document", func(t *testing.T) {
		err := db.SaveDocument(doc)
		if err != nil {
			t.Fatalf("Failed to save document: %v", err)
		}
		if doc.ID == 0 {
			t.Error("Document ID was not set after save")
		}

		retrieved, err := db.GetDocumentByULID(doc.ULID.String())
		if err != nil {
			t.Fatalf("Failed to get document by ULID: %v", err)
		}
		if retrieved.Name != doc.Name || retrieved.NumPages != 42 {
			t.Errorf("Retrieved document doesn't match: %+v", retrieved)
		}

		byPath, err := db.GetDocumentByPath(doc.Path)
		if err != nil {
			t.Fatalf("Failed to get document by path: %v", err)
		}
		if byPath.ULID != doc.ULID {
			t.Errorf("Expected ULID %s, got %s", doc.ULID, byPath.ULID)
		}
	})

	t.Run("Save again updates in place", func(t *testing.T) {
		doc.NumPages = 43
		if err := db.SaveDocument(doc); err != nil {
			t.Fatalf("Failed to re-save document: %v", err)
		}

		all, err := db.GetAllDocuments()
		if err != nil {
			t.Fatalf("Failed to list documents: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("Expected 1 document after upsert, got %d", len(all))
		}
		if all[0].NumPages != 43 {
			t.Errorf("Expected updated page count 43, got %d", all[0].NumPages)
		}
	})

	t.Run("Recent documents ordered by last opened", func(t *testing.T) {
		older := &Document{
			Name:       "older.pdf",
			Path:       "/tmp/older.pdf",
			ULID:       ulid.Make(),
			NumPages:   3,
			AddedTime:  time.Now().Add(-2 * time.Hour),
			LastOpened: time.Now().Add(-2 * time.Hour),
		}
		if err := db.SaveDocument(older); err != nil {
			t.Fatalf("Failed to save document: %v", err)
		}

		recent, err := db.GetRecentDocuments(1)
		if err != nil {
			t.Fatalf("Failed to get recent documents: %v", err)
		}
		if len(recent) != 1 || recent[0].ULID != doc.ULID {
			t.Errorf("Expected the newest document first, got %+v", recent)
		}

		// Touching the older one moves it to the front
		if err := db.TouchDocument(older.ULID.String(), time.Now()); err != nil {
			t.Fatalf("Failed to touch document: %v", err)
		}
		recent, err = db.GetRecentDocuments(1)
		if err != nil {
			t.Fatalf("Failed to get recent documents: %v", err)
		}
		if len(recent) != 1 || recent[0].ULID != older.ULID {
			t.Errorf("Expected the touched document first, got %+v", recent)
		}
	})

	t.Run("Save and restore view state", func(t *testing.T) {
		// Never-read documents start at page 1, scale 1.0
		state, err := RestoreViewState(doc.ULID.String(), db)
		if err != nil {
			t.Fatalf("Failed to restore default view state: %v", err)
		}
		if state.LastPage != 1 || state.LastScale != 1.0 {
			t.Errorf("Expected default view state, got %+v", state)
		}

		if err := RecordViewState(doc.ULID.String(), 7, 1.5, db); err != nil {
			t.Fatalf("Failed to record view state: %v", err)
		}
		// Overwrite with a later position
		if err := RecordViewState(doc.ULID.String(), 9, 2.0, db); err != nil {
			t.Fatalf("Failed to update view state: %v", err)
		}

		state, err = RestoreViewState(doc.ULID.String(), db)
		if err != nil {
			t.Fatalf("Failed to restore view state: %v", err)
		}
		if state.LastPage != 9 || state.LastScale != 2.0 {
			t.Errorf("Expected page 9 at scale 2.0, got %+v", state)
		}
	})

	t.Run("Register document is idempotent per path", func(t *testing.T) {
		first, err := RegisterDocument("/tmp/manual.pdf", 12, db)
		if err != nil {
			t.Fatalf("Failed to register document: %v", err)
		}
		second, err := RegisterDocument("/tmp/manual.pdf", 12, db)
		if err != nil {
			t.Fatalf("Failed to re-register document: %v", err)
		}
		if first.ULID != second.ULID {
			t.Errorf("Expected the same ULID on re-register, got %s and %s", first.ULID, second.ULID)
		}
	})

	t.Run("Delete removes document and view state", func(t *testing.T) {
		if err := db.DeleteDocument(doc.ULID.String()); err != nil {
			t.Fatalf("Failed to delete document: %v", err)
		}
		if _, err := db.GetDocumentByULID(doc.ULID.String()); err == nil {
			t.Error("Expected deleted document to be gone")
		}
		if _, err := db.GetViewState(doc.ULID.String()); err == nil {
			t.Error("Expected deleted document's view state to be gone")
		}
	})
}
