package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunDocument represents the documents table for Bun ORM
type BunDocument struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID         int       `bun:"id,pk,autoincrement"`
	Name       string    `bun:"name,notnull"`
	Path       string    `bun:"path,notnull,unique"`
	ULID       string    `bun:"ulid,notnull,unique"` // Stored as string in DB
	NumPages   int       `bun:"num_pages,notnull,default:0"`
	AddedTime  time.Time `bun:"added_time,notnull,default:current_timestamp"`
	LastOpened time.Time `bun:"last_opened,notnull,default:current_timestamp"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToDocument converts BunDocument to Document
func (bd *BunDocument) ToDocument() (*Document, error) {
	parsedULID, err := ulid.Parse(bd.ULID)
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:         bd.ID,
		Name:       bd.Name,
		Path:       bd.Path,
		ULID:       parsedULID,
		NumPages:   bd.NumPages,
		AddedTime:  bd.AddedTime,
		LastOpened: bd.LastOpened,
	}, nil
}

// FromDocument converts Document to BunDocument
func FromDocument(doc *Document) *BunDocument {
	return &BunDocument{
		ID:         doc.ID,
		Name:       doc.Name,
		Path:       doc.Path,
		ULID:       doc.ULID.String(),
		NumPages:   doc.NumPages,
		AddedTime:  doc.AddedTime,
		LastOpened: doc.LastOpened,
	}
}

// BunViewState represents the view_state table for Bun ORM
type BunViewState struct {
	bun.BaseModel `bun:"table:view_state,alias:vs"`

	DocumentULID string    `bun:"document_ulid,pk"`
	LastPage     int       `bun:"last_page,notnull,default:1"`
	LastScale    float64   `bun:"last_scale,notnull,default:1.0"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ToViewState converts BunViewState to ViewState
func (bvs *BunViewState) ToViewState() *ViewState {
	return &ViewState{
		DocumentULID: bvs.DocumentULID,
		LastPage:     bvs.LastPage,
		LastScale:    bvs.LastScale,
		Updated:      bvs.UpdatedAt,
	}
}

// FromViewState converts ViewState to BunViewState
func FromViewState(state *ViewState) *BunViewState {
	return &BunViewState{
		DocumentULID: state.DocumentULID,
		LastPage:     state.LastPage,
		LastScale:    state.LastScale,
		UpdatedAt:    state.Updated,
	}
}
