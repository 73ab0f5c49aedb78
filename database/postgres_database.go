package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/oklog/ulid/v2"
)

// PostgresDB implements Repository for an external PostgreSQL server using
// plain SQL
type PostgresDB struct {
	db *sql.DB
}

// SetupPostgresDatabase connects to an external PostgreSQL server and brings
// the schema up to date
func SetupPostgresDatabase(connectionString string) (*PostgresDB, error) {
	Logger.Info("Connecting to external PostgreSQL server...")

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	Logger.Info("Connected to PostgreSQL database successfully")

	// Run migrations
	Logger.Info("Running database migrations...")
	if err := runPostgresMigrations(db); err != nil {
		Logger.Error("Failed to run database migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	Logger.Info("Database migrations completed successfully")

	return &PostgresDB{db: db}, nil
}

func runPostgresMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Try to find the migrations directory
	// First try from project root
	migrationsPath, err := filepath.Abs("database/migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// If running from within the database directory (during tests), adjust path
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		migrationsPath, err = filepath.Abs("migrations")
		if err != nil {
			return fmt.Errorf("failed to get migrations path: %w", err)
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Check current version and apply migrations
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if dirty {
		// Try to force clean and retry
		Logger.Warn("Database is in dirty state, attempting to recover")
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// SaveDocument saves or updates a document
func (p *PostgresDB) SaveDocument(doc *Document) error {
	query := `
		INSERT INTO documents (name, path, ulid, num_pages, added_time, last_opened)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			name = EXCLUDED.name,
			ulid = EXCLUDED.ulid,
			num_pages = EXCLUDED.num_pages,
			last_opened = EXCLUDED.last_opened,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`

	return p.db.QueryRow(query,
		doc.Name, doc.Path, doc.ULID.String(), doc.NumPages,
		doc.AddedTime, doc.LastOpened,
	).Scan(&doc.ID)
}

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var ulidStr string

	err := row.Scan(&doc.ID, &doc.Name, &doc.Path, &ulidStr,
		&doc.NumPages, &doc.AddedTime, &doc.LastOpened)
	if err != nil {
		return nil, err
	}

	doc.ULID, err = ulid.Parse(ulidStr)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

const documentColumns = "id, name, path, ulid, num_pages, added_time, last_opened"

// GetDocumentByULID retrieves a document by ULID
func (p *PostgresDB) GetDocumentByULID(ulidStr string) (*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE ulid = $1"
	return scanDocument(p.db.QueryRow(query, ulidStr))
}

// GetDocumentByPath retrieves a document by path
func (p *PostgresDB) GetDocumentByPath(path string) (*Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE path = $1"
	return scanDocument(p.db.QueryRow(query, path))
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var doc Document
		var ulidStr string

		err := rows.Scan(&doc.ID, &doc.Name, &doc.Path, &ulidStr,
			&doc.NumPages, &doc.AddedTime, &doc.LastOpened)
		if err != nil {
			return nil, err
		}
		doc.ULID, err = ulid.Parse(ulidStr)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

// GetAllDocuments retrieves every document ordered by name
func (p *PostgresDB) GetAllDocuments() ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents ORDER BY name ASC"
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// GetRecentDocuments retrieves the most recently opened documents
func (p *PostgresDB) GetRecentDocuments(limit int) ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents ORDER BY last_opened DESC LIMIT $1"
	rows, err := p.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// DeleteDocument removes a document and its view state
func (p *PostgresDB) DeleteDocument(ulidStr string) error {
	if _, err := p.db.Exec("DELETE FROM view_state WHERE document_ulid = $1", ulidStr); err != nil {
		return err
	}
	_, err := p.db.Exec("DELETE FROM documents WHERE ulid = $1", ulidStr)
	return err
}

// TouchDocument updates the last opened time for a document
func (p *PostgresDB) TouchDocument(ulidStr string, openedAt time.Time) error {
	_, err := p.db.Exec(
		"UPDATE documents SET last_opened = $1, updated_at = CURRENT_TIMESTAMP WHERE ulid = $2",
		openedAt, ulidStr)
	return err
}

// SaveViewState saves or updates the reading position for a document
func (p *PostgresDB) SaveViewState(state *ViewState) error {
	query := `
		INSERT INTO view_state (document_ulid, last_page, last_scale, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_ulid) DO UPDATE SET
			last_page = EXCLUDED.last_page,
			last_scale = EXCLUDED.last_scale,
			updated_at = EXCLUDED.updated_at`

	_, err := p.db.Exec(query,
		state.DocumentULID, state.LastPage, state.LastScale, state.Updated)
	return err
}

// GetViewState retrieves the reading position for a document
func (p *PostgresDB) GetViewState(documentULID string) (*ViewState, error) {
	var state ViewState
	err := p.db.QueryRow(
		"SELECT document_ulid, last_page, last_scale, updated_at FROM view_state WHERE document_ulid = $1",
		documentULID,
	).Scan(&state.DocumentULID, &state.LastPage, &state.LastScale, &state.Updated)
	if err != nil {
		return nil, err
	}
	return &state, nil
}
