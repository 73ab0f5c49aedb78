package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// runMigrations runs all Bun migrations
func (b *BunDB) runMigrations(ctx context.Context) error {
	// Create a simple migrations tracking table
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bun_schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Check which migrations have been applied
	type AppliedMigration struct {
		bun.BaseModel `bun:"table:bun_schema_migrations"`
		Version       string `bun:"version"`
	}
	var applied []AppliedMigration
	err = b.db.NewSelect().
		Model(&applied).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	// Run migrations in order
	migrations := []struct {
		version string
		name    string
		up      func(context.Context, *bun.DB) error
	}{
		{"001", "create_documents_table", init001CreateDocumentsTable},
		{"002", "create_view_state_table", init002CreateViewStateTable},
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, b.db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		// Mark as applied
		_, err = b.db.NewInsert().
			Model(&AppliedMigration{Version: m.version}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// Migration 001: Create the documents table
func init001CreateDocumentsTable(ctx context.Context, db *bun.DB) error {
	Logger.Info("Running migration 001: Create documents table")

	// Detect database dialect - check if it's PostgreSQL by checking dialect features
	_, isPostgres := db.Dialect().(interface{ SupportsReturning() bool })

	var createTableSQL string
	if isPostgres {
		createTableSQL = `
			CREATE TABLE IF NOT EXISTS documents (
				id SERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				path TEXT NOT NULL UNIQUE,
				ulid TEXT NOT NULL UNIQUE,
				num_pages INTEGER NOT NULL DEFAULT 0,
				added_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_opened TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	} else {
		createTableSQL = `
			CREATE TABLE IF NOT EXISTS documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				path TEXT NOT NULL UNIQUE,
				ulid TEXT NOT NULL UNIQUE,
				num_pages INTEGER NOT NULL DEFAULT 0,
				added_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_opened TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`
	}

	_, err := db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	// Create indexes for documents
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_documents_ulid ON documents(ulid)",
		"CREATE INDEX IF NOT EXISTS idx_documents_last_opened ON documents(last_opened DESC)",
	}

	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	Logger.Info("Migration 001 completed successfully")
	return nil
}

func init001RollbackDocumentsTable(ctx context.Context, db *bun.DB) error {
	Logger.Info("Rolling back migration 001")

	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS documents")
	return err
}

// Migration 002: Create the view_state table
func init002CreateViewStateTable(ctx context.Context, db *bun.DB) error {
	Logger.Info("Running migration 002: Create view_state table")

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS view_state (
			document_ulid TEXT PRIMARY KEY,
			last_page INTEGER NOT NULL DEFAULT 1,
			last_scale REAL NOT NULL DEFAULT 1.0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create view_state table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_view_state_updated_at ON view_state(updated_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	Logger.Info("Migration 002 completed successfully")
	return nil
}

func init002RollbackViewStateTable(ctx context.Context, db *bun.DB) error {
	Logger.Info("Rolling back migration 002")

	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS view_state")
	return err
}
