package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/stapelberg/postgrestest"
)

// EphemeralPostgres holds a throwaway PostgreSQL server and a connection to a
// fresh database on it. Used for development and tests; everything is gone
// once Cleanup runs.
type EphemeralPostgres struct {
	DB     *sql.DB
	server *postgrestest.Server
}

// SetupEphemeralPostgres creates an ephemeral PostgreSQL instance
func SetupEphemeralPostgres() (*EphemeralPostgres, error) {
	Logger.Info("Starting ephemeral PostgreSQL server...")

	ctx := context.Background()

	// Start the ephemeral PostgreSQL server
	// Uses a temporary directory by default for simplicity
	pgt, err := postgrestest.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start ephemeral postgres: %w", err)
	}

	// Create a new database for the application
	viewerDSN, err := pgt.CreateDatabase(ctx)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to create gopdfview database: %w", err)
	}

	Logger.Info("Created ephemeral database", "dsn", viewerDSN)

	// Connect to the new database
	db, err := sql.Open("postgres", viewerDSN)
	if err != nil {
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to open gopdfview database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		pgt.Cleanup()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	Logger.Info("Connected to ephemeral PostgreSQL database successfully")

	return &EphemeralPostgres{DB: db, server: pgt}, nil
}

// Cleanup stops the ephemeral server and discards its data
func (e *EphemeralPostgres) Cleanup() {
	if e.server != nil {
		Logger.Info("Cleaning up ephemeral PostgreSQL server...")
		e.server.Cleanup()
		e.server = nil
	}
}
