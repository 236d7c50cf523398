// Package db stores reconstruction run reports in SQLite. Only summary
// statistics are kept; tracks are never read back as input to a later run.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every connection opened by NewDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

type DB struct {
	*sql.DB
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateUp(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; a single connection also keeps
	// ":memory:" databases coherent.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &DB{sqlDB}, nil
}
