// Package sqlite provides a SQLite-backed implementation of the
// storage.Ledger interface.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/eddiepease/SatSale/internal/storage"
)

// Ensure SQLiteLedger implements storage.Ledger
var _ storage.Ledger = (*SQLiteLedger)(nil)

// SQLiteLedger implements storage.Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB

	// allocMu serializes address allocations. SQLite gives us durability
	// and cross-process safety (the (xpub, n) primary key rejects a
	// duplicate index), but two in-process transactions could still both
	// read the same max before either inserts; the mutex closes that
	// window so AllocateAddressIndex is atomic for concurrent callers.
	allocMu sync.Mutex
}

// New opens (creating if necessary) the database at dbPath. It creates the
// parent directories and applies connection pragmas, but does not migrate:
// callers run Migrate before first use, typically at startup.
func New(dbPath string) (*SQLiteLedger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &SQLiteLedger{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
