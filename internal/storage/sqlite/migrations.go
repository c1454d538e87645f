package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/eddiepease/SatSale/internal/storage"
)

// A migration is one forward-only schema step. Steps are applied in
// ascending version order; each step's DDL and its version bump commit in
// the same transaction, so a store is always at a well-defined version.
type migration struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{
		version:     1,
		description: "create schema_version and payments tables",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE schema_version (version INTEGER NOT NULL)`,
				`INSERT INTO schema_version (version) VALUES (0)`,
				`CREATE TABLE payments (
					id TEXT PRIMARY KEY,
					fiat_value TEXT NOT NULL,
					crypto_value TEXT NOT NULL,
					method TEXT NOT NULL,
					target TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					webhook TEXT NOT NULL DEFAULT '',
					backend_ref TEXT NOT NULL DEFAULT '',
					confirmed_amount TEXT NOT NULL DEFAULT '0',
					unconfirmed_amount TEXT NOT NULL DEFAULT '0',
					status TEXT NOT NULL
				)`,
				`CREATE INDEX idx_payments_status ON payments(status)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		version:     2,
		description: "create addresses table for generated addresses",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE TABLE addresses (
				xpub TEXT NOT NULL,
				n INTEGER NOT NULL,
				address TEXT NOT NULL,
				PRIMARY KEY (xpub, n)
			)`)
			return err
		},
	},
}

// Migrate applies all pending schema steps. Idempotent: a store already at
// the head version is left untouched.
func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return &storage.MigrationError{Version: current, Err: err}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("migrating database schema",
			"from", current, "to", m.version, "description", m.description)

		if err := s.applyStep(ctx, m); err != nil {
			return &storage.MigrationError{Version: m.version, Err: err}
		}
		current = m.version
	}

	return nil
}

// applyStep runs one migration step and its version bump in a single
// transaction.
func (s *SQLiteLedger) applyStep(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = ?", m.version); err != nil {
		return fmt.Errorf("failed to advance schema version: %w", err)
	}

	return tx.Commit()
}

// schemaVersion reads the stored schema version, or 0 when the version
// marker table does not exist yet (a brand-new store).
func (s *SQLiteLedger) schemaVersion(ctx context.Context) (int, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect schema: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
