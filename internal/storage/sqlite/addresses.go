package sqlite

import (
	"context"
	"fmt"
)

// NextAddressIndex returns max(recorded indices)+1 for the xpub, or 0 if
// none exist. The value is read from durable state on every call.
func (s *SQLiteLedger) NextAddressIndex(ctx context.Context, xpub string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(n) + 1, 0) FROM addresses WHERE xpub = ?", xpub,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read next address index: %w", err)
	}
	return next, nil
}

// RecordAddressAllocation appends one allocation row. The (xpub, n)
// primary key rejects index reuse.
func (s *SQLiteLedger) RecordAddressAllocation(ctx context.Context, xpub string, index int64, address string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO addresses (xpub, n, address) VALUES (?, ?, ?)",
		xpub, index, address,
	)
	if err != nil {
		return fmt.Errorf("failed to record address allocation: %w", err)
	}
	return nil
}

// AllocateAddressIndex reserves the next index for the xpub, derives an
// address for it, and records the allocation as one atomic unit. The
// read-max-then-insert pair runs under the allocation lock and inside a
// transaction, so concurrent allocators on the same xpub serialize here
// rather than relying on callers to do it.
func (s *SQLiteLedger) AllocateAddressIndex(ctx context.Context, xpub string, derive func(index int64) (string, error)) (int64, string, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var index int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(n) + 1, 0) FROM addresses WHERE xpub = ?", xpub,
	).Scan(&index)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read next address index: %w", err)
	}

	address, err := derive(index)
	if err != nil {
		return 0, "", fmt.Errorf("failed to derive address for index %d: %w", index, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO addresses (xpub, n, address) VALUES (?, ?, ?)",
		xpub, index, address,
	)
	if err != nil {
		return 0, "", fmt.Errorf("failed to record address allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("failed to commit allocation: %w", err)
	}
	return index, address, nil
}
