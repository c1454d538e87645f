// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/models"
)

// ErrNotFound is returned when a lookup or update targets a record that
// does not exist.
var ErrNotFound = errors.New("not found")

// MigrationError wraps a failure to apply one schema migration step.
// A failed step leaves the store at its previous version; the step's
// structural change and its version bump commit together or not at all.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration to schema version %d: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// PaymentUpdate names the mutable fields of a payment record. Nil fields
// are left unchanged. Value fields (fiat/crypto amounts, target, backend
// reference) are immutable after insert and deliberately absent here.
type PaymentUpdate struct {
	Status            *models.PaymentStatus
	ConfirmedAmount   *decimal.Decimal
	UnconfirmedAmount *decimal.Decimal
}

// Filter is a structured predicate for payment queries. Zero-valued fields
// are not applied. Conditions are combined with AND and compiled to
// parameterized SQL, never interpolated into the query text.
type Filter struct {
	Method       string
	Status       models.PaymentStatus
	CreatedAfter int64
}

// Ledger defines the interface for the durable payment store.
// This abstraction allows swapping storage backends without changing the
// session layer.
type Ledger interface {
	// Migrate brings the schema to the current version, applying any
	// pending steps in ascending order. Each step is atomic and the
	// routine is idempotent: calling it on an up-to-date store performs
	// no writes. Safe (and expected) to call on every startup.
	Migrate(ctx context.Context) error

	// InsertPayment appends a new payment record. All fields are written
	// in one statement; there are no partial inserts.
	InsertPayment(ctx context.Context, rec *models.PaymentRecord) error

	// UpdatePayment applies upd to the record with the given id.
	// Returns ErrNotFound, without writing, if the id is absent.
	UpdatePayment(ctx context.Context, id string, upd PaymentUpdate) error

	// FindPayment retrieves a payment record by id.
	// Returns ErrNotFound if the id is absent.
	FindPayment(ctx context.Context, id string) (*models.PaymentRecord, error)

	// QueryPayments returns all records matching the filter.
	QueryPayments(ctx context.Context, f Filter) ([]models.PaymentRecord, error)

	// NextAddressIndex returns the next unused derivation index for the
	// xpub: max(recorded indices)+1, or 0 if none exist. Computed from
	// durable state at call time, never cached.
	NextAddressIndex(ctx context.Context, xpub string) (int64, error)

	// RecordAddressAllocation appends one address allocation row.
	RecordAddressAllocation(ctx context.Context, xpub string, index int64, address string) error

	// AllocateAddressIndex reserves the next index for the xpub, derives
	// an address for it via derive, and records the allocation, all as a
	// single atomic unit. Concurrent callers on the same xpub can never
	// receive the same index.
	AllocateAddressIndex(ctx context.Context, xpub string, derive func(index int64) (string, error)) (int64, string, error)

	// Close releases any resources held by the store.
	Close() error
}
