package models

import "github.com/shopspring/decimal"

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	// StatusCreated means the session exists but no target has been
	// requested yet. Records are never persisted in this state.
	StatusCreated PaymentStatus = "created"

	// StatusAwaitingPayment means a target was issued and nothing has been
	// received against it.
	StatusAwaitingPayment PaymentStatus = "awaiting_payment"

	// StatusPartiallyPaid means some funds were observed but the confirmed
	// amount is still below the requested crypto value.
	StatusPartiallyPaid PaymentStatus = "partially_paid"

	// StatusConfirmed means the confirmed amount covers the requested
	// crypto value. Terminal.
	StatusConfirmed PaymentStatus = "confirmed"

	// StatusExpired means the payment window elapsed before confirmation.
	// Terminal.
	StatusExpired PaymentStatus = "expired"

	// StatusFailed means setup (quote or target creation) failed.
	// Terminal.
	StatusFailed PaymentStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// PaymentRecord is one payment attempt as persisted in the ledger.
//
// FiatValue, CryptoValue, Method, Target, BackendRef and CreatedAt are
// fixed at creation. In particular CryptoValue is never recomputed from a
// later quote: confirmation always compares observed amounts against the
// value frozen here.
type PaymentRecord struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// FiatValue is the requested amount in fiat units.
	FiatValue decimal.Decimal

	// CryptoValue is the requested amount in crypto units, computed as
	// FiatValue divided by the exchange rate at creation time.
	CryptoValue decimal.Decimal

	// Method identifies which backend type produced this record,
	// e.g. "lightning" or "onchain".
	Method string

	// Target is the invoice string or address the payer sends funds to.
	Target string

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64

	// Webhook is an optional URL notified when the payment confirms.
	Webhook string

	// BackendRef is the backend-specific correlation handle used to look
	// up payment status (an invoice hash, an address, ...).
	BackendRef string

	// ConfirmedAmount is the confirmed amount observed so far.
	ConfirmedAmount decimal.Decimal

	// UnconfirmedAmount is the unconfirmed amount observed so far.
	UnconfirmedAmount decimal.Decimal

	// Status is the current lifecycle state.
	Status PaymentStatus
}

// AddressAllocation records one address ever issued for an extended public
// key. Rows are append-only; for a fixed Xpub the indices issued are
// strictly increasing from zero with no reuse.
type AddressAllocation struct {
	// Xpub is the extended public key the address was derived from.
	Xpub string

	// Index is the derivation index within the xpub.
	Index int64

	// Address is the derived address. Derivation happens off-system;
	// the ledger only records the mapping.
	Address string
}
