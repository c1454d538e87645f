// Package backend defines the payment backend capability and the adapters
// that implement it. Any backend that can issue a payment target and
// report the amount received against it qualifies: invoice backends where
// the target expires and the amount is fixed, and address backends where
// the target is reusable. The session layer treats both uniformly.
package backend

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentBackend is the capability a payment session needs from the
// settlement layer.
type PaymentBackend interface {
	// CreateTarget requests a receiving target (invoice string or
	// address) for the given crypto amount. The returned ref is the
	// opaque correlation handle later passed to AmountReceived.
	CreateTarget(ctx context.Context, amount decimal.Decimal) (target, ref string, err error)

	// AmountReceived reports the confirmed and unconfirmed amounts
	// observed so far for the given reference. Both are zero or
	// positive, never negative.
	AmountReceived(ctx context.Context, ref string) (confirmed, unconfirmed decimal.Decimal, err error)

	// Method identifies the backend type in persisted payment records.
	Method() string
}
