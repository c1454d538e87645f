package backend

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AddressAllocator is the slice of the ledger the xpub backend needs:
// atomic reservation of the next derivation index for an xpub.
type AddressAllocator interface {
	AllocateAddressIndex(ctx context.Context, xpub string, derive func(index int64) (string, error)) (int64, string, error)
}

// Deriver turns an xpub and a derivation index into a receiving address.
// Derivation happens off-system (a wallet library, an external signer);
// this package only consumes the result.
type Deriver func(xpub string, index int64) (string, error)

// ChainWatcher reports amounts received by an on-chain address, split into
// confirmed and unconfirmed (mempool) funds.
type ChainWatcher interface {
	AddressBalance(ctx context.Context, address string) (confirmed, unconfirmed decimal.Decimal, err error)
}

// Xpub is an address backend: each payment gets a fresh address derived
// from a merchant xpub at the next unused index. Targets are reusable and
// the amount is unconstrained, so settlement is judged purely by what the
// chain watcher observes. The address itself doubles as the backend
// reference.
type Xpub struct {
	xpub      string
	allocator AddressAllocator
	derive    Deriver
	watcher   ChainWatcher
}

var _ PaymentBackend = (*Xpub)(nil)

// NewXpub creates an address backend for the given xpub.
func NewXpub(xpub string, allocator AddressAllocator, derive Deriver, watcher ChainWatcher) *Xpub {
	return &Xpub{
		xpub:      xpub,
		allocator: allocator,
		derive:    derive,
		watcher:   watcher,
	}
}

// Method identifies on-chain payments in the ledger.
func (x *Xpub) Method() string { return "onchain" }

// CreateTarget reserves the next derivation index, derives its address and
// records the allocation. Index reservation and the allocation row commit
// atomically in the ledger, so concurrent payments never share an address.
// The requested amount does not constrain the target.
func (x *Xpub) CreateTarget(ctx context.Context, _ decimal.Decimal) (string, string, error) {
	_, address, err := x.allocator.AllocateAddressIndex(ctx, x.xpub, func(index int64) (string, error) {
		return x.derive(x.xpub, index)
	})
	if err != nil {
		return "", "", fmt.Errorf("allocate address: %w", err)
	}
	return address, address, nil
}

// AmountReceived reports what the chain watcher has observed for the
// payment's address.
func (x *Xpub) AmountReceived(ctx context.Context, ref string) (decimal.Decimal, decimal.Decimal, error) {
	confirmed, unconfirmed, err := x.watcher.AddressBalance(ctx, ref)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("address balance: %w", err)
	}
	return confirmed, unconfirmed, nil
}
