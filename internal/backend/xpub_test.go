package backend

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// fakeAllocator hands out sequential indices like the SQLite ledger does.
type fakeAllocator struct {
	next int64
}

func (f *fakeAllocator) AllocateAddressIndex(_ context.Context, _ string, derive func(int64) (string, error)) (int64, string, error) {
	index := f.next
	addr, err := derive(index)
	if err != nil {
		return 0, "", err
	}
	f.next++
	return index, addr, nil
}

type fakeWatcher struct {
	confirmed   decimal.Decimal
	unconfirmed decimal.Decimal
	asked       string
}

func (f *fakeWatcher) AddressBalance(_ context.Context, address string) (decimal.Decimal, decimal.Decimal, error) {
	f.asked = address
	return f.confirmed, f.unconfirmed, nil
}

func TestXpubBackend(t *testing.T) {
	ctx := context.Background()

	derive := func(xpub string, index int64) (string, error) {
		return fmt.Sprintf("addr-%s-%d", xpub, index), nil
	}

	t.Run("each target gets a fresh derived address", func(t *testing.T) {
		x := NewXpub("zpub123", &fakeAllocator{}, derive, &fakeWatcher{})

		target0, ref0, err := x.CreateTarget(ctx, decimal.RequireFromString("0.002"))
		if err != nil {
			t.Fatalf("CreateTarget failed: %v", err)
		}
		target1, _, err := x.CreateTarget(ctx, decimal.RequireFromString("0.002"))
		if err != nil {
			t.Fatalf("CreateTarget failed: %v", err)
		}

		if target0 != "addr-zpub123-0" || target1 != "addr-zpub123-1" {
			t.Errorf("targets: got %q, %q", target0, target1)
		}
		if ref0 != target0 {
			t.Errorf("ref should be the address itself, got %q", ref0)
		}
	})

	t.Run("amount received delegates to the chain watcher", func(t *testing.T) {
		watcher := &fakeWatcher{
			confirmed:   decimal.RequireFromString("0.001"),
			unconfirmed: decimal.RequireFromString("0.0005"),
		}
		x := NewXpub("zpub123", &fakeAllocator{}, derive, watcher)

		confirmed, unconfirmed, err := x.AmountReceived(ctx, "addr-zpub123-0")
		if err != nil {
			t.Fatalf("AmountReceived failed: %v", err)
		}
		if watcher.asked != "addr-zpub123-0" {
			t.Errorf("watcher asked for %q", watcher.asked)
		}
		if !confirmed.Equal(watcher.confirmed) || !unconfirmed.Equal(watcher.unconfirmed) {
			t.Errorf("amounts: got %s/%s", confirmed, unconfirmed)
		}
	})
}
