package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/models"
	"github.com/eddiepease/SatSale/internal/storage"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	ledger, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	if err := ledger.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return ledger
}

func testRecord(id string) *models.PaymentRecord {
	return &models.PaymentRecord{
		ID:                id,
		FiatValue:         decimal.RequireFromString("100"),
		CryptoValue:       decimal.RequireFromString("0.002"),
		Method:            "lightning",
		Target:            "lnbc20m1pv...",
		CreatedAt:         1700000000,
		Webhook:           "https://merchant.example/hook",
		BackendRef:        "a1b2c3",
		ConfirmedAmount:   decimal.Zero,
		UnconfirmedAmount: decimal.Zero,
		Status:            models.StatusAwaitingPayment,
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("second run is a no-op", func(t *testing.T) {
		ledger := newTestLedger(t)

		before, err := ledger.schemaVersion(ctx)
		if err != nil {
			t.Fatalf("schemaVersion failed: %v", err)
		}
		if want := migrations[len(migrations)-1].version; before != want {
			t.Fatalf("schema version after migrate: got %d, want %d", before, want)
		}

		if err := ledger.Migrate(ctx); err != nil {
			t.Fatalf("second Migrate failed: %v", err)
		}

		after, err := ledger.schemaVersion(ctx)
		if err != nil {
			t.Fatalf("schemaVersion failed: %v", err)
		}
		if after != before {
			t.Errorf("schema version changed on re-run: got %d, want %d", after, before)
		}
	})

	t.Run("migrated store accepts writes", func(t *testing.T) {
		ledger := newTestLedger(t)
		if err := ledger.InsertPayment(ctx, testRecord("m-1")); err != nil {
			t.Errorf("InsertPayment after migrate failed: %v", err)
		}
		if err := ledger.RecordAddressAllocation(ctx, "xpub-m", 0, "addr0"); err != nil {
			t.Errorf("RecordAddressAllocation after migrate failed: %v", err)
		}
	})
}

func TestPayments(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	t.Run("insert then find round-trips all fields", func(t *testing.T) {
		original := testRecord("p-1")
		if err := ledger.InsertPayment(ctx, original); err != nil {
			t.Fatalf("InsertPayment failed: %v", err)
		}

		got, err := ledger.FindPayment(ctx, "p-1")
		if err != nil {
			t.Fatalf("FindPayment failed: %v", err)
		}
		if got.ID != original.ID || got.Method != original.Method ||
			got.Target != original.Target || got.BackendRef != original.BackendRef ||
			got.Webhook != original.Webhook || got.CreatedAt != original.CreatedAt ||
			got.Status != original.Status {
			t.Errorf("record mismatch: got %+v, want %+v", got, original)
		}
		if !got.FiatValue.Equal(original.FiatValue) {
			t.Errorf("FiatValue mismatch: got %s, want %s", got.FiatValue, original.FiatValue)
		}
		if !got.CryptoValue.Equal(original.CryptoValue) {
			t.Errorf("CryptoValue mismatch: got %s, want %s", got.CryptoValue, original.CryptoValue)
		}
	})

	t.Run("find returns ErrNotFound for unknown id", func(t *testing.T) {
		_, err := ledger.FindPayment(ctx, "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update mutates only confirmation fields", func(t *testing.T) {
		if err := ledger.InsertPayment(ctx, testRecord("p-2")); err != nil {
			t.Fatalf("InsertPayment failed: %v", err)
		}

		status := models.StatusPartiallyPaid
		confirmed := decimal.RequireFromString("0.001")
		err := ledger.UpdatePayment(ctx, "p-2", storage.PaymentUpdate{
			Status:          &status,
			ConfirmedAmount: &confirmed,
		})
		if err != nil {
			t.Fatalf("UpdatePayment failed: %v", err)
		}

		got, err := ledger.FindPayment(ctx, "p-2")
		if err != nil {
			t.Fatalf("FindPayment failed: %v", err)
		}
		if got.Status != models.StatusPartiallyPaid {
			t.Errorf("Status: got %s, want %s", got.Status, models.StatusPartiallyPaid)
		}
		if !got.ConfirmedAmount.Equal(confirmed) {
			t.Errorf("ConfirmedAmount: got %s, want %s", got.ConfirmedAmount, confirmed)
		}
		// Immutable fields untouched.
		if !got.CryptoValue.Equal(decimal.RequireFromString("0.002")) {
			t.Errorf("CryptoValue changed by update: got %s", got.CryptoValue)
		}
	})

	t.Run("update on unknown id returns ErrNotFound without writing", func(t *testing.T) {
		status := models.StatusConfirmed
		err := ledger.UpdatePayment(ctx, "missing", storage.PaymentUpdate{Status: &status})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("query filters by status and method", func(t *testing.T) {
		confirmedRec := testRecord("p-3")
		confirmedRec.Status = models.StatusConfirmed
		confirmedRec.Method = "onchain"
		if err := ledger.InsertPayment(ctx, confirmedRec); err != nil {
			t.Fatalf("InsertPayment failed: %v", err)
		}

		got, err := ledger.QueryPayments(ctx, storage.Filter{
			Method: "onchain",
			Status: models.StatusConfirmed,
		})
		if err != nil {
			t.Fatalf("QueryPayments failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != "p-3" {
			t.Errorf("query result: got %v, want single record p-3", got)
		}
	})
}

func TestAddressAllocation(t *testing.T) {
	ctx := context.Background()

	derive := func(index int64) (string, error) {
		return fmt.Sprintf("bc1q-test-%d", index), nil
	}

	t.Run("sequential allocations are gapless from zero", func(t *testing.T) {
		ledger := newTestLedger(t)

		for want := int64(0); want < 5; want++ {
			next, err := ledger.NextAddressIndex(ctx, "xpub-a")
			if err != nil {
				t.Fatalf("NextAddressIndex failed: %v", err)
			}
			if next != want {
				t.Errorf("NextAddressIndex: got %d, want %d", next, want)
			}

			index, addr, err := ledger.AllocateAddressIndex(ctx, "xpub-a", derive)
			if err != nil {
				t.Fatalf("AllocateAddressIndex failed: %v", err)
			}
			if index != want {
				t.Errorf("allocated index: got %d, want %d", index, want)
			}
			if addr != fmt.Sprintf("bc1q-test-%d", want) {
				t.Errorf("allocated address: got %s", addr)
			}
		}
	})

	t.Run("xpubs allocate independently", func(t *testing.T) {
		ledger := newTestLedger(t)

		if _, _, err := ledger.AllocateAddressIndex(ctx, "xpub-a", derive); err != nil {
			t.Fatalf("AllocateAddressIndex failed: %v", err)
		}
		index, _, err := ledger.AllocateAddressIndex(ctx, "xpub-b", derive)
		if err != nil {
			t.Fatalf("AllocateAddressIndex failed: %v", err)
		}
		if index != 0 {
			t.Errorf("first index for fresh xpub: got %d, want 0", index)
		}
	})

	t.Run("recorded indices cannot be reused", func(t *testing.T) {
		ledger := newTestLedger(t)

		if err := ledger.RecordAddressAllocation(ctx, "xpub-c", 0, "addr0"); err != nil {
			t.Fatalf("RecordAddressAllocation failed: %v", err)
		}
		if err := ledger.RecordAddressAllocation(ctx, "xpub-c", 0, "addr0-again"); err == nil {
			t.Error("expected duplicate index to be rejected")
		}
	})

	t.Run("concurrent allocators never share an index", func(t *testing.T) {
		ledger := newTestLedger(t)

		const workers = 8
		const perWorker = 5

		var wg sync.WaitGroup
		indices := make(chan int64, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					index, _, err := ledger.AllocateAddressIndex(ctx, "xpub-hot", derive)
					if err != nil {
						t.Errorf("AllocateAddressIndex failed: %v", err)
						return
					}
					indices <- index
				}
			}()
		}
		wg.Wait()
		close(indices)

		seen := make(map[int64]bool)
		for index := range indices {
			if seen[index] {
				t.Errorf("index %d allocated twice", index)
			}
			seen[index] = true
		}
		if len(seen) != workers*perWorker {
			t.Fatalf("allocated %d distinct indices, want %d", len(seen), workers*perWorker)
		}
		// Gapless: every index in [0, n) was issued exactly once.
		for i := int64(0); i < workers*perWorker; i++ {
			if !seen[i] {
				t.Errorf("index %d never allocated", i)
			}
		}
	})
}
