package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/session"
	"github.com/eddiepease/SatSale/internal/storage/sqlite"
)

type stubOracle struct{}

func (stubOracle) Convert(_ context.Context, fiatAmount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	return fiatAmount.Div(decimal.NewFromInt(50000)), nil
}

type stubBackend struct{}

func (stubBackend) Method() string { return "fake" }

func (stubBackend) CreateTarget(context.Context, decimal.Decimal) (string, string, error) {
	return "fake-target", "fake-ref", nil
}

func (stubBackend) AmountReceived(context.Context, string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ledger, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	if err := ledger.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	manager := session.NewManager(ctx, session.Config{
		PollInterval:    10 * time.Millisecond,
		MaxPollAttempts: 1,
	}, stubOracle{}, stubBackend{}, ledger, nil)
	t.Cleanup(manager.Wait)

	server := httptest.NewServer(NewServer(manager, "usd", "coingecko").Handler())
	t.Cleanup(server.Close)
	return server
}

func TestPaymentEndpoints(t *testing.T) {
	server := setupTestServer(t)

	t.Run("create then fetch round trip", func(t *testing.T) {
		body := bytes.NewBufferString(`{"fiat_amount": "100"}`)
		resp, err := http.Post(server.URL+"/api/v1/payments", "application/json", body)
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusCreated)
		}

		var created paymentResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if created.ID == "" || created.Target != "fake-target" {
			t.Errorf("created payment: %+v", created)
		}
		if created.CryptoValue != "0.002" {
			t.Errorf("crypto value: got %s, want 0.002", created.CryptoValue)
		}
		if created.Status != "awaiting_payment" {
			t.Errorf("status: got %s, want awaiting_payment", created.Status)
		}

		getResp, err := http.Get(server.URL + "/api/v1/payments/" + created.ID)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer getResp.Body.Close()
		if getResp.StatusCode != http.StatusOK {
			t.Fatalf("status: got %d, want %d", getResp.StatusCode, http.StatusOK)
		}

		var fetched paymentResponse
		if err := json.NewDecoder(getResp.Body).Decode(&fetched); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if fetched.ID != created.ID || fetched.CryptoValue != created.CryptoValue {
			t.Errorf("fetched payment mismatch: %+v vs %+v", fetched, created)
		}
	})

	t.Run("unknown payment is 404", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/v1/payments/does-not-exist")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("rejects bad amounts", func(t *testing.T) {
		for _, amount := range []string{`"abc"`, `"-5"`, `"0"`} {
			body := bytes.NewBufferString(`{"fiat_amount": ` + amount + `}`)
			resp, err := http.Post(server.URL+"/api/v1/payments", "application/json", body)
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("amount %s: status got %d, want %d", amount, resp.StatusCode, http.StatusBadRequest)
			}
		}
	})

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})
}
