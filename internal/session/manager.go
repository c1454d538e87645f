package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/backend"
	"github.com/eddiepease/SatSale/internal/models"
	"github.com/eddiepease/SatSale/internal/storage"
)

// Manager creates payment sessions and runs each one's polling loop on its
// own goroutine, per the one-worker-per-session model. Session poll loops
// stop when the manager's base context is cancelled.
type Manager struct {
	cfg      Config
	oracle   Oracle
	backend  backend.PaymentBackend
	ledger   storage.Ledger
	notifier *Notifier

	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewManager creates a manager whose session poll loops live under
// baseCtx.
func NewManager(baseCtx context.Context, cfg Config, oracle Oracle, pb backend.PaymentBackend, ledger storage.Ledger, notifier *Notifier) *Manager {
	return &Manager{
		cfg:      cfg,
		oracle:   oracle,
		backend:  pb,
		ledger:   ledger,
		notifier: notifier,
		baseCtx:  baseCtx,
	}
}

// CreatePayment starts a new session and launches its polling loop.
// The returned record is the persisted pending payment; its later states
// are read back from the ledger.
func (m *Manager) CreatePayment(ctx context.Context, fiatAmount decimal.Decimal, currency, provider, webhookURL string) (models.PaymentRecord, error) {
	sess := New(m.cfg, m.oracle, m.backend, m.ledger, m.notifier)
	if err := sess.Start(ctx, fiatAmount, currency, provider, webhookURL); err != nil {
		return models.PaymentRecord{}, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		state, err := sess.Run(m.baseCtx)
		if err != nil {
			slog.Warn("payment polling stopped", "id", sess.Record().ID, "state", state, "error", err)
		}
	}()

	return sess.Record(), nil
}

// GetPayment reads a payment record from the ledger.
func (m *Manager) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	return m.ledger.FindPayment(ctx, id)
}

// Wait blocks until all launched polling loops have returned. Used during
// shutdown, after cancelling the base context.
func (m *Manager) Wait() {
	m.wg.Wait()
}
