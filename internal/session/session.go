// Package session orchestrates one payment lifecycle: quote the fiat
// amount into crypto, obtain a payment target from the backend, persist
// the pending record, then poll the backend until the payment settles or
// the window expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/backend"
	"github.com/eddiepease/SatSale/internal/models"
	"github.com/eddiepease/SatSale/internal/storage"
)

// ErrNotStarted is returned by Poll on a session whose Start has not
// succeeded.
var ErrNotStarted = errors.New("session not started")

// ErrPollBudgetExhausted is returned by Run when the attempt bound is hit
// before the session reached a terminal state.
var ErrPollBudgetExhausted = errors.New("poll budget exhausted")

// Oracle is the slice of the price oracle a session needs.
type Oracle interface {
	Convert(ctx context.Context, fiatAmount decimal.Decimal, currency, provider string) (decimal.Decimal, error)
}

// Config carries the session-level knobs.
type Config struct {
	// Expiry is how long after creation an unconfirmed payment is kept
	// alive before transitioning to expired.
	Expiry time.Duration

	// PollInterval is the sleep between backend polls in Run.
	PollInterval time.Duration

	// MaxPollAttempts bounds Run when the backend never settles nor
	// errors out; zero means bounded by Expiry alone.
	MaxPollAttempts int
}

// Session is one payment attempt moving through the state machine
//
//	created -> awaiting_payment <-> partially_paid -> confirmed
//
// with expired reachable from the two waiting states and failed reachable
// from created. A Session is driven by a single goroutine; it is not safe
// for concurrent use.
type Session struct {
	cfg      Config
	oracle   Oracle
	backend  backend.PaymentBackend
	ledger   storage.Ledger
	notifier *Notifier

	record models.PaymentRecord
	state  models.PaymentStatus

	now func() time.Time // test hook
}

// New creates a session in the created state.
func New(cfg Config, oracle Oracle, pb backend.PaymentBackend, ledger storage.Ledger, notifier *Notifier) *Session {
	return &Session{
		cfg:      cfg,
		oracle:   oracle,
		backend:  pb,
		ledger:   ledger,
		notifier: notifier,
		state:    models.StatusCreated,
		now:      time.Now,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() models.PaymentStatus { return s.state }

// Record returns a copy of the session's payment record.
func (s *Session) Record() models.PaymentRecord { return s.record }

// Start quotes the fiat amount, requests a payment target and persists the
// pending record. On any failure the session moves to failed and nothing
// partial is persisted: the record is only inserted once the target exists.
// The crypto value computed here is frozen for the life of the payment.
func (s *Session) Start(ctx context.Context, fiatAmount decimal.Decimal, currency, provider, webhookURL string) error {
	if s.state != models.StatusCreated {
		return fmt.Errorf("session already started (state %s)", s.state)
	}

	cryptoValue, err := s.oracle.Convert(ctx, fiatAmount, currency, provider)
	if err != nil {
		s.fail()
		return fmt.Errorf("quote %s/%s: %w", currency, provider, err)
	}

	target, ref, err := s.backend.CreateTarget(ctx, cryptoValue)
	if err != nil {
		s.fail()
		return fmt.Errorf("create payment target: %w", err)
	}

	s.record = models.PaymentRecord{
		ID:                uuid.NewString(),
		FiatValue:         fiatAmount,
		CryptoValue:       cryptoValue,
		Method:            s.backend.Method(),
		Target:            target,
		CreatedAt:         s.now().Unix(),
		Webhook:           webhookURL,
		BackendRef:        ref,
		ConfirmedAmount:   decimal.Zero,
		UnconfirmedAmount: decimal.Zero,
		Status:            models.StatusAwaitingPayment,
	}
	if err := s.ledger.InsertPayment(ctx, &s.record); err != nil {
		s.fail()
		return fmt.Errorf("persist payment: %w", err)
	}

	s.state = models.StatusAwaitingPayment
	paymentsStarted.WithLabelValues(s.record.Method).Inc()
	slog.Info("payment created",
		"id", s.record.ID,
		"method", s.record.Method,
		"fiat_value", s.record.FiatValue,
		"crypto_value", s.record.CryptoValue,
	)
	return nil
}

// Poll performs one reconciliation step: an expiry check, then one backend
// round trip. Terminal states make it a no-op returning the same state.
// A backend error leaves the state unchanged and is returned for the
// caller's retry bookkeeping.
func (s *Session) Poll(ctx context.Context) (models.PaymentStatus, error) {
	if s.state == models.StatusCreated {
		return s.state, ErrNotStarted
	}
	if s.state.Terminal() {
		return s.state, nil
	}

	// Expiry is judged before the backend call so an unresponsive backend
	// cannot keep a stale payment alive.
	if s.cfg.Expiry > 0 && s.now().Sub(time.Unix(s.record.CreatedAt, 0)) > s.cfg.Expiry {
		if err := s.transition(ctx, models.StatusExpired, nil, nil); err != nil {
			return s.state, err
		}
		paymentsExpired.WithLabelValues(s.record.Method).Inc()
		slog.Info("payment expired", "id", s.record.ID)
		return s.state, nil
	}

	confirmed, unconfirmed, err := s.backend.AmountReceived(ctx, s.record.BackendRef)
	if err != nil {
		return s.state, fmt.Errorf("query amount received: %w", err)
	}

	target := s.record.CryptoValue
	observed := confirmed.Add(unconfirmed)
	switch {
	case confirmed.Cmp(target) >= 0:
		if err := s.transition(ctx, models.StatusConfirmed, &confirmed, &unconfirmed); err != nil {
			return s.state, err
		}
		paymentsConfirmed.WithLabelValues(s.record.Method).Inc()
		slog.Info("payment confirmed", "id", s.record.ID, "confirmed", confirmed)
		s.notifyConfirmed(ctx)

	case observed.Sign() > 0:
		// Anything short of full confirmed coverage is treated as
		// partial, even when unconfirmed funds would reach the target.
		if err := s.transition(ctx, models.StatusPartiallyPaid, &confirmed, &unconfirmed); err != nil {
			return s.state, err
		}
		slog.Info("payment partially paid",
			"id", s.record.ID, "confirmed", confirmed, "unconfirmed", unconfirmed)

	case s.state == models.StatusPartiallyPaid:
		// Previously observed funds vanished (an evicted mempool
		// transaction); fall back to awaiting with zeroed amounts.
		zero := decimal.Zero
		if err := s.transition(ctx, models.StatusAwaitingPayment, &zero, &zero); err != nil {
			return s.state, err
		}
		slog.Info("payment back to awaiting", "id", s.record.ID)

	default:
		// Nothing observed; stay awaiting without a ledger write.
	}

	return s.state, nil
}

// Run polls on the configured interval until the session reaches a
// terminal state, the context is cancelled, or the attempt budget runs
// out. Cancellation takes effect between polls and leaves the ledger
// record in its last-written state.
func (s *Session) Run(ctx context.Context) (models.PaymentStatus, error) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempts := 1; ; attempts++ {
		state, err := s.Poll(ctx)
		if err != nil {
			// Transport-level poll failures are retried on the next
			// tick; the attempt budget keeps this bounded.
			slog.Warn("poll failed", "id", s.record.ID, "attempt", attempts, "error", err)
		}
		if state.Terminal() {
			return state, nil
		}
		if s.cfg.MaxPollAttempts > 0 && attempts >= s.cfg.MaxPollAttempts {
			return state, fmt.Errorf("%w after %d attempts", ErrPollBudgetExhausted, attempts)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// transition writes the new status (and observed amounts, when given) to
// the ledger, then adopts it as the session state. The in-memory state
// only moves once the write succeeded.
func (s *Session) transition(ctx context.Context, status models.PaymentStatus, confirmed, unconfirmed *decimal.Decimal) error {
	upd := storage.PaymentUpdate{
		Status:            &status,
		ConfirmedAmount:   confirmed,
		UnconfirmedAmount: unconfirmed,
	}
	if err := s.ledger.UpdatePayment(ctx, s.record.ID, upd); err != nil {
		return fmt.Errorf("record %s transition: %w", status, err)
	}

	s.state = status
	s.record.Status = status
	if confirmed != nil {
		s.record.ConfirmedAmount = *confirmed
	}
	if unconfirmed != nil {
		s.record.UnconfirmedAmount = *unconfirmed
	}
	return nil
}

// notifyConfirmed fires the merchant webhook. Delivery is best-effort:
// failure is logged and never rolls back the confirmed state.
func (s *Session) notifyConfirmed(ctx context.Context) {
	if s.notifier == nil || s.record.Webhook == "" {
		return
	}
	if err := s.notifier.PaymentConfirmed(ctx, s.record); err != nil {
		slog.Warn("webhook notification failed", "id", s.record.ID, "url", s.record.Webhook, "error", err)
	}
}

func (s *Session) fail() {
	s.state = models.StatusFailed
	paymentsFailed.Inc()
}
