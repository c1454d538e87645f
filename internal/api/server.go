// Package api exposes the merchant-facing JSON HTTP surface: payment
// creation, payment status, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/models"
	"github.com/eddiepease/SatSale/internal/session"
	"github.com/eddiepease/SatSale/internal/storage"
)

// Server is the daemon's HTTP front end.
type Server struct {
	payments *session.Manager
	currency string
	provider string

	server *http.Server
}

// NewServer creates the API server. currency and provider are the defaults
// applied when a create request omits them.
func NewServer(payments *session.Manager, currency, provider string) *Server {
	return &Server{
		payments: payments,
		currency: currency,
		provider: provider,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payments", s.handleCreatePayment)
	mux.HandleFunc("GET /api/v1/payments/{id}", s.handleGetPayment)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return loggingMiddleware(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	slog.Info("API server starting", "address", addr)
	return s.server.ListenAndServe()
}

type createPaymentRequest struct {
	FiatAmount string `json:"fiat_amount"`
	Currency   string `json:"currency"`
	Provider   string `json:"provider"`
	WebhookURL string `json:"webhook_url"`
}

type paymentResponse struct {
	ID                string `json:"id"`
	FiatValue         string `json:"fiat_value"`
	CryptoValue       string `json:"crypto_value"`
	Method            string `json:"method"`
	Target            string `json:"target"`
	CreatedAt         int64  `json:"created_at"`
	ConfirmedAmount   string `json:"confirmed_amount"`
	UnconfirmedAmount string `json:"unconfirmed_amount"`
	Status            string `json:"status"`
}

func toResponse(rec *models.PaymentRecord) paymentResponse {
	return paymentResponse{
		ID:                rec.ID,
		FiatValue:         rec.FiatValue.String(),
		CryptoValue:       rec.CryptoValue.String(),
		Method:            rec.Method,
		Target:            rec.Target,
		CreatedAt:         rec.CreatedAt,
		ConfirmedAmount:   rec.ConfirmedAmount.String(),
		UnconfirmedAmount: rec.UnconfirmedAmount.String(),
		Status:            string(rec.Status),
	}
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	fiatAmount, err := decimal.NewFromString(req.FiatAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid fiat_amount %q", req.FiatAmount))
		return
	}
	if fiatAmount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("fiat_amount must be positive"))
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	provider := req.Provider
	if provider == "" {
		provider = s.provider
	}

	rec, err := s.payments.CreatePayment(r.Context(), fiatAmount, currency, provider, req.WebhookURL)
	if err != nil {
		slog.Error("create payment failed", "error", err)
		writeError(w, http.StatusBadGateway, fmt.Errorf("payment setup failed: %w", err))
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(&rec))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.payments.GetPayment(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("payment not found"))
		return
	}
	if err != nil {
		slog.Error("get payment failed", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("lookup failed"))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// loggingMiddleware logs every request with its duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
