// Command satsaled runs the payment settlement daemon: it exposes the
// payment API, converts fiat prices through the configured price feed,
// issues payment targets from the configured backend and polls them to
// settlement.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eddiepease/SatSale/internal/api"
	"github.com/eddiepease/SatSale/internal/backend"
	"github.com/eddiepease/SatSale/internal/config"
	"github.com/eddiepease/SatSale/internal/rates"
	"github.com/eddiepease/SatSale/internal/retry"
	"github.com/eddiepease/SatSale/internal/session"
	"github.com/eddiepease/SatSale/internal/storage/sqlite"
	"github.com/eddiepease/SatSale/pkg/logging"
)

func main() {
	logging.Setup()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the ledger and bring the schema up to date. A failed migration
	// is fatal: the daemon must not run against a partially migrated store.
	ledger, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("open ledger", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	if err := ledger.Migrate(ctx); err != nil {
		slog.Error("migrate ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("ledger ready", "path", cfg.DBPath)

	policy := retry.Policy{Attempts: cfg.ConnectionAttempts, Delay: cfg.RetryDelay}
	oracle := rates.NewOracle(rates.DefaultProviders(), policy)

	pb, err := buildBackend(ctx, cfg, policy)
	if err != nil {
		slog.Error("init payment backend", "method", cfg.PaymentMethod, "error", err)
		os.Exit(1)
	}
	slog.Info("payment backend ready", "method", pb.Method())

	manager := session.NewManager(ctx, session.Config{
		Expiry:          cfg.PaymentExpiry,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
	}, oracle, pb, ledger, session.NewNotifier(nil))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	server := api.NewServer(manager, cfg.Currency, cfg.PriceProvider)
	if err := server.Start(ctx, cfg.BindAddress); err != nil && err != http.ErrServerClosed {
		slog.Error("API server", "error", err)
		os.Exit(1)
	}

	// Let in-flight polling loops observe the cancellation before exit.
	manager.Wait()
}

// buildBackend constructs the configured payment backend and verifies
// connectivity where the backend supports it.
func buildBackend(ctx context.Context, cfg *config.Config, policy retry.Policy) (backend.PaymentBackend, error) {
	switch cfg.PaymentMethod {
	case "lightning":
		var client *http.Client
		if cfg.LNDSkipVerify {
			// lnd serves its REST proxy with a self-signed certificate.
			client = &http.Client{
				Timeout: 30 * time.Second,
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				},
			}
		}
		lnd := backend.NewLND(cfg.LNDRestURL, cfg.LNDMacaroon, client)
		if err := lnd.Connect(ctx, policy); err != nil {
			return nil, err
		}
		return lnd, nil
	default:
		return nil, fmt.Errorf("unsupported payment method %q", cfg.PaymentMethod)
	}
}
