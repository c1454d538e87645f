// Package rates implements the fiat-to-crypto price oracle. Providers are
// interchangeable and table-driven; transport failures are retried with a
// bounded policy, while a missing ticker fails immediately since retrying
// cannot help.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/eddiepease/SatSale/internal/retry"
)

var (
	// ErrUnavailable means the provider could not be reached within the
	// configured retry budget.
	ErrUnavailable = errors.New("price feed unavailable")

	// ErrCurrencyNotFound means the provider answered but its response
	// had no usable rate for the requested currency. Not retryable.
	ErrCurrencyNotFound = errors.New("currency not found in price feed")

	// ErrUnknownProvider means the provider name has no table entry.
	ErrUnknownProvider = errors.New("unknown price provider")
)

var quotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "satsale_oracle_quotes_total",
	Help: "Price quote attempts by provider and outcome.",
}, []string{"provider", "outcome"})

// Oracle fetches fiat-to-crypto exchange rates.
type Oracle struct {
	providers map[string]Provider
	policy    retry.Policy
	client    *http.Client
}

// NewOracle creates an oracle over the given provider table.
func NewOracle(providers map[string]Provider, policy retry.Policy) *Oracle {
	return &Oracle{
		providers: providers,
		policy:    policy,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Quote returns the current price of one crypto unit in the given fiat
// currency, as reported by the named provider.
func (o *Oracle) Quote(ctx context.Context, currency, provider string) (decimal.Decimal, error) {
	p, ok := o.providers[provider]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	var doc map[string]json.RawMessage
	err := o.policy.Do(ctx, "price quote", func(ctx context.Context) error {
		var fetchErr error
		doc, fetchErr = o.fetch(ctx, p.Endpoint)
		return fetchErr
	})
	if err != nil {
		quotesTotal.WithLabelValues(provider, "unavailable").Inc()
		return decimal.Zero, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	price, err := extractPrice(doc, p, p.Ticker(currency))
	if err != nil {
		quotesTotal.WithLabelValues(provider, "currency_not_found").Inc()
		return decimal.Zero, err
	}

	quotesTotal.WithLabelValues(provider, "ok").Inc()
	return price, nil
}

// Convert turns a fiat amount into its crypto equivalent at the current
// quote: fiatAmount / price. A zero or negative price is treated like a
// missing currency so the result is always finite.
func (o *Oracle) Convert(ctx context.Context, fiatAmount decimal.Decimal, currency, provider string) (decimal.Decimal, error) {
	price, err := o.Quote(ctx, currency, provider)
	if err != nil {
		return decimal.Zero, err
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: provider %q returned non-positive price %s for %s",
			ErrCurrencyNotFound, provider, price, currency)
	}
	return fiatAmount.Div(price), nil
}

// fetch performs one GET against the price feed and decodes the top level
// of the response document.
func (o *Oracle) fetch(ctx context.Context, endpoint string) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("price feed error %d: %s", resp.StatusCode, data)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return doc, nil
}

// extractPrice walks doc[ResultRoot][ticker][ValueField] and returns it as
// a decimal. Any missing hop means the provider does not carry the
// requested currency.
func extractPrice(doc map[string]json.RawMessage, p Provider, ticker string) (decimal.Decimal, error) {
	rootRaw, ok := doc[p.ResultRoot]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: response has no %q section", ErrCurrencyNotFound, p.ResultRoot)
	}

	var root map[string]map[string]json.RawMessage
	if err := json.Unmarshal(rootRaw, &root); err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed %q section: %v", ErrCurrencyNotFound, p.ResultRoot, err)
	}

	entry, ok := root[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no entry for ticker %q", ErrCurrencyNotFound, ticker)
	}
	valueRaw, ok := entry[p.ValueField]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: ticker %q has no %q field", ErrCurrencyNotFound, ticker, p.ValueField)
	}

	var price decimal.Decimal
	if err := json.Unmarshal(valueRaw, &price); err != nil {
		return decimal.Zero, fmt.Errorf("%w: non-numeric rate for %q: %v", ErrCurrencyNotFound, ticker, err)
	}
	return price, nil
}
