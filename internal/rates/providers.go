package rates

import "strings"

// Provider describes one price feed: where to ask and how to pull the
// numeric rate out of the response document. Ticker casing and document
// shape vary per feed, so both live here as data; adding a provider is a
// table entry, not new control flow in the oracle.
type Provider struct {
	// Endpoint is the full URL of the price feed.
	Endpoint string

	// ResultRoot is the top-level key holding the per-ticker entries.
	ResultRoot string

	// ValueField is the key of the numeric rate within a ticker entry.
	ValueField string

	// UpperTicker selects upper-case ticker symbols (some feeds key on
	// "USD", others on "usd").
	UpperTicker bool
}

// Ticker returns the currency code cased the way this provider keys it.
func (p Provider) Ticker(currency string) string {
	if p.UpperTicker {
		return strings.ToUpper(currency)
	}
	return strings.ToLower(currency)
}

// DefaultProviders is the built-in provider table.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		"coindesk": {
			Endpoint:    "https://api.coindesk.com/v1/bpi/currentprice.json",
			ResultRoot:  "bpi",
			ValueField:  "rate_float",
			UpperTicker: true,
		},
		"coingecko": {
			Endpoint:   "https://api.coingecko.com/api/v3/exchange_rates",
			ResultRoot: "rates",
			ValueField: "value",
		},
	}
}
