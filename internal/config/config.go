// Package config loads daemon configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything the daemon needs at construction time.
// Components receive the pieces they care about explicitly; nothing reads
// the environment after startup.
type Config struct {
	// Storage
	DBPath string

	// HTTP API
	BindAddress string

	// Pricing
	Currency           string
	PriceProvider      string
	ConnectionAttempts int
	RetryDelay         time.Duration

	// Payment lifecycle
	PollInterval    time.Duration
	PaymentExpiry   time.Duration
	MaxPollAttempts int

	// Backend selection: "lightning" or "onchain"
	PaymentMethod string

	// lnd (lightning method)
	LNDRestURL    string
	LNDMacaroon   string
	LNDSkipVerify bool

	// On-chain (onchain method)
	Xpub string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		DBPath:      getEnv("DB_PATH", "./satsale.db"),
		BindAddress: getEnv("BIND_ADDRESS", ":8000"),

		Currency:           getEnv("CURRENCY", "usd"),
		PriceProvider:      getEnv("PRICE_PROVIDER", "coingecko"),
		ConnectionAttempts: getEnvInt("CONNECTION_ATTEMPTS", 3),
		RetryDelay:         getEnvDuration("RETRY_DELAY", 5*time.Second),

		PollInterval:    getEnvDuration("POLL_INTERVAL", 15*time.Second),
		PaymentExpiry:   getEnvDuration("PAYMENT_EXPIRY", time.Hour),
		MaxPollAttempts: getEnvInt("MAX_POLL_ATTEMPTS", 0),

		PaymentMethod: getEnv("PAYMENT_METHOD", "lightning"),

		LNDRestURL:    getEnv("LND_REST_URL", "https://localhost:8080"),
		LNDMacaroon:   getEnv("LND_MACAROON_HEX", ""),
		LNDSkipVerify: getEnvBool("LND_SKIP_TLS_VERIFY", false),

		Xpub: getEnv("XPUB", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
