// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the SolSentry engine.
type Config struct {
	// Solana RPC
	RPCHTTPURL     string
	RPCWSURL       string
	RPCTimeout     time.Duration
	TxFetchTimeout time.Duration

	// Monitoring
	SweepInterval  time.Duration
	CounterWindow  time.Duration
	EventBuffer    int
	BackfillLimit  int
	WatchAddresses []string
	DefaultUserID  string

	// Scoring Thresholds
	LargeTransferLamports uint64
	BalanceDropLamports   uint64
	FanoutKeys            int
	FreqTxCount           int
	FreqRatePerMin        float64

	// Enrichment
	EnrichURL     string
	EnrichAPIKey  string
	EnrichTimeout time.Duration

	// Alerting
	AlertBuffer   int
	AlertEntryTTL time.Duration

	// Metrics
	PrometheusPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// RPC
		RPCHTTPURL:     getEnv("RPC_HTTP_URL", "https://api.mainnet-beta.solana.com"),
		RPCWSURL:       getEnv("RPC_WS_URL", "wss://api.mainnet-beta.solana.com"),
		RPCTimeout:     time.Duration(getEnvInt("RPC_TIMEOUT_SECONDS", 10)) * time.Second,
		TxFetchTimeout: time.Duration(getEnvInt("TX_FETCH_TIMEOUT_SECONDS", 5)) * time.Second,

		// Monitoring
		SweepInterval:  time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		CounterWindow:  time.Duration(getEnvInt("COUNTER_WINDOW_SECONDS", 600)) * time.Second,
		EventBuffer:    getEnvInt("EVENT_BUFFER", 64),
		BackfillLimit:  getEnvInt("BACKFILL_LIMIT", 10),
		WatchAddresses: getEnvList("WATCH_ADDRESSES"),
		DefaultUserID:  getEnv("DEFAULT_USER_ID", "operator"),

		// Thresholds
		LargeTransferLamports: getEnvUint("LARGE_TRANSFER_LAMPORTS", 1_000_000_000),
		BalanceDropLamports:   getEnvUint("BALANCE_DROP_LAMPORTS", 1_000_000_000),
		FanoutKeys:            getEnvInt("FANOUT_KEYS", 10),
		FreqTxCount:           getEnvInt("FREQ_TX_COUNT", 5),
		FreqRatePerMin:        getEnvFloat("FREQ_RATE_PER_MIN", 2.0),

		// Enrichment
		EnrichURL:     getEnv("ENRICH_URL", ""),
		EnrichAPIKey:  getEnv("ENRICH_API_KEY", ""),
		EnrichTimeout: time.Duration(getEnvInt("ENRICH_TIMEOUT_SECONDS", 8)) * time.Second,

		// Alerting
		AlertBuffer:   getEnvInt("ALERT_BUFFER", 256),
		AlertEntryTTL: time.Duration(getEnvInt("ALERT_TTL_MINUTES", 30)) * time.Minute,

		// Metrics
		PrometheusPort: getEnvInt("PROMETHEUS_PORT", 9090),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.RPCHTTPURL == "" {
		return fmt.Errorf("RPC_HTTP_URL is required")
	}

	if c.RPCWSURL == "" {
		return fmt.Errorf("RPC_WS_URL is required")
	}

	if c.SweepInterval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be at least 1")
	}

	if c.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be at least 1")
	}

	if c.FreqTxCount < 1 {
		return fmt.Errorf("FREQ_TX_COUNT must be at least 1")
	}

	if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
		return fmt.Errorf("PROMETHEUS_PORT must be between 1 and 65535")
	}

	return nil
}

// MaskedEnrichKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedEnrichKey() string {
	return maskSecret(c.EnrichAPIKey)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvUint retrieves an environment variable as a uint64 or returns a default.
func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
