package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the paper trading core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Price feed
	UseMockFeed bool
	FeedURL     string // websocket endpoint; empty uses the exchange default
	Markets     []string

	// Simulation
	SeedCurrency         string
	SeedBalance          float64
	ScanActiveMarketOnly bool

	// Persistence
	BatchMaxSize       int
	BatchFlushMs       int
	SessionIdleMinutes int

	// Market settings file (start prices for the mock feed etc.)
	MarketsPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DBPath:               getEnv("DB_PATH", "./data/paperdesk.db"),
		UseMockFeed:          getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:              getEnv("FEED_URL", ""),
		Markets:              splitAndTrim(getEnv("MARKETS", "BTC/USD,ETH/USD")),
		SeedCurrency:         getEnv("SEED_CURRENCY", "USD"),
		SeedBalance:          getEnvFloat("SEED_BALANCE", 1_000_000),
		ScanActiveMarketOnly: getEnv("SCAN_ACTIVE_MARKET_ONLY", "false") == "true",
		BatchMaxSize:         getEnvInt("BATCH_MAX_SIZE", 50),
		BatchFlushMs:         getEnvInt("BATCH_FLUSH_MS", 500),
		SessionIdleMinutes:   getEnvInt("SESSION_IDLE_MINUTES", 0),
		MarketsPath:          getEnv("MARKETS_FILE", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
