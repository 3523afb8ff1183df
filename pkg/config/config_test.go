package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SeedBalance != 1_000_000 {
		t.Errorf("SeedBalance = %v, want 1000000", cfg.SeedBalance)
	}
	if len(cfg.Markets) != 2 || cfg.Markets[0] != "BTC/USD" {
		t.Errorf("Markets = %v", cfg.Markets)
	}
	if cfg.ScanActiveMarketOnly {
		t.Error("ScanActiveMarketOnly should default to false")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SEED_BALANCE", "5000.5")
	t.Setenv("MARKETS", " BTC/USD , SOL/USD ,")
	t.Setenv("SCAN_ACTIVE_MARKET_ONLY", "true")
	t.Setenv("BATCH_MAX_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.SeedBalance != 5000.5 {
		t.Errorf("SeedBalance = %v", cfg.SeedBalance)
	}
	if len(cfg.Markets) != 2 || cfg.Markets[1] != "SOL/USD" {
		t.Errorf("Markets = %v", cfg.Markets)
	}
	if !cfg.ScanActiveMarketOnly {
		t.Error("ScanActiveMarketOnly not picked up")
	}
	// Unparseable numbers fall back to the default.
	if cfg.BatchMaxSize != 50 {
		t.Errorf("BatchMaxSize = %v, want 50", cfg.BatchMaxSize)
	}
}

func TestLoadMarkets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	content := []byte(`markets:
  - symbol: BTC/USD
    start_price: 65000
  - symbol: ETH/USD
    start_price: 3200
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	markets, err := LoadMarkets(path)
	if err != nil {
		t.Fatalf("LoadMarkets failed: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}
	if markets[0].Symbol != "BTC/USD" || markets[0].StartPrice != 65000 {
		t.Errorf("unexpected first market: %+v", markets[0])
	}
}

func TestLoadMarketsMissingFile(t *testing.T) {
	if _, err := LoadMarkets("/nonexistent/markets.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
