package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// MarketConfig represents one market entry in markets.yaml.
type MarketConfig struct {
	Symbol     string  `yaml:"symbol"`      // BASE/QUOTE form, e.g. BTC/USD
	StartPrice float64 `yaml:"start_price"` // seed price for the mock feed
}

// MarketsFile represents the top-level YAML structure.
type MarketsFile struct {
	Markets []MarketConfig `yaml:"markets"`
}

// LoadMarkets reads per-market settings from a YAML file.
func LoadMarkets(path string) ([]MarketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file MarketsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	return file.Markets, nil
}
