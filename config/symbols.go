package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StandingOrder is a conditional instruction registered at startup, before
// the pipeline runs. kind is one of limit, stop, stop_limit.
type StandingOrder struct {
	Kind       string  `yaml:"kind"`
	Side       string  `yaml:"side"`
	Quantity   float64 `yaml:"quantity"`
	LimitPrice float64 `yaml:"limit_price"`
	StopPrice  float64 `yaml:"stop_price"`
}

// Symbol carries the per-symbol risk limits, the book seed price used by the
// feed simulator, and any standing conditional orders.
type Symbol struct {
	Name              string          `yaml:"name"`
	MaxPosition       float64         `yaml:"max_position"`
	MaxDollarExposure float64         `yaml:"max_dollar_exposure"`
	ReferencePrice    float64         `yaml:"reference_price"`
	StandingOrders    []StandingOrder `yaml:"standing_orders"`
}

// Symbols represents the full per-symbol configuration file.
type Symbols struct {
	Symbols []Symbol `yaml:"symbols"`
}

// LoadSymbols loads the per-symbol configuration from the given path. In
// production-like environments every symbol must carry explicit limits; in
// development a missing max_position falls back to a small default.
func LoadSymbols(path string) (*Symbols, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}
	var cfg Symbols
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse symbols file: %w", err)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("symbols file %s defines no symbols", path)
	}

	strict := IsProductionLike(AppEnvironment())
	seen := make(map[string]struct{}, len(cfg.Symbols))
	for i := range cfg.Symbols {
		s := &cfg.Symbols[i]
		if s.Name == "" {
			return nil, fmt.Errorf("symbol %d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("symbol %s configured twice", s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.MaxPosition <= 0 {
			if strict {
				return nil, fmt.Errorf("symbol %s: max_position must be set", s.Name)
			}
			s.MaxPosition = 100
		}
		if s.MaxDollarExposure < 0 {
			return nil, fmt.Errorf("symbol %s: max_dollar_exposure must not be negative", s.Name)
		}
		if s.ReferencePrice <= 0 {
			s.ReferencePrice = 100
		}
		for j, so := range s.StandingOrders {
			switch so.Kind {
			case "limit", "stop", "stop_limit":
			default:
				return nil, fmt.Errorf("symbol %s: standing order %d has unknown kind %q", s.Name, j, so.Kind)
			}
			switch so.Side {
			case "buy", "sell":
			default:
				return nil, fmt.Errorf("symbol %s: standing order %d has unknown side %q", s.Name, j, so.Side)
			}
			if so.Quantity <= 0 {
				return nil, fmt.Errorf("symbol %s: standing order %d quantity must be positive", s.Name, j)
			}
		}
	}
	return &cfg, nil
}
