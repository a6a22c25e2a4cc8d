package config

import (
	"os"
	"strings"
	"testing"
)

// writeTempFile writes content to a temp yaml file and returns its path.
func writeTempFile(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `orderflow:
  name: "TestApp"
  version: "1.0"
channels:
  quote_buffer: 1024
  order_buffer: 256
book:
  depth: 5
`

func TestLoadConfig(t *testing.T) {
	path := writeTempFile(t, "cfg-*.yml", minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Orderflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Orderflow.Name)
	}
	if cfg.Channels.QuoteBuffer != 1024 {
		t.Errorf("unexpected quote buffer: %d", cfg.Channels.QuoteBuffer)
	}
	if cfg.Pipeline.EnqueueRetries != 64 {
		t.Errorf("default enqueue retries not applied: %d", cfg.Pipeline.EnqueueRetries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level not applied: %s", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsBadCapacities(t *testing.T) {
	cases := []struct {
		name    string
		quote   string
		order   string
		wantErr string
	}{
		{"zero quote buffer", "0", "256", "quote_buffer"},
		{"non power of two", "1000", "256", "quote_buffer"},
		{"zero order buffer", "1024", "0", "order_buffer"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			content := "channels:\n  quote_buffer: " + c.quote + "\n  order_buffer: " + c.order + "\n"
			path := writeTempFile(t, "cfg-*.yml", content)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("LoadConfig err = %v, want mention of %s", err, c.wantErr)
			}
		})
	}
}

func TestLoadConfigKafkaValidation(t *testing.T) {
	content := minimalConfig + `events:
  kafka:
    enabled: true
`
	path := writeTempFile(t, "cfg-*.yml", content)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for kafka enabled without brokers")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("OF_TEST_TOPIC", "status-events")
	content := minimalConfig + `events:
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
    topic: "${OF_TEST_TOPIC}"
`
	path := writeTempFile(t, "cfg-*.yml", content)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Events.Kafka.Topic != "status-events" {
		t.Errorf("env var not expanded: %q", cfg.Events.Kafka.Topic)
	}
}

func TestLoadSymbols(t *testing.T) {
	content := `symbols:
- name: "BTCUSDT"
  max_position: 100
  max_dollar_exposure: 1000000
  reference_price: 50000
  standing_orders:
  - kind: stop
    side: sell
    quantity: 10
    stop_price: 48000
- name: "ETHUSDT"
  max_position: 500
`
	path := writeTempFile(t, "symbols-*.yml", content)

	syms, err := LoadSymbols(path)
	if err != nil {
		t.Fatalf("LoadSymbols failed: %v", err)
	}
	if len(syms.Symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(syms.Symbols))
	}
	if syms.Symbols[0].Name != "BTCUSDT" || syms.Symbols[0].MaxPosition != 100 {
		t.Errorf("unexpected first symbol: %+v", syms.Symbols[0])
	}
	if len(syms.Symbols[0].StandingOrders) != 1 || syms.Symbols[0].StandingOrders[0].Kind != "stop" {
		t.Errorf("standing orders not parsed: %+v", syms.Symbols[0].StandingOrders)
	}
	// Development default for a missing reference price.
	if syms.Symbols[1].ReferencePrice != 100 {
		t.Errorf("reference price default not applied: %v", syms.Symbols[1].ReferencePrice)
	}
}

func TestLoadSymbolsValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty", "symbols: []\n"},
		{"duplicate", "symbols:\n- name: X\n  max_position: 1\n- name: X\n  max_position: 1\n"},
		{"bad kind", "symbols:\n- name: X\n  max_position: 1\n  standing_orders:\n  - kind: trailing\n    side: buy\n    quantity: 1\n"},
		{"bad side", "symbols:\n- name: X\n  max_position: 1\n  standing_orders:\n  - kind: stop\n    side: hold\n    quantity: 1\n"},
		{"zero quantity", "symbols:\n- name: X\n  max_position: 1\n  standing_orders:\n  - kind: stop\n    side: buy\n    quantity: 0\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeTempFile(t, "symbols-*.yml", c.content)
			if _, err := LoadSymbols(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadSymbolsStrictInProduction(t *testing.T) {
	t.Setenv(appEnvVar, "production")
	content := "symbols:\n- name: X\n"
	path := writeTempFile(t, "symbols-*.yml", content)
	if _, err := LoadSymbols(path); err == nil {
		t.Fatal("expected error for missing max_position in production")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	if env := AppEnvironment(); env != environmentProduction {
		t.Errorf("AppEnvironment = %q, want production", env)
	}
	if !IsProductionLike(environmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(environmentDevelopment) {
		t.Error("development should not be production-like")
	}
}
