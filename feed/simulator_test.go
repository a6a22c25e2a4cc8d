package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	appconfig "orderflow/config"
	"orderflow/models"
)

func simConfig() *appconfig.Config {
	return &appconfig.Config{
		Feed: appconfig.FeedConfig{QuotesPerSecond: 10000, Burst: 100},
	}
}

func simSymbols() *appconfig.Symbols {
	return &appconfig.Symbols{Symbols: []appconfig.Symbol{
		{Name: "BTCUSDT", MaxPosition: 100, ReferencePrice: 50000},
		{Name: "ETHUSDT", MaxPosition: 100, ReferencePrice: 3000},
	}}
}

func TestSimulatorValidation(t *testing.T) {
	if _, err := NewSimulator(simConfig(), simSymbols(), nil); err == nil {
		t.Error("expected error for nil sink")
	}
	if _, err := NewSimulator(simConfig(), &appconfig.Symbols{}, func(models.Quote) bool { return true }); err == nil {
		t.Error("expected error for empty symbols")
	}
}

func TestSimulatorProducesOrderedSaneQuotes(t *testing.T) {
	var mu sync.Mutex
	var quotes []models.Quote
	sink := func(q models.Quote) bool {
		mu.Lock()
		quotes = append(quotes, q)
		mu.Unlock()
		return true
	}

	s, err := NewSimulator(simConfig(), simSymbols(), sink)
	if err != nil {
		t.Fatalf("NewSimulator failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && s.Produced() < 100 {
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(quotes) < 100 {
		t.Fatalf("produced %d quotes, want at least 100", len(quotes))
	}
	var lastTS int64
	for i, q := range quotes {
		if q.Symbol != "BTCUSDT" && q.Symbol != "ETHUSDT" {
			t.Fatalf("quote %d has unexpected symbol %q", i, q.Symbol)
		}
		if q.Bid <= 0 || q.Ask <= q.Bid {
			t.Fatalf("quote %d not sane: bid %v ask %v", i, q.Bid, q.Ask)
		}
		if q.BidSize <= 0 || q.AskSize <= 0 {
			t.Fatalf("quote %d has empty size", i)
		}
		if q.Timestamp <= lastTS {
			t.Fatalf("quote %d timestamp %d not increasing past %d", i, q.Timestamp, lastTS)
		}
		lastTS = q.Timestamp
	}
}

func TestSimulatorCountsDrops(t *testing.T) {
	s, err := NewSimulator(simConfig(), simSymbols(), func(models.Quote) bool { return false })
	if err != nil {
		t.Fatalf("NewSimulator failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && s.Dropped() < 10 {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	if s.Dropped() < 10 {
		t.Fatalf("dropped = %d, want at least 10", s.Dropped())
	}
	if s.Dropped() != s.Produced() {
		t.Fatalf("dropped %d != produced %d with a refusing sink", s.Dropped(), s.Produced())
	}
}

func TestSimulatorDoubleStart(t *testing.T) {
	s, _ := NewSimulator(simConfig(), simSymbols(), func(models.Quote) bool { return true })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	s.Stop()
}
