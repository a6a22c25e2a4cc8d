package risk

import (
	"errors"
	"sync"
	"testing"

	"orderflow/models"
)

func newGate(t *testing.T, limits map[string]Limit) *Gate {
	t.Helper()
	g, err := NewGate(limits)
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	return g
}

func buy(symbol string, qty, price float64) models.Order {
	return models.Order{ID: "o1", Symbol: symbol, Side: models.SideBuy, Quantity: qty, Price: price, Status: models.StatusNew}
}

func sell(symbol string, qty, price float64) models.Order {
	return models.Order{ID: "o2", Symbol: symbol, Side: models.SideSell, Quantity: qty, Price: price, Status: models.StatusNew}
}

func TestNewGateValidation(t *testing.T) {
	if _, err := NewGate(nil); err == nil {
		t.Error("expected error for empty limits")
	}
	if _, err := NewGate(map[string]Limit{"X": {MaxPosition: 0}}); err == nil {
		t.Error("expected error for zero max position")
	}
	if _, err := NewGate(map[string]Limit{"X": {MaxPosition: 10, MaxDollarExposure: -1}}); err == nil {
		t.Error("expected error for negative exposure limit")
	}
}

func TestRejectionLeavesLedgerUntouched(t *testing.T) {
	g := newGate(t, map[string]Limit{"X": {MaxPosition: 100}})

	if err := g.CheckAndReserve(buy("X", 80, 10)); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if pos, _ := g.Position("X"); pos != 80 {
		t.Fatalf("position = %v, want 80", pos)
	}

	// 80 + 30 would exceed 100.
	err := g.CheckAndReserve(buy("X", 30, 10))
	if !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("err = %v, want ErrPositionLimit", err)
	}
	if pos, _ := g.Position("X"); pos != 80 {
		t.Fatalf("position after rejection = %v, want 80", pos)
	}

	// A smaller order still fits.
	if err := g.CheckAndReserve(buy("X", 20, 10)); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if pos, _ := g.Position("X"); pos != 100 {
		t.Fatalf("position = %v, want 100", pos)
	}
}

func TestShortPositionsCountAbsolute(t *testing.T) {
	g := newGate(t, map[string]Limit{"X": {MaxPosition: 50}})
	if err := g.CheckAndReserve(sell("X", 50, 10)); err != nil {
		t.Fatalf("sell to -50 failed: %v", err)
	}
	if err := g.CheckAndReserve(sell("X", 1, 10)); !errors.Is(err, ErrPositionLimit) {
		t.Fatalf("err = %v, want ErrPositionLimit at -51", err)
	}
	// Buying back reduces the absolute position and is accepted.
	if err := g.CheckAndReserve(buy("X", 30, 10)); err != nil {
		t.Fatalf("buy back failed: %v", err)
	}
	if pos, _ := g.Position("X"); pos != -20 {
		t.Fatalf("position = %v, want -20", pos)
	}
}

func TestDollarExposureLimit(t *testing.T) {
	g := newGate(t, map[string]Limit{"X": {MaxPosition: 1000, MaxDollarExposure: 500}})

	if err := g.CheckAndReserve(buy("X", 10, 60)); !errors.Is(err, ErrExposureLimit) {
		t.Fatalf("err = %v, want ErrExposureLimit for notional 600", err)
	}
	if pos, _ := g.Position("X"); pos != 0 {
		t.Fatalf("position after exposure rejection = %v, want 0", pos)
	}
	if err := g.CheckAndReserve(buy("X", 10, 40)); err != nil {
		t.Fatalf("notional 400 rejected: %v", err)
	}
	// Market orders carry no notional and skip the exposure check.
	if err := g.CheckAndReserve(buy("X", 10, 0)); err != nil {
		t.Fatalf("market order rejected: %v", err)
	}
}

func TestUnknownSymbol(t *testing.T) {
	g := newGate(t, map[string]Limit{"X": {MaxPosition: 10}})
	if err := g.CheckAndReserve(buy("Y", 1, 10)); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
	if _, ok := g.Position("Y"); ok {
		t.Fatal("unknown symbol reported a position")
	}
}

// Many goroutines hammer two symbols; committed positions must respect the
// limit exactly and never exceed it.
func TestConcurrentChecksStaySerialized(t *testing.T) {
	g := newGate(t, map[string]Limit{
		"A": {MaxPosition: 100},
		"B": {MaxPosition: 100},
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		sym := "A"
		if w%2 == 1 {
			sym = "B"
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				g.CheckAndReserve(buy(sym, 1, 1))
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range []string{"A", "B"} {
		pos, ok := g.Position(sym)
		if !ok {
			t.Fatalf("missing position for %s", sym)
		}
		if pos != 100 {
			t.Fatalf("%s position = %v, want exactly 100 (4000 attempts against limit 100)", sym, pos)
		}
	}
}
