// Package risk enforces per-symbol position and exposure limits. The gate
// owns the position ledger outright: all reads and writes for one symbol are
// serialized behind that symbol's lock, while distinct symbols are checked
// concurrently. Acceptance commits the reservation in the same step; there
// is no separate release path here, fill and cancel reconciliation belongs
// to the execution collaborator.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"orderflow/models"
)

var (
	// ErrUnknownSymbol marks an order for a symbol with no configured limits.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrPositionLimit marks an order that would push the absolute net
	// position beyond the symbol's maximum.
	ErrPositionLimit = errors.New("position limit exceeded")
	// ErrExposureLimit marks an order whose notional exceeds the symbol's
	// dollar exposure cap.
	ErrExposureLimit = errors.New("dollar exposure limit exceeded")
)

// Limit is the configured risk boundary for one symbol. A zero
// MaxDollarExposure disables the notional check.
type Limit struct {
	MaxPosition       float64
	MaxDollarExposure float64
}

type ledger struct {
	mu       sync.Mutex
	position float64
}

// Gate is the single serialization point between order triggering and
// dispatch. The limits and ledger maps are fixed at construction; only the
// per-symbol position values mutate afterwards.
type Gate struct {
	limits  map[string]Limit
	ledgers map[string]*ledger
}

// NewGate builds a gate for the configured symbols.
func NewGate(limits map[string]Limit) (*Gate, error) {
	if len(limits) == 0 {
		return nil, fmt.Errorf("risk: no symbol limits configured")
	}
	g := &Gate{
		limits:  make(map[string]Limit, len(limits)),
		ledgers: make(map[string]*ledger, len(limits)),
	}
	for sym, lim := range limits {
		if lim.MaxPosition <= 0 {
			return nil, fmt.Errorf("risk: %s: max position must be positive, got %v", sym, lim.MaxPosition)
		}
		if lim.MaxDollarExposure < 0 {
			return nil, fmt.Errorf("risk: %s: max dollar exposure must not be negative, got %v", sym, lim.MaxDollarExposure)
		}
		g.limits[sym] = lim
		g.ledgers[sym] = &ledger{}
	}
	return g, nil
}

// CheckAndReserve verifies the order against the symbol's limits and, on
// acceptance, commits the would-be position in the same step. On rejection
// the ledger is left untouched and the returned error carries the reason.
func (g *Gate) CheckAndReserve(o models.Order) error {
	lim, ok := g.limits[o.Symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, o.Symbol)
	}
	led := g.ledgers[o.Symbol]

	led.mu.Lock()
	defer led.mu.Unlock()

	next := led.position + o.SignedQuantity()
	if math.Abs(next) > lim.MaxPosition {
		return fmt.Errorf("%w: %s position %v + %v exceeds %v",
			ErrPositionLimit, o.Symbol, led.position, o.SignedQuantity(), lim.MaxPosition)
	}
	if lim.MaxDollarExposure > 0 && o.Notional() > lim.MaxDollarExposure {
		return fmt.Errorf("%w: %s notional %v exceeds %v",
			ErrExposureLimit, o.Symbol, o.Notional(), lim.MaxDollarExposure)
	}

	led.position = next
	return nil
}

// Position reports the committed net position for symbol. Intended for
// observability and tests.
func (g *Gate) Position(symbol string) (float64, bool) {
	led, ok := g.ledgers[symbol]
	if !ok {
		return 0, false
	}
	led.mu.Lock()
	defer led.mu.Unlock()
	return led.position, true
}

// Symbols lists the configured symbols.
func (g *Gate) Symbols() []string {
	out := make([]string, 0, len(g.limits))
	for sym := range g.limits {
		out = append(out, sym)
	}
	return out
}
