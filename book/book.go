// Package book maintains per-symbol price levels from incoming quotes. One
// writer goroutine applies updates; any number of readers take consistent
// snapshots through an atomically published pointer, so readers never stall
// the quote path and never observe a half-applied update.
package book

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"orderflow/models"
)

var (
	// ErrStaleQuote marks a quote whose timestamp is older than the last
	// applied update. The book keeps its last-known-good state.
	ErrStaleQuote = errors.New("quote timestamp not monotonic")
	// ErrCrossedQuote marks a quote whose bid exceeds its ask beyond the
	// configured tolerance.
	ErrCrossedQuote = errors.New("crossed quote")
	// ErrSymbolMismatch marks a quote routed to the wrong book.
	ErrSymbolMismatch = errors.New("quote symbol does not match book")
)

// PriceLevel is the aggregate quantity available at one price on one side.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Snapshot is an immutable view of the book after one complete update. Bids
// are sorted descending by price, asks ascending, and both sides come from
// the same Apply call.
type Snapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// Best returns the top of book. Either side may be zero-valued before the
// first update touches it.
func (s *Snapshot) Best() (bid, ask PriceLevel) {
	if len(s.Bids) > 0 {
		bid = s.Bids[0]
	}
	if len(s.Asks) > 0 {
		ask = s.Asks[0]
	}
	return bid, ask
}

// Book holds the writer-owned working state and the published snapshot for a
// single symbol.
type Book struct {
	symbol    string
	depth     int
	tolerance float64

	// Writer-owned; only the market data stage touches these.
	bids   []PriceLevel
	asks   []PriceLevel
	lastTS int64

	snap atomic.Pointer[Snapshot]
}

// New returns an empty book for symbol keeping at most depth levels per
// side. tolerance is how far a bid may exceed an ask before the quote is
// treated as malformed.
func New(symbol string, depth int, tolerance float64) (*Book, error) {
	if symbol == "" {
		return nil, fmt.Errorf("book: empty symbol")
	}
	if depth <= 0 {
		return nil, fmt.Errorf("book: depth must be positive, got %d", depth)
	}
	b := &Book{symbol: symbol, depth: depth, tolerance: tolerance}
	b.snap.Store(&Snapshot{Symbol: symbol})
	return b, nil
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() string {
	return b.symbol
}

// Apply folds one quote into the book and publishes a fresh snapshot.
// Single-writer discipline: only the market data stage may call this. A
// malformed quote returns an error and leaves both the working state and the
// published snapshot untouched.
func (b *Book) Apply(q models.Quote) error {
	if q.Symbol != b.symbol {
		return fmt.Errorf("%w: got %q, book is %q", ErrSymbolMismatch, q.Symbol, b.symbol)
	}
	if q.Timestamp < b.lastTS {
		return fmt.Errorf("%w: %d < %d", ErrStaleQuote, q.Timestamp, b.lastTS)
	}
	if q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask+b.tolerance {
		return fmt.Errorf("%w: bid %v > ask %v", ErrCrossedQuote, q.Bid, q.Ask)
	}

	b.lastTS = q.Timestamp
	if q.Bid > 0 {
		b.bids = upsertLevel(b.bids, PriceLevel{Price: q.Bid, Quantity: q.BidSize}, b.depth, true)
	}
	if q.Ask > 0 {
		b.asks = upsertLevel(b.asks, PriceLevel{Price: q.Ask, Quantity: q.AskSize}, b.depth, false)
	}

	// Build the new snapshot off to the side, then swap it in. Readers hold
	// either the complete previous update or this one, never a mix.
	next := &Snapshot{
		Symbol:    b.symbol,
		Bids:      append([]PriceLevel(nil), b.bids...),
		Asks:      append([]PriceLevel(nil), b.asks...),
		Timestamp: q.Timestamp,
	}
	b.snap.Store(next)
	return nil
}

// Snapshot returns the most recently published view. Safe to call from any
// goroutine concurrently with Apply.
func (b *Book) Snapshot() *Snapshot {
	return b.snap.Load()
}

// upsertLevel inserts or replaces the level at lv.Price, keeping the side
// sorted (bids descending, asks ascending) and trimmed to depth. A zero
// quantity removes the level.
func upsertLevel(side []PriceLevel, lv PriceLevel, depth int, descending bool) []PriceLevel {
	i := sort.Search(len(side), func(i int) bool {
		if descending {
			return side[i].Price <= lv.Price
		}
		return side[i].Price >= lv.Price
	})

	switch {
	case i < len(side) && side[i].Price == lv.Price:
		if lv.Quantity == 0 {
			side = append(side[:i], side[i+1:]...)
		} else {
			side[i].Quantity = lv.Quantity
		}
	case lv.Quantity == 0:
		// Removal of a level we never held.
	default:
		side = append(side, PriceLevel{})
		copy(side[i+1:], side[i:])
		side[i] = lv
	}

	if len(side) > depth {
		side = side[:depth]
	}
	return side
}
