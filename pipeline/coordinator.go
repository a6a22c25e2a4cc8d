package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"orderflow/book"
	"orderflow/conditional"
	appconfig "orderflow/config"
	"orderflow/events"
	"orderflow/internal/spsc"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/risk"
)

// Coordinator owns the rings, books, risk gate and both stage workers. All
// construction happens before any worker starts, and shutdown stops the
// producer-side stage first so the dispatch stage can drain every order that
// was already forwarded.
type Coordinator struct {
	config *appconfig.Config
	runID  string

	quotes   *spsc.Ring[models.Quote]
	orders   *spsc.Ring[models.Order]
	books    map[string]*book.Book
	gate     *risk.Gate
	md       *MarketDataStage
	dispatch *DispatchStage

	mu      sync.Mutex
	started bool
	log     *logger.Log
}

// Stats is a point-in-time view of pipeline counters for observability.
type Stats struct {
	RunID           string `json:"run_id"`
	QuotesProcessed int64  `json:"quotes_processed"`
	QuotesDropped   int64  `json:"quotes_dropped"`
	OrdersFired     int64  `json:"orders_fired"`
	OrdersAccepted  int64  `json:"orders_accepted"`
	OrdersRejected  int64  `json:"orders_rejected"`
}

// NewCoordinator builds the full pipeline from configuration. Any
// misconfiguration surfaces here, before a single goroutine exists.
func NewCoordinator(cfg *appconfig.Config, syms *appconfig.Symbols, executor Executor, emitter events.Emitter) (*Coordinator, error) {
	if executor == nil {
		return nil, fmt.Errorf("coordinator: executor must not be nil")
	}
	if emitter == nil {
		emitter = events.Multi{}
	}

	quotes, err := spsc.New[models.Quote](cfg.Channels.QuoteBuffer)
	if err != nil {
		return nil, fmt.Errorf("coordinator: quote ring: %w", err)
	}
	orders, err := spsc.New[models.Order](cfg.Channels.OrderBuffer)
	if err != nil {
		return nil, fmt.Errorf("coordinator: order ring: %w", err)
	}

	books := make(map[string]*book.Book, len(syms.Symbols))
	limits := make(map[string]risk.Limit, len(syms.Symbols))
	for _, s := range syms.Symbols {
		b, err := book.New(s.Name, cfg.Book.Depth, cfg.Book.CrossedTolerance)
		if err != nil {
			return nil, fmt.Errorf("coordinator: book %s: %w", s.Name, err)
		}
		books[s.Name] = b
		limits[s.Name] = risk.Limit{
			MaxPosition:       s.MaxPosition,
			MaxDollarExposure: s.MaxDollarExposure,
		}
	}

	gate, err := risk.NewGate(limits)
	if err != nil {
		return nil, fmt.Errorf("coordinator: risk gate: %w", err)
	}

	c := &Coordinator{
		config: cfg,
		runID:  uuid.New().String(),
		quotes: quotes,
		orders: orders,
		books:  books,
		gate:   gate,
		log:    logger.GetLogger(),
	}
	c.dispatch = NewDispatchStage(cfg, orders, gate, executor, emitter)
	c.md = NewMarketDataStage(cfg, quotes, books, c.dispatch, emitter)

	c.log.WithComponent("coordinator").WithFields(logger.Fields{
		"run_id":       c.runID,
		"symbols":      len(books),
		"quote_buffer": quotes.Cap(),
		"order_buffer": orders.Cap(),
	}).Info("pipeline constructed")
	return c, nil
}

// RunID identifies this pipeline instance in logs and events.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Register adds a standing conditional instruction. Only valid before Start.
func (c *Coordinator) Register(o *conditional.Order) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		return fmt.Errorf("coordinator: registration closed, pipeline already started")
	}
	return c.md.Register(o)
}

// OnQuote is the external feed ingress. Safe for one dedicated feed
// goroutine; returns false when the quote was dropped by backpressure.
func (c *Coordinator) OnQuote(q models.Quote) bool {
	return c.md.OnQuote(q)
}

// Snapshot returns the current published book view for a symbol.
func (c *Coordinator) Snapshot(symbol string) (*book.Snapshot, bool) {
	b, ok := c.books[symbol]
	if !ok {
		return nil, false
	}
	return b.Snapshot(), true
}

// Symbols lists configured symbols.
func (c *Coordinator) Symbols() []string {
	out := make([]string, 0, len(c.books))
	for s := range c.books {
		out = append(out, s)
	}
	return out
}

// Position exposes the committed net position for observability.
func (c *Coordinator) Position(symbol string) (float64, bool) {
	return c.gate.Position(symbol)
}

// Stats snapshots the pipeline counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		RunID:           c.runID,
		QuotesProcessed: c.md.QuotesProcessed(),
		QuotesDropped:   c.md.QuotesDropped(),
		OrdersFired:     c.md.Fired(),
		OrdersAccepted:  c.dispatch.Accepted(),
		OrdersRejected:  c.dispatch.Rejected(),
	}
}

// Start launches the stage workers, consumer side first so the dispatch
// stage is already draining when the first trigger is forwarded.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.dispatch.Start(ctx); err != nil {
		return err
	}
	if err := c.md.Start(ctx); err != nil {
		c.dispatch.Stop()
		return err
	}

	c.log.WithComponent("coordinator").WithFields(logger.Fields{"run_id": c.runID}).Info("pipeline started")
	return nil
}

// Stop shuts the pipeline down in two phases: the market data stage drains
// its remaining quotes and joins, so no new orders can be produced; then the
// dispatch stage drains every forwarded order and joins. Anything dequeued
// before the stop signal is fully processed.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.WithComponent("coordinator").Info("stopping pipeline")
	c.md.Stop()
	c.dispatch.Stop()
	c.log.WithComponent("coordinator").WithFields(logger.Fields{
		"quotes_processed": c.md.QuotesProcessed(),
		"orders_accepted":  c.dispatch.Accepted(),
		"orders_rejected":  c.dispatch.Rejected(),
	}).Info("pipeline stopped")
}
