package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"orderflow/book"
	"orderflow/conditional"
	appconfig "orderflow/config"
	"orderflow/events"
	"orderflow/internal/spsc"
	"orderflow/logger"
	"orderflow/models"
)

// MarketDataStage drains the quote ring on its own worker goroutine. For
// each quote it updates the symbol's book and fans the quote out to every
// conditional instruction registered for that symbol, forwarding fires to
// the dispatch stage. Because one goroutine does all of this sequentially,
// each evaluator sees quotes for its symbol one at a time in arrival order.
type MarketDataStage struct {
	config   *appconfig.Config
	in       *spsc.Ring[models.Quote]
	books    map[string]*book.Book
	evals    map[string][]*conditional.Order
	dispatch *DispatchStage
	emitter  events.Emitter

	ctx     context.Context
	stop    atomic.Bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log

	// Metrics
	quotesProcessed int64
	quotesDropped   int64
	unknownSymbol   int64
	malformed       int64
	armed           int64
	fired           int64
	forwardDropped  int64
}

// NewMarketDataStage wires the stage to its ring, books and the dispatch
// producer side.
func NewMarketDataStage(cfg *appconfig.Config, in *spsc.Ring[models.Quote], books map[string]*book.Book, dispatch *DispatchStage, emitter events.Emitter) *MarketDataStage {
	return &MarketDataStage{
		config:   cfg,
		in:       in,
		books:    books,
		evals:    make(map[string][]*conditional.Order),
		dispatch: dispatch,
		emitter:  emitter,
		log:      logger.GetLogger(),
	}
}

// Register adds a conditional instruction for its symbol. Registration is a
// setup-phase operation only; the run loop reads the evaluator map without
// locks once the stage has started.
func (m *MarketDataStage) Register(o *conditional.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("cannot register instruction %s: stage already running", o.ID)
	}
	if _, ok := m.books[o.Symbol]; !ok {
		return fmt.Errorf("cannot register instruction %s: symbol %s not configured", o.ID, o.Symbol)
	}
	m.evals[o.Symbol] = append(m.evals[o.Symbol], o)
	return nil
}

// OnQuote is the feed-facing ingress, safe for a single dedicated feed
// goroutine. When the ring is full the quote is dropped and counted; the
// producer is never blocked, a stall here would back up into the feed.
func (m *MarketDataStage) OnQuote(q models.Quote) bool {
	if m.in.TryPush(q) {
		logger.RecordChannelMessage("quotes")
		return true
	}
	atomic.AddInt64(&m.quotesDropped, 1)
	logger.RecordChannelDrop("quotes")
	return false
}

// Start launches the consumer worker.
func (m *MarketDataStage) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("market data stage already running")
	}
	m.running = true
	m.ctx = ctx
	m.mu.Unlock()

	m.log.WithComponent("marketdata").WithFields(logger.Fields{
		"symbols": len(m.books),
	}).Info("starting market data stage")

	m.wg.Add(1)
	go m.run()
	go m.metricsReporter(ctx)

	return nil
}

// Stop signals the worker, lets it drain quotes already in the ring, and
// joins.
func (m *MarketDataStage) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.stop.Store(true)
	m.wg.Wait()
	m.log.WithComponent("marketdata").Info("market data stage stopped")
}

func (m *MarketDataStage) run() {
	defer m.wg.Done()

	backoff := m.config.Pipeline.PollBackoffMin
	for {
		if m.stop.Load() {
			m.drain()
			return
		}
		q, ok := m.in.TryPop()
		if !ok {
			time.Sleep(backoff)
			if backoff < m.config.Pipeline.PollBackoffMax {
				backoff *= 2
				if backoff > m.config.Pipeline.PollBackoffMax {
					backoff = m.config.Pipeline.PollBackoffMax
				}
			}
			continue
		}
		backoff = m.config.Pipeline.PollBackoffMin
		m.process(q)
	}
}

func (m *MarketDataStage) drain() {
	for {
		q, ok := m.in.TryPop()
		if !ok {
			return
		}
		m.process(q)
	}
}

func (m *MarketDataStage) process(q models.Quote) {
	b, ok := m.books[q.Symbol]
	if !ok {
		atomic.AddInt64(&m.unknownSymbol, 1)
		m.log.WithComponent("marketdata").WithFields(logger.Fields{
			"symbol": q.Symbol,
		}).Warn("quote for unconfigured symbol dropped")
		return
	}

	if err := b.Apply(q); err != nil {
		// Book stays at last-known-good state and the evaluators never see
		// the malformed quote, preserving their timestamp ordering.
		atomic.AddInt64(&m.malformed, 1)
		m.log.WithComponent("marketdata").WithError(err).WithFields(logger.Fields{
			"symbol":    q.Symbol,
			"timestamp": q.Timestamp,
		}).Warn("malformed quote skipped")
		return
	}

	atomic.AddInt64(&m.quotesProcessed, 1)

	for _, ev := range m.evals[q.Symbol] {
		res := ev.Evaluate(q)
		switch res.Action {
		case conditional.Arm:
			atomic.AddInt64(&m.armed, 1)
			m.log.WithComponent("marketdata").WithFields(logger.Fields{
				"order_id": ev.ID,
				"symbol":   ev.Symbol,
			}).Debug("stop-limit armed")
		case conditional.Fire:
			atomic.AddInt64(&m.fired, 1)
			m.emitter.Emit(events.Event{
				OrderID:   res.Order.ID,
				Symbol:    res.Order.Symbol,
				Status:    res.Order.Status,
				Reason:    "triggered",
				Timestamp: res.Order.Timestamp,
			})
			m.forward(res.Order)
		}
	}
}

// forward offers a triggered order to the dispatch ring, retrying a bounded
// number of times. After the bound the order is surfaced as cancelled; it is
// never silently lost and the producer never blocks indefinitely.
func (m *MarketDataStage) forward(o models.Order) {
	for i := 0; i < m.config.Pipeline.EnqueueRetries; i++ {
		if m.dispatch.Enqueue(o) {
			return
		}
		time.Sleep(m.config.Pipeline.PollBackoffMin)
	}

	atomic.AddInt64(&m.forwardDropped, 1)
	o.Status = models.StatusCancelled
	m.log.WithComponent("marketdata").WithFields(logger.Fields{
		"order_id": o.ID,
		"symbol":   o.Symbol,
	}).Error("dispatch ring full, triggered order cancelled")
	m.emitter.Emit(events.Event{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Status:    models.StatusCancelled,
		Reason:    "dispatch channel full",
		Timestamp: o.Timestamp,
	})
}

// QuotesProcessed reports how many quotes were applied to a book.
func (m *MarketDataStage) QuotesProcessed() int64 {
	return atomic.LoadInt64(&m.quotesProcessed)
}

// QuotesDropped reports how many quotes the full ring refused at ingress.
func (m *MarketDataStage) QuotesDropped() int64 {
	return atomic.LoadInt64(&m.quotesDropped)
}

// Fired reports how many conditional instructions triggered.
func (m *MarketDataStage) Fired() int64 {
	return atomic.LoadInt64(&m.fired)
}

func (m *MarketDataStage) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(m.config.Pipeline.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.log.LogMetric("marketdata", "quotes_processed", atomic.LoadInt64(&m.quotesProcessed), "counter", logger.Fields{})
			m.log.LogMetric("marketdata", "quotes_dropped", atomic.LoadInt64(&m.quotesDropped), "counter", logger.Fields{})
			m.log.LogMetric("marketdata", "orders_fired", atomic.LoadInt64(&m.fired), "counter", logger.Fields{})
			m.log.WithComponent("marketdata").WithFields(logger.Fields{
				"quotes_processed": atomic.LoadInt64(&m.quotesProcessed),
				"quotes_dropped":   atomic.LoadInt64(&m.quotesDropped),
				"unknown_symbol":   atomic.LoadInt64(&m.unknownSymbol),
				"malformed":        atomic.LoadInt64(&m.malformed),
				"armed":            atomic.LoadInt64(&m.armed),
				"fired":            atomic.LoadInt64(&m.fired),
				"forward_dropped":  atomic.LoadInt64(&m.forwardDropped),
				"ring_len":         m.in.Len(),
				"ring_cap":         m.in.Cap(),
			}).Info("market data metrics")
		}
	}
}
