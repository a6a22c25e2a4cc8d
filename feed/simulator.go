// Package feed contains the built-in quote source. It stands in for the
// external feed collaborator, generating a random-walk stream per symbol and
// pushing it through the pipeline's quote ingress.
package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/models"
)

// Sink receives generated quotes; it reports false when the quote was
// dropped by backpressure. The coordinator's OnQuote satisfies this.
type Sink func(models.Quote) bool

type symbolState struct {
	name string
	mid  float64
}

// Simulator walks each configured symbol's mid price and emits best bid/ask
// quotes at a bounded rate from a single goroutine, preserving the
// single-producer discipline of the quote ring.
type Simulator struct {
	symbols []symbolState
	limiter *rate.Limiter
	sink    Sink
	rnd     *rand.Rand

	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	log      *logger.Log
	produced atomic.Int64
	dropped  atomic.Int64
}

// NewSimulator builds a simulator seeded with each symbol's reference price.
func NewSimulator(cfg *appconfig.Config, syms *appconfig.Symbols, sink Sink) (*Simulator, error) {
	if sink == nil {
		return nil, fmt.Errorf("feed: sink must not be nil")
	}
	if len(syms.Symbols) == 0 {
		return nil, fmt.Errorf("feed: no symbols configured")
	}
	s := &Simulator{
		limiter: rate.NewLimiter(rate.Limit(cfg.Feed.QuotesPerSecond), cfg.Feed.Burst),
		sink:    sink,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logger.GetLogger(),
	}
	for _, sym := range syms.Symbols {
		s.symbols = append(s.symbols, symbolState{name: sym.Name, mid: sym.ReferencePrice})
	}
	return s, nil
}

// Start launches the feed goroutine.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("simulator already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.WithComponent("feed").WithFields(logger.Fields{
		"symbols": len(s.symbols),
	}).Info("starting feed simulator")

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts quote production and joins the feed goroutine.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.WithComponent("feed").WithFields(logger.Fields{
		"produced": s.produced.Load(),
		"dropped":  s.dropped.Load(),
	}).Info("feed simulator stopped")
}

// Produced reports how many quotes were generated.
func (s *Simulator) Produced() int64 {
	return s.produced.Load()
}

// Dropped reports how many quotes the ingress refused.
func (s *Simulator) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Simulator) run(ctx context.Context) {
	defer s.wg.Done()

	var lastTS int64
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		st := &s.symbols[s.rnd.Intn(len(s.symbols))]

		// Random walk of the mid, bounded away from zero.
		st.mid += st.mid * (s.rnd.Float64() - 0.5) * 0.002
		if st.mid < 0.01 {
			st.mid = 0.01
		}
		spread := st.mid * 0.0005

		// Strictly increasing feed timestamps keep the per-symbol ordering
		// guarantee trivially satisfied.
		ts := time.Now().UnixNano()
		if ts <= lastTS {
			ts = lastTS + 1
		}
		lastTS = ts

		q := models.Quote{
			Symbol:    st.name,
			Bid:       st.mid - spread,
			Ask:       st.mid + spread,
			BidSize:   float64(1 + s.rnd.Intn(100)),
			AskSize:   float64(1 + s.rnd.Intn(100)),
			Timestamp: ts,
		}
		s.produced.Add(1)
		if !s.sink(q) {
			s.dropped.Add(1)
		}
	}
}
