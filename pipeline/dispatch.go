package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "orderflow/config"
	"orderflow/events"
	"orderflow/internal/spsc"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/risk"
)

// Executor is the external execution collaborator. Submit receives each
// risk-accepted order exactly once; retries against the venue are the
// collaborator's responsibility, not the pipeline's.
type Executor interface {
	Submit(models.Order)
}

// DispatchStage drains the order ring on its own worker goroutine, gates
// every order through the risk check and hands accepted orders to the
// executor in acceptance order. The executor is never invoked while any
// ledger lock is held.
type DispatchStage struct {
	config   *appconfig.Config
	in       *spsc.Ring[models.Order]
	gate     *risk.Gate
	executor Executor
	emitter  events.Emitter

	ctx     context.Context
	stop    atomic.Bool
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log

	// Metrics
	accepted int64
	rejected int64
}

// NewDispatchStage wires the stage to its ring, gate and collaborators.
func NewDispatchStage(cfg *appconfig.Config, in *spsc.Ring[models.Order], gate *risk.Gate, executor Executor, emitter events.Emitter) *DispatchStage {
	return &DispatchStage{
		config:   cfg,
		in:       in,
		gate:     gate,
		executor: executor,
		emitter:  emitter,
		log:      logger.GetLogger(),
	}
}

// Enqueue offers an order to the dispatch ring from the market data stage,
// the single producer. Returns false when the ring is full.
func (d *DispatchStage) Enqueue(o models.Order) bool {
	if d.in.TryPush(o) {
		logger.RecordChannelMessage("orders")
		return true
	}
	logger.RecordChannelDrop("orders")
	return false
}

// Start launches the consumer worker.
func (d *DispatchStage) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatch stage already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.log.WithComponent("dispatch").Info("starting dispatch stage")

	d.wg.Add(1)
	go d.run()
	go d.metricsReporter(ctx)

	return nil
}

// Stop signals the worker, lets it drain every order already accepted into
// the ring, and joins. No order is abandoned mid-flight.
func (d *DispatchStage) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.stop.Store(true)
	d.wg.Wait()
	d.log.WithComponent("dispatch").Info("dispatch stage stopped")
}

func (d *DispatchStage) run() {
	defer d.wg.Done()

	backoff := d.config.Pipeline.PollBackoffMin
	for {
		if d.stop.Load() {
			d.drain()
			return
		}
		o, ok := d.in.TryPop()
		if !ok {
			time.Sleep(backoff)
			if backoff < d.config.Pipeline.PollBackoffMax {
				backoff *= 2
				if backoff > d.config.Pipeline.PollBackoffMax {
					backoff = d.config.Pipeline.PollBackoffMax
				}
			}
			continue
		}
		backoff = d.config.Pipeline.PollBackoffMin
		d.process(o)
	}
}

func (d *DispatchStage) drain() {
	for {
		o, ok := d.in.TryPop()
		if !ok {
			return
		}
		d.process(o)
	}
}

func (d *DispatchStage) process(o models.Order) {
	if err := d.gate.CheckAndReserve(o); err != nil {
		atomic.AddInt64(&d.rejected, 1)
		o.Status = models.StatusRejected
		d.log.WithComponent("dispatch").WithError(err).WithFields(logger.Fields{
			"order_id": o.ID,
			"symbol":   o.Symbol,
			"side":     string(o.Side),
			"quantity": o.Quantity,
		}).Warn("order rejected by risk gate")
		d.emitter.Emit(events.Event{
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Status:    models.StatusRejected,
			Reason:    err.Error(),
			Timestamp: o.Timestamp,
		})
		return
	}

	atomic.AddInt64(&d.accepted, 1)
	// Ownership passes to the executor here; the pipeline never touches the
	// order again.
	d.executor.Submit(o)
	d.emitter.Emit(events.Event{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Status:    o.Status,
		Reason:    "dispatched",
		Timestamp: o.Timestamp,
	})
}

// Accepted reports how many orders passed the risk gate.
func (d *DispatchStage) Accepted() int64 {
	return atomic.LoadInt64(&d.accepted)
}

// Rejected reports how many orders the risk gate refused.
func (d *DispatchStage) Rejected() int64 {
	return atomic.LoadInt64(&d.rejected)
}

func (d *DispatchStage) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(d.config.Pipeline.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.log.LogMetric("dispatch", "orders_accepted", atomic.LoadInt64(&d.accepted), "counter", logger.Fields{})
			d.log.LogMetric("dispatch", "orders_rejected", atomic.LoadInt64(&d.rejected), "counter", logger.Fields{})
			d.log.WithComponent("dispatch").WithFields(logger.Fields{
				"orders_accepted": atomic.LoadInt64(&d.accepted),
				"orders_rejected": atomic.LoadInt64(&d.rejected),
				"ring_len":        d.in.Len(),
				"ring_cap":        d.in.Cap(),
			}).Info("dispatch metrics")
		}
	}
}
