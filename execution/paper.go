// Package execution provides the built-in execution collaborator. The
// pipeline only knows the Executor interface; this paper implementation
// fills every dispatched order immediately, which is enough to run the
// binary end-to-end without a venue connection.
package execution

import (
	"sync/atomic"
	"time"

	"orderflow/events"
	"orderflow/logger"
	"orderflow/models"
)

// Paper acknowledges every order as filled and reports the fill on the
// event plane.
type Paper struct {
	emitter events.Emitter
	filled  atomic.Int64
	log     *logger.Log
}

func NewPaper(emitter events.Emitter) *Paper {
	if emitter == nil {
		emitter = events.Multi{}
	}
	return &Paper{emitter: emitter, log: logger.GetLogger()}
}

// Submit takes ownership of the order and fills it. Called from the
// dispatch stage worker; must not block for long.
func (p *Paper) Submit(o models.Order) {
	p.filled.Add(1)
	p.log.WithComponent("execution").WithFields(logger.Fields{
		"order_id": o.ID,
		"symbol":   o.Symbol,
		"side":     string(o.Side),
		"quantity": o.Quantity,
		"price":    o.Price,
		"market":   o.IsMarket(),
	}).Info("order filled")

	p.emitter.Emit(events.Event{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Status:    models.StatusFilled,
		Timestamp: time.Now().UnixNano(),
	})
}

// Filled reports how many orders this executor has filled.
func (p *Paper) Filled() int64 {
	return p.filled.Load()
}
