// Package events carries order status transitions out of the pipeline to
// observability collaborators. Emission is fire-and-forget: the core never
// depends on an emitter succeeding, returning, or keeping up.
package events

import (
	"orderflow/logger"
	"orderflow/models"
)

// Event records one status transition for one order.
type Event struct {
	OrderID   string             `json:"order_id"`
	Symbol    string             `json:"symbol"`
	Status    models.OrderStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Emitter receives status events. Implementations must not block the caller.
type Emitter interface {
	Emit(Event)
}

// Multi fans one event out to several emitters.
type Multi []Emitter

func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// LogEmitter writes every event to the structured log.
type LogEmitter struct {
	log *logger.Log
}

func NewLogEmitter() *LogEmitter {
	return &LogEmitter{log: logger.GetLogger()}
}

func (l *LogEmitter) Emit(ev Event) {
	l.log.WithComponent("events").WithFields(logger.Fields{
		"order_id":  ev.OrderID,
		"symbol":    ev.Symbol,
		"status":    string(ev.Status),
		"reason":    ev.Reason,
		"timestamp": ev.Timestamp,
	}).Info("order status")
}
