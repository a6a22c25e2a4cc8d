// Package conditional implements the trigger state machine for standing
// Limit, Stop and StopLimit instructions. An instruction becomes a concrete
// order exactly once, on the first quote that satisfies its condition.
package conditional

import (
	"orderflow/models"
)

// Kind selects the trigger variant.
type Kind uint8

const (
	Limit Kind = iota
	Stop
	StopLimit
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// State is the lifecycle of a standing instruction. Triggered and Dead are
// terminal: no quote evaluated afterwards can produce another order.
type State uint8

const (
	Pending State = iota
	Triggered
	Dead
)

// Action is the outcome of evaluating one quote.
type Action uint8

const (
	// NoAction means the quote did not move the instruction.
	NoAction Action = iota
	// Arm means a StopLimit crossed its stop price and is now watching its
	// limit condition. No order is emitted on the arming quote itself.
	Arm
	// Fire means a concrete order was generated.
	Fire
)

// Result carries the outcome of Evaluate. Order is only meaningful when
// Action is Fire.
type Result struct {
	Action Action
	Order  models.Order
}

// Order is a standing conditional instruction for one symbol. It must only
// ever be evaluated by a single goroutine, against quotes for its own symbol
// in non-decreasing timestamp order; the market data stage guarantees both.
type Order struct {
	ID          string
	Symbol      string
	Side        models.Side
	Quantity    float64
	SubmittedAt int64
	Kind        Kind

	// LimitPrice is used by Limit and StopLimit; StopPrice by Stop and
	// StopLimit.
	LimitPrice float64
	StopPrice  float64

	state State
	armed bool
}

// NewLimit returns a pending limit instruction.
func NewLimit(id, symbol string, side models.Side, qty, limitPrice float64, ts int64) *Order {
	return &Order{ID: id, Symbol: symbol, Side: side, Quantity: qty, SubmittedAt: ts, Kind: Limit, LimitPrice: limitPrice}
}

// NewStop returns a pending stop instruction. The generated order is a
// market order.
func NewStop(id, symbol string, side models.Side, qty, stopPrice float64, ts int64) *Order {
	return &Order{ID: id, Symbol: symbol, Side: side, Quantity: qty, SubmittedAt: ts, Kind: Stop, StopPrice: stopPrice}
}

// NewStopLimit returns a pending two-phase stop-limit instruction.
func NewStopLimit(id, symbol string, side models.Side, qty, stopPrice, limitPrice float64, ts int64) *Order {
	return &Order{ID: id, Symbol: symbol, Side: side, Quantity: qty, SubmittedAt: ts, Kind: StopLimit, StopPrice: stopPrice, LimitPrice: limitPrice}
}

// State reports the current lifecycle state.
func (o *Order) State() State {
	return o.state
}

// Armed reports whether a StopLimit has crossed its stop price. Arming is
// irreversible.
func (o *Order) Armed() bool {
	return o.armed
}

// Cancel moves a pending instruction to Dead. Evaluation of a dead
// instruction is a no-op.
func (o *Order) Cancel() {
	if o.state == Pending {
		o.state = Dead
	}
}

// Evaluate feeds one quote through the state machine. At most one Fire is
// ever produced over the instruction's lifetime; repeated quotes that keep a
// condition true after triggering produce NoAction.
func (o *Order) Evaluate(q models.Quote) Result {
	if o.state != Pending {
		return Result{Action: NoAction}
	}

	switch o.Kind {
	case Limit:
		if o.limitMet(q) {
			return o.fire(o.LimitPrice, q)
		}
	case Stop:
		if o.stopMet(q) {
			// Stop fires as a market order.
			return o.fire(0, q)
		}
	case StopLimit:
		if !o.armed {
			if o.stopMet(q) {
				o.armed = true
				return Result{Action: Arm}
			}
			return Result{Action: NoAction}
		}
		if o.limitMet(q) {
			return o.fire(o.LimitPrice, q)
		}
	}
	return Result{Action: NoAction}
}

func (o *Order) limitMet(q models.Quote) bool {
	if o.Side == models.SideBuy {
		return q.Ask <= o.LimitPrice
	}
	return q.Bid >= o.LimitPrice
}

func (o *Order) stopMet(q models.Quote) bool {
	if o.Side == models.SideBuy {
		return q.Ask >= o.StopPrice
	}
	return q.Bid <= o.StopPrice
}

func (o *Order) fire(price float64, q models.Quote) Result {
	o.state = Triggered
	return Result{
		Action: Fire,
		Order: models.Order{
			ID:        o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Quantity:  o.Quantity,
			Price:     price,
			Timestamp: q.Timestamp,
			Status:    models.StatusNew,
		},
	}
}
