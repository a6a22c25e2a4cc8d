package models

// Side identifies the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the lifecycle state of an order. Status transitions are the
// only externally visible record of an order's outcome.
type OrderStatus string

const (
	StatusNew       OrderStatus = "NEW"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Quote is a best bid/ask snapshot for a single symbol at a point in time.
// Quotes are immutable once constructed; the timestamp is monotonic
// nanoseconds assigned by the feed.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   float64 `json:"bid_size"`
	AskSize   float64 `json:"ask_size"`
	Timestamp int64   `json:"timestamp"`
}

// Order is a concrete buy/sell instruction ready for execution. A price of
// zero means market (no limit). Once an order has been handed to the
// execution collaborator the pipeline never mutates it again.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price"`
	Timestamp int64       `json:"timestamp"`
	Status    OrderStatus `json:"status"`
}

// IsMarket reports whether the order carries no limit price.
func (o Order) IsMarket() bool {
	return o.Price == 0
}

// SignedQuantity returns the order quantity with buy positive and sell
// negative, the convention used by the position ledger.
func (o Order) SignedQuantity() float64 {
	if o.Side == SideSell {
		return -o.Quantity
	}
	return o.Quantity
}

// Notional is the dollar value of the order at its limit price. Market
// orders have no limit price and report zero.
func (o Order) Notional() float64 {
	return o.Price * o.Quantity
}
