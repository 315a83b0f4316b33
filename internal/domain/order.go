package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the server-side order lifecycle. A partial fill is not a
// status of its own: it is detected by comparing the server-reported remaining
// amount against the locally remembered one.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusClosed    OrderStatus = "closed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderState is the bot's local memory of one resting order. The zero value
// means "no open order"; Price is meaningless when ID is empty.
type OrderState struct {
	ID     string
	Amount float64
	Price  float64
}

// Live reports whether an order is believed to be resting at the exchange.
func (o OrderState) Live() bool { return o.ID != "" }

// OrderInfo is the server-reported view of an order.
type OrderInfo struct {
	ID              string
	Status          OrderStatus
	Price           float64
	RemainingAmount float64
}

// ExecutedPrice remembers the price at which one side last filled. It anchors
// the next price suggestion on the opposite side; Valid is false until the
// first fill.
type ExecutedPrice struct {
	Price float64
	Valid bool
}

// Balance holds the available amounts for the traded pair.
type Balance struct {
	Base  float64
	Quote float64
}

// Fill is an executed (full or partial) order event recorded for audit.
type Fill struct {
	ID         string
	OrderID    string
	CycleID    string
	Pair       string
	Side       OrderSide
	Price      float64
	Amount     float64
	Partial    bool
	ExecutedAt time.Time
}

// CycleRecord is one reconcile-cycle audit row: what the bot saw and where it
// left both orders.
type CycleRecord struct {
	ID         string
	Pair       string
	Madness    float64
	WallVolume float64
	IntervalMs int64
	SellID     string
	SellPrice  float64
	SellAmount float64
	BuyID      string
	BuyPrice   float64
	BuyAmount  float64
	StartedAt  time.Time
}
