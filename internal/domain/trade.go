package domain

import "time"

// Trade is a single public trade tick from the exchange tape. Immutable once
// received; the bot only reads the tape to estimate short-term activity.
type Trade struct {
	Timestamp time.Time
	Price     float64
	Amount    float64
	Side      OrderSide
}
