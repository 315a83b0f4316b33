package domain

import "time"

// PriceLevel is a single price+amount entry in the order book.
type PriceLevel struct {
	Price  float64
	Amount float64
}

// MarketSnapshot is a point-in-time view of the order book for the traded
// pair. Bids are sorted best (highest) first and asks best (lowest) first;
// the gateway guarantees the ordering.
type MarketSnapshot struct {
	Pair      string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, if any.
func (s MarketSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (s MarketSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Thin reports whether the snapshot is unusable for pricing (either side of
// the book is empty).
func (s MarketSnapshot) Thin() bool {
	return len(s.Bids) == 0 || len(s.Asks) == 0
}
