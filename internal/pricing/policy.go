// Package pricing derives wall volumes, polling intervals, and limit prices
// for the trap strategy. Everything here is pure: the functions never touch
// the network and depend only on their inputs.
package pricing

import (
	"math"
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// Policy holds the exchange-tuned pricing parameters.
type Policy struct {
	// MinVolume/MaxVolume bound the wall volume the bot hides behind.
	MinVolume float64
	MaxVolume float64
	// MinInterval/MaxInterval bound the polling interval; wilder markets poll
	// tighter.
	MinInterval time.Duration
	MaxInterval time.Duration
	// MinDifference is the required profit spread between the bot's own buy
	// and sell prices.
	MinDifference float64
	// MinPriceDelta is the smallest price improvement worth a cancel+recreate.
	MinPriceDelta float64
	// Tick is the exchange price increment used to undercut or overbid a wall.
	Tick float64
}

// SuggestWallVolume maps the activity coefficient onto [minVol, maxVol].
func SuggestWallVolume(coef, minVol, maxVol float64) float64 {
	return minVol + clamp01(coef)*(maxVol-minVol)
}

// SuggestInterval maps the activity coefficient inversely onto [min, max]:
// a calm market (coef 0) yields max, a wild one (coef 1) yields min.
func SuggestInterval(coef float64, min, max time.Duration) time.Duration {
	return min + time.Duration((1-clamp01(coef))*float64(max-min))
}

// WallVolume applies SuggestWallVolume with the policy bounds.
func (p Policy) WallVolume(coef float64) float64 {
	return SuggestWallVolume(coef, p.MinVolume, p.MaxVolume)
}

// Interval applies SuggestInterval with the policy bounds.
func (p Policy) Interval(coef float64) time.Duration {
	return SuggestInterval(coef, p.MinInterval, p.MaxInterval)
}

// SuggestSellPrice walks the asks from best price upward, accumulating resting
// volume (the bot's own resting amount at a matching price is not counted),
// and undercuts by one tick the first ask that both hides the bot behind
// wallVolume and still clears MinDifference against the best bid. When a sell
// order is already live and the candidate is within MinPriceDelta of its
// price, the current price is kept to avoid churn, unless the move would take
// the front of the ask queue. If no ask qualifies (thin market) the fallback
// undercuts the deepest ask.
//
// Returns ErrThinBook when either side of the book is empty.
func (p Policy) SuggestSellPrice(book domain.MarketSnapshot, wallVolume, operativeAmount float64, sell domain.OrderState) (float64, error) {
	if book.Thin() {
		return 0, domain.ErrThinBook
	}

	bestBid := book.Bids[0].Price
	bestAsk := book.Asks[0].Price
	var accumulated float64
	for _, ask := range book.Asks {
		volume := ask.Amount
		if sell.Live() && ask.Price == sell.Price {
			// Do not count our own resting order as part of the wall.
			volume -= sell.Amount
			if volume < 0 {
				volume = 0
			}
		}
		accumulated += volume
		if accumulated+operativeAmount > wallVolume && ask.Price-p.MinDifference > bestBid {
			return p.settleSell(ask.Price-p.Tick, sell, bestAsk), nil
		}
	}

	// No wall big enough: undercut the deepest ask and wait.
	last := book.Asks[len(book.Asks)-1]
	return p.settleSell(last.Price-p.Tick, sell, bestAsk), nil
}

// SuggestBuyPrice mirrors SuggestSellPrice, walking the bids downward from the
// best. A bid is only eligible once the accumulated volume clears the
// wall-volume floor, and only while it stays below the profit ceiling
// executedSell.Price - MinDifference. When no bid clears the ceiling the
// minimum-profit price itself is suggested ("quote it and hope"). Before any
// sell has executed the ceiling is inactive and the fallback overbids the
// deepest bid.
func (p Policy) SuggestBuyPrice(book domain.MarketSnapshot, wallVolume, operativeAmount float64, buy domain.OrderState, executedSell domain.ExecutedPrice) (float64, error) {
	if book.Thin() {
		return 0, domain.ErrThinBook
	}

	if wallVolume < p.MinVolume {
		wallVolume = p.MinVolume
	}
	ceiling := math.Inf(1)
	if executedSell.Valid {
		ceiling = executedSell.Price - p.MinDifference
	}

	var accumulated float64
	for _, bid := range book.Bids {
		volume := bid.Amount
		if buy.Live() && bid.Price == buy.Price {
			volume -= buy.Amount
			if volume < 0 {
				volume = 0
			}
		}
		accumulated += volume
		if accumulated+operativeAmount > wallVolume && bid.Price+p.Tick < ceiling {
			return p.settleBuy(bid.Price+p.Tick, buy), nil
		}
	}

	if executedSell.Valid {
		// Nothing under the ceiling: suggest the minimum-profit price.
		return p.settleBuy(ceiling, buy), nil
	}
	last := book.Bids[len(book.Bids)-1]
	return p.settleBuy(last.Price+p.Tick, buy), nil
}

// settleSell suppresses needless churn on the sell side: a candidate within
// MinPriceDelta of the live order keeps the current price. The hold applies
// only while the order stays behind the best ask; a candidate that would put
// it first in the queue always goes through.
func (p Policy) settleSell(candidate float64, current domain.OrderState, bestAsk float64) float64 {
	if current.Live() && math.Abs(candidate-current.Price) < p.MinPriceDelta {
		if current.Price <= bestAsk || candidate >= bestAsk {
			return current.Price
		}
	}
	return candidate
}

// settleBuy suppresses needless churn on the buy side: when an order is live
// and the candidate moved less than MinPriceDelta, the current price wins.
func (p Policy) settleBuy(candidate float64, current domain.OrderState) float64 {
	if current.Live() && math.Abs(candidate-current.Price) < p.MinPriceDelta {
		return current.Price
	}
	return candidate
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
