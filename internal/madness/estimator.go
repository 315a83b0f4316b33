// Package madness computes the market-activity coefficient that scales the
// bot's polling interval and wall volume. The coefficient is a float in
// [0, 1]: 0 means a peaceful market, 1 a wild one.
package madness

import (
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// Estimator holds the exchange-tuned normalization bounds. MinTrades/MaxTrades
// bound the grouped-event count, MinAvgVolume/MaxAvgVolume bound the average
// grouped amount; both are mapped linearly onto [0, 1] and averaged.
type Estimator struct {
	MinTrades    int
	MaxTrades    int
	MinAvgVolume float64
	MaxAvgVolume float64
}

type groupKey struct {
	ts   int64
	side domain.OrderSide
}

// Estimate returns the activity coefficient for the trades inside the
// trailing window ending at now. An empty window, a nil tape, or a
// non-positive window all yield 0.0 (peaceful market); Estimate never fails.
//
// Trades sharing an exchange timestamp and side are collapsed into one
// logical event, on the theory that a single aggressive sweep is reported as
// several ticks. BUY groups keep the largest single amount seen for the key
// and SELL groups the smallest. The max/min choice (rather than a sum) is
// deliberate and matches the live tuning of the trap strategies: it weighs
// the biggest slice of a sweep, not total volume.
func (e Estimator) Estimate(trades []domain.Trade, now time.Time, window time.Duration) float64 {
	if len(trades) == 0 || window <= 0 {
		return 0
	}

	cutoff := now.Add(-window)
	groups := make(map[groupKey]float64)
	for _, t := range trades {
		if t.Timestamp.Before(cutoff) {
			continue
		}
		k := groupKey{ts: t.Timestamp.UnixNano(), side: t.Side}
		cur, seen := groups[k]
		if !seen {
			groups[k] = t.Amount
			continue
		}
		if t.Side == domain.OrderSideBuy {
			if t.Amount > cur {
				groups[k] = t.Amount
			}
		} else if t.Amount < cur {
			groups[k] = t.Amount
		}
	}

	n := len(groups)
	if n == 0 {
		return 0
	}

	intensity := clamp01((float64(n) - float64(e.MinTrades)) / float64(e.MaxTrades-e.MinTrades))

	var sum float64
	for _, amount := range groups {
		sum += amount
	}
	avg := sum / float64(n)
	volume := clamp01((avg - e.MinAvgVolume) / (e.MaxAvgVolume - e.MinAvgVolume))

	return (intensity + volume) / 2
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
