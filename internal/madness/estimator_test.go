package madness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

var testEstimator = Estimator{
	MinTrades:    2,
	MaxTrades:    10,
	MinAvgVolume: 1.0,
	MaxAvgVolume: 5.0,
}

func tradeAt(ts time.Time, side domain.OrderSide, amount float64) domain.Trade {
	return domain.Trade{Timestamp: ts, Price: 100, Amount: amount, Side: side}
}

func TestEstimateEmptyTapeIsPeaceful(t *testing.T) {
	now := time.Now()

	assert.Zero(t, testEstimator.Estimate(nil, now, 90*time.Second))
	assert.Zero(t, testEstimator.Estimate([]domain.Trade{}, now, 90*time.Second))

	// Trades exist but all fall outside the window.
	stale := []domain.Trade{tradeAt(now.Add(-5*time.Minute), domain.OrderSideBuy, 2)}
	assert.Zero(t, testEstimator.Estimate(stale, now, 90*time.Second))
}

func TestEstimateBuyGroupKeepsMaxNotSum(t *testing.T) {
	now := time.Unix(1000, 0)
	ts := now.Add(-10 * time.Second)
	trades := []domain.Trade{
		tradeAt(ts, domain.OrderSideBuy, 1),
		tradeAt(ts, domain.OrderSideBuy, 3),
		tradeAt(ts, domain.OrderSideBuy, 2),
	}

	// One group of amount 3 (the max): intensity = (1-2)/8 clamped to 0,
	// volume = (3-1)/4 = 0.5, coefficient = 0.25. A sum (6) would give
	// volume = 1.0 and coefficient 0.5 instead.
	got := testEstimator.Estimate(trades, now, 90*time.Second)
	assert.InDelta(t, 0.25, got, 1e-9)
}

func TestEstimateSellGroupKeepsMin(t *testing.T) {
	now := time.Unix(1000, 0)
	ts := now.Add(-10 * time.Second)
	trades := []domain.Trade{
		tradeAt(ts, domain.OrderSideSell, 4),
		tradeAt(ts, domain.OrderSideSell, 2),
		tradeAt(ts, domain.OrderSideSell, 3),
	}

	// One group of amount 2 (the min): volume = (2-1)/4 = 0.25, intensity 0.
	got := testEstimator.Estimate(trades, now, 90*time.Second)
	assert.InDelta(t, 0.125, got, 1e-9)
}

func TestEstimateSidesGroupIndependently(t *testing.T) {
	now := time.Unix(1000, 0)
	ts := now.Add(-10 * time.Second)
	trades := []domain.Trade{
		tradeAt(ts, domain.OrderSideBuy, 3),
		tradeAt(ts, domain.OrderSideSell, 3),
	}

	// Same timestamp, opposite sides: two groups, not one.
	// intensity = (2-2)/8 = 0, avg = 3, volume = 0.5, coefficient 0.25.
	got := testEstimator.Estimate(trades, now, 90*time.Second)
	assert.InDelta(t, 0.25, got, 1e-9)
}

func TestEstimateWindowBoundaryInclusive(t *testing.T) {
	now := time.Unix(1000, 0)
	window := 90 * time.Second
	trades := []domain.Trade{
		tradeAt(now.Add(-window), domain.OrderSideBuy, 1), // exactly on the cutoff
	}

	got := testEstimator.Estimate(trades, now, window)
	assert.Zero(t, got) // count 1 and avg 1 both clamp to 0, but the trade was counted
}

func TestEstimateClampsToOne(t *testing.T) {
	now := time.Unix(1000, 0)
	var trades []domain.Trade
	for i := 0; i < 50; i++ {
		trades = append(trades, tradeAt(now.Add(-time.Duration(i)*time.Second), domain.OrderSideBuy, 100))
	}

	got := testEstimator.Estimate(trades, now, 240*time.Second)
	assert.Equal(t, 1.0, got)
}

func TestEstimateMidRange(t *testing.T) {
	now := time.Unix(1000, 0)
	trades := make([]domain.Trade, 0, 6)
	for i := 0; i < 6; i++ {
		trades = append(trades, tradeAt(now.Add(-time.Duration(i+1)*time.Second), domain.OrderSideBuy, 3))
	}

	// 6 groups: intensity = (6-2)/8 = 0.5; avg = 3: volume = 0.5.
	got := testEstimator.Estimate(trades, now, 90*time.Second)
	assert.InDelta(t, 0.5, got, 1e-9)
}
