package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

var testPolicy = Policy{
	MinVolume:     1.0,
	MaxVolume:     5.0,
	MinInterval:   2 * time.Second,
	MaxInterval:   10 * time.Second,
	MinDifference: 0.5,
	MinPriceDelta: 0.05,
	Tick:          0.01,
}

func book(bids, asks []domain.PriceLevel) domain.MarketSnapshot {
	return domain.MarketSnapshot{Pair: "XBT/EUR", Bids: bids, Asks: asks}
}

func TestSuggestWallVolumeEndpointsAndMonotonicity(t *testing.T) {
	assert.Equal(t, 1.0, SuggestWallVolume(0, 1, 5))
	assert.Equal(t, 5.0, SuggestWallVolume(1, 1, 5))
	assert.Equal(t, 1.0, SuggestWallVolume(-3, 1, 5))
	assert.Equal(t, 5.0, SuggestWallVolume(7, 1, 5))

	prev := -1.0
	for coef := 0.0; coef <= 1.0; coef += 0.1 {
		v := SuggestWallVolume(coef, 1, 5)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestSuggestIntervalInverseMonotonicity(t *testing.T) {
	min, max := 2*time.Second, 10*time.Second

	assert.Equal(t, max, SuggestInterval(0, min, max))
	assert.Equal(t, min, SuggestInterval(1, min, max))

	prev := max + time.Second
	for coef := 0.0; coef <= 1.0; coef += 0.1 {
		iv := SuggestInterval(coef, min, max)
		assert.LessOrEqual(t, iv, prev)
		prev = iv
	}
}

func TestSuggestSellPriceUndercutsFirstQualifyingWall(t *testing.T) {
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 1}},
		[]domain.PriceLevel{{Price: 100.5, Amount: 1}, {Price: 101, Amount: 2}, {Price: 102, Amount: 5}},
	)

	// wallVolume 1: the best ask clears the volume test but not the margin
	// against the best bid (100.5 - 0.5 = 100, not strictly above), so the
	// walk moves on to 101 and undercuts it by one tick.
	got, err := testPolicy.SuggestSellPrice(b, 1, 1, domain.OrderState{})
	require.NoError(t, err)
	assert.InDelta(t, 100.99, got, 1e-9)
}

func TestSuggestSellPriceSkipsOwnRestingVolume(t *testing.T) {
	sell := domain.OrderState{ID: "o1", Amount: 1, Price: 100.5}
	b := book(
		[]domain.PriceLevel{{Price: 99, Amount: 1}},
		[]domain.PriceLevel{{Price: 100.5, Amount: 1.5}, {Price: 101, Amount: 5}},
	)

	// The 100.5 level holds 1.5 but 1.0 of that is our own order, so only 0.5
	// counts toward the wall; with operative 1 and wall 2 it does not qualify
	// and the suggestion comes from the 101 level.
	got, err := testPolicy.SuggestSellPrice(b, 2, 1, sell)
	require.NoError(t, err)
	assert.InDelta(t, 100.99, got, 1e-9)
}

func TestSuggestSellPriceKeepsCurrentWithinDelta(t *testing.T) {
	sell := domain.OrderState{ID: "o1", Amount: 1, Price: 100.99}
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 1}},
		[]domain.PriceLevel{{Price: 100.99, Amount: 1}, {Price: 101.03, Amount: 10}},
	)

	// Our order is already the best ask and the candidate 101.02 moved less
	// than MinPriceDelta: no churn.
	got, err := testPolicy.SuggestSellPrice(b, 1, 1, sell)
	require.NoError(t, err)
	assert.Equal(t, 100.99, got)

	// Identical inputs again: same answer (idempotent, no flip-flopping).
	again, err := testPolicy.SuggestSellPrice(b, 1, 1, sell)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSuggestSellPriceTakesQueueFrontWithinDelta(t *testing.T) {
	sell := domain.OrderState{ID: "o1", Amount: 1, Price: 101.01}
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 1}},
		[]domain.PriceLevel{{Price: 101, Amount: 10}},
	)

	// Candidate 100.99 is within MinPriceDelta of the resting 101.01, but the
	// order sits behind the 101 wall and the move would make it the best ask,
	// so the small improvement is taken.
	got, err := testPolicy.SuggestSellPrice(b, 1, 1, sell)
	require.NoError(t, err)
	assert.InDelta(t, 100.99, got, 1e-9)
}

func TestSuggestSellPriceThinWallFallback(t *testing.T) {
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 1}},
		[]domain.PriceLevel{{Price: 100.2, Amount: 0.1}, {Price: 100.3, Amount: 0.1}},
	)

	// No ask accumulates enough volume: undercut the deepest ask.
	got, err := testPolicy.SuggestSellPrice(b, 50, 1, domain.OrderState{})
	require.NoError(t, err)
	assert.InDelta(t, 100.29, got, 1e-9)
}

func TestSuggestSellPriceEmptyBook(t *testing.T) {
	_, err := testPolicy.SuggestSellPrice(book(nil, nil), 1, 1, domain.OrderState{})
	assert.ErrorIs(t, err, domain.ErrThinBook)

	_, err = testPolicy.SuggestBuyPrice(book(nil, nil), 1, 1, domain.OrderState{}, domain.ExecutedPrice{})
	assert.ErrorIs(t, err, domain.ErrThinBook)
}

func TestSuggestBuyPriceRespectsProfitCeiling(t *testing.T) {
	executedSell := domain.ExecutedPrice{Price: 100.2, Valid: true}
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 5}, {Price: 99, Amount: 5}},
		[]domain.PriceLevel{{Price: 101, Amount: 5}},
	)

	// Ceiling is 100.2 - 0.5 = 99.7. Overbidding the 100 level would breach
	// it, so the walk settles on the 99 level.
	got, err := testPolicy.SuggestBuyPrice(b, 3, 1, domain.OrderState{}, executedSell)
	require.NoError(t, err)
	assert.InDelta(t, 99.01, got, 1e-9)
	assert.Less(t, got, executedSell.Price-testPolicy.MinDifference)
}

func TestSuggestBuyPriceFallsBackToMinimumProfitPrice(t *testing.T) {
	executedSell := domain.ExecutedPrice{Price: 100.2, Valid: true}
	b := book(
		[]domain.PriceLevel{{Price: 99.8, Amount: 50}},
		[]domain.PriceLevel{{Price: 101, Amount: 5}},
	)

	// Every bid sits above the ceiling: quote the minimum-profit price.
	got, err := testPolicy.SuggestBuyPrice(b, 1, 1, domain.OrderState{}, executedSell)
	require.NoError(t, err)
	assert.InDelta(t, 99.7, got, 1e-9)
}

func TestSuggestBuyPriceWithoutAnchor(t *testing.T) {
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 5}, {Price: 99, Amount: 5}},
		[]domain.PriceLevel{{Price: 101, Amount: 5}},
	)

	// No sell has executed yet: the ceiling is inactive and the best wall wins.
	got, err := testPolicy.SuggestBuyPrice(b, 3, 1, domain.OrderState{}, domain.ExecutedPrice{})
	require.NoError(t, err)
	assert.InDelta(t, 100.01, got, 1e-9)
}

func TestSuggestBuyPriceKeepsCurrentWithinDelta(t *testing.T) {
	buy := domain.OrderState{ID: "b1", Amount: 1, Price: 100.02}
	b := book(
		[]domain.PriceLevel{{Price: 100, Amount: 5}},
		[]domain.PriceLevel{{Price: 101, Amount: 5}},
	)

	got, err := testPolicy.SuggestBuyPrice(b, 3, 1, buy, domain.ExecutedPrice{})
	require.NoError(t, err)
	assert.Equal(t, 100.02, got)
}

func TestPolicyBoundHelpers(t *testing.T) {
	assert.Equal(t, testPolicy.MinVolume, testPolicy.WallVolume(0))
	assert.Equal(t, testPolicy.MaxVolume, testPolicy.WallVolume(1))
	assert.Equal(t, testPolicy.MaxInterval, testPolicy.Interval(0))
	assert.Equal(t, testPolicy.MinInterval, testPolicy.Interval(1))
}
