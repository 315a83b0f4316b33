package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

type scriptedMarket struct {
	book   domain.MarketSnapshot
	trades []domain.Trade
	now    time.Time
}

func (m *scriptedMarket) GetMarketDepth(context.Context) (domain.MarketSnapshot, error) {
	return m.book, nil
}

func (m *scriptedMarket) GetTradeHistory(context.Context, time.Time) ([]domain.Trade, error) {
	return m.trades, nil
}

func (m *scriptedMarket) GetServerTime(context.Context) (time.Time, error) {
	return m.now, nil
}

func testGateway() (*Gateway, *scriptedMarket) {
	market := &scriptedMarket{now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := New(market, domain.Balance{Base: 2, Quote: 1000}, logger)
	return gw, market
}

func TestPlaceOrderReservesFunds(t *testing.T) {
	gw, _ := testGateway()
	ctx := context.Background()

	_, err := gw.PlaceOrder(ctx, domain.OrderSideSell, 100, 1.5)
	require.NoError(t, err)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, bal.Base, 1e-9)

	// A second sell beyond the free base must be rejected.
	_, err = gw.PlaceOrder(ctx, domain.OrderSideSell, 100, 1.0)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestBuySideTradeFillsRestingSell(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	id, err := gw.PlaceOrder(ctx, domain.OrderSideSell, 100, 1.0)
	require.NoError(t, err)

	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 100.5, Amount: 2, Side: domain.OrderSideBuy},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)

	info, err := gw.GetOrderInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClosed, info.Status)
	assert.Zero(t, info.RemainingAmount)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1100, bal.Quote, 1e-9) // 1000 + 1.0 at 100
	assert.InDelta(t, 1, bal.Base, 1e-9)
}

func TestSellSideTradeFillsRestingBuyPartially(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	id, err := gw.PlaceOrder(ctx, domain.OrderSideBuy, 99, 1.0)
	require.NoError(t, err)

	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 98.5, Amount: 0.4, Side: domain.OrderSideSell},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)

	info, err := gw.GetOrderInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, info.Status)
	assert.InDelta(t, 0.6, info.RemainingAmount, 1e-9)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.4, bal.Base, 1e-9)
}

func TestStreamedTradeFillsRestingSell(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	id, err := gw.PlaceOrder(ctx, domain.OrderSideSell, 101.5, 1.0)
	require.NoError(t, err)

	// Crossing print arrives over the feed, never through a history poll.
	gw.ObserveTrade(domain.Trade{Timestamp: time.Unix(1_700_000_001, 0), Price: 102, Amount: 2, Side: domain.OrderSideBuy})

	info, err := gw.GetOrderInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClosed, info.Status)
	assert.Zero(t, info.RemainingAmount)

	// A later poll replaying the same print must not fill again.
	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 102, Amount: 2, Side: domain.OrderSideBuy},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1101.5, bal.Quote, 1e-9)
	assert.InDelta(t, 1, bal.Base, 1e-9)
}

func TestNonCrossingTradeDoesNotFill(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	id, err := gw.PlaceOrder(ctx, domain.OrderSideSell, 100, 1.0)
	require.NoError(t, err)

	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 99.9, Amount: 5, Side: domain.OrderSideBuy},
		{Timestamp: time.Unix(1_700_000_002, 0), Price: 101, Amount: 5, Side: domain.OrderSideSell},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)

	info, err := gw.GetOrderInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, info.Status)
	assert.InDelta(t, 1.0, info.RemainingAmount, 1e-9)
}

func TestRepeatedPollDoesNotDoubleFill(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	_, err := gw.PlaceOrder(ctx, domain.OrderSideBuy, 99, 1.0)
	require.NoError(t, err)
	_, err = gw.PlaceOrder(ctx, domain.OrderSideBuy, 99, 1.0)
	require.NoError(t, err)

	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 98, Amount: 0.5, Side: domain.OrderSideSell},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)
	_, err = gw.GetTradeHistory(ctx, time.Time{}) // same window again
	require.NoError(t, err)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, bal.Base, 1e-9)
}

func TestCancelReleasesReservationAndReportsClosedRace(t *testing.T) {
	gw, market := testGateway()
	ctx := context.Background()

	id, err := gw.PlaceOrder(ctx, domain.OrderSideBuy, 99, 1.0)
	require.NoError(t, err)

	ok, err := gw.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	bal, err := gw.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000, bal.Quote, 1e-9)

	// Second cancel races with the closed state.
	ok, err = gw.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Fully filled orders also report false.
	id2, err := gw.PlaceOrder(ctx, domain.OrderSideSell, 100, 1.0)
	require.NoError(t, err)
	market.trades = []domain.Trade{
		{Timestamp: time.Unix(1_700_000_001, 0), Price: 101, Amount: 2, Side: domain.OrderSideBuy},
	}
	_, err = gw.GetTradeHistory(ctx, time.Time{})
	require.NoError(t, err)

	ok, err = gw.CancelOrder(ctx, id2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownOrderLookup(t *testing.T) {
	gw, _ := testGateway()
	_, err := gw.GetOrderInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
