package strategy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
	"github.com/alanyoungcy/trapbot/internal/madness"
	"github.com/alanyoungcy/trapbot/internal/pricing"
)

type placedOrder struct {
	ID     string
	Side   domain.OrderSide
	Price  float64
	Amount float64
}

// fakeGateway is a scripted in-memory gateway for white-box reconciler tests.
type fakeGateway struct {
	book       domain.MarketSnapshot
	bookErr    error
	trades     []domain.Trade
	now        time.Time
	timeErr    error
	orders     map[string]domain.OrderInfo
	cancelOK   map[string]bool // missing key means cancel succeeds
	balance    domain.Balance
	balanceErr error
	placeErrs  []error // consumed FIFO by PlaceOrder

	placed    []placedOrder
	cancelled []string
	seq       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		book: domain.MarketSnapshot{
			Pair: "XBT/EUR",
			Bids: []domain.PriceLevel{{Price: 100, Amount: 5}},
			Asks: []domain.PriceLevel{{Price: 101, Amount: 5}},
		},
		now:      time.Unix(1_700_000_000, 0),
		orders:   make(map[string]domain.OrderInfo),
		cancelOK: make(map[string]bool),
		balance:  domain.Balance{Base: 10, Quote: 10_000},
	}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) GetMarketDepth(context.Context) (domain.MarketSnapshot, error) {
	return g.book, g.bookErr
}

func (g *fakeGateway) GetTradeHistory(context.Context, time.Time) ([]domain.Trade, error) {
	return g.trades, nil
}

func (g *fakeGateway) GetServerTime(context.Context) (time.Time, error) {
	return g.now, g.timeErr
}

func (g *fakeGateway) GetOrderInfo(_ context.Context, id string) (domain.OrderInfo, error) {
	info, ok := g.orders[id]
	if !ok {
		return domain.OrderInfo{}, domain.ErrOrderNotFound
	}
	return info, nil
}

func (g *fakeGateway) PlaceOrder(_ context.Context, side domain.OrderSide, price, amount float64) (string, error) {
	if len(g.placeErrs) > 0 {
		err := g.placeErrs[0]
		g.placeErrs = g.placeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	g.seq++
	id := fmt.Sprintf("ord-%d", g.seq)
	g.placed = append(g.placed, placedOrder{ID: id, Side: side, Price: price, Amount: amount})
	g.orders[id] = domain.OrderInfo{ID: id, Status: domain.OrderStatusOpen, Price: price, RemainingAmount: amount}
	return id, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, id string) (bool, error) {
	g.cancelled = append(g.cancelled, id)
	if ok, scripted := g.cancelOK[id]; scripted && !ok {
		return false, nil
	}
	delete(g.orders, id)
	return true, nil
}

func (g *fakeGateway) GetAccountBalance(context.Context) (domain.Balance, error) {
	return g.balance, g.balanceErr
}

func testReconciler(gw domain.Gateway) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	est := madness.Estimator{MinTrades: 2, MaxTrades: 10, MinAvgVolume: 1, MaxAvgVolume: 5}
	policy := pricing.Policy{
		MinVolume:     1,
		MaxVolume:     5,
		MinInterval:   2 * time.Second,
		MaxInterval:   10 * time.Second,
		MinDifference: 0.5,
		MinPriceDelta: 0.05,
		Tick:          0.01,
	}
	cfg := Config{Exchange: "fake", Pair: "XBT/EUR", OperativeAmount: 1.0, Window: 90 * time.Second}
	return New(gw, est, policy, cfg, logger)
}

func TestCheckPlacesSellForFreeCapacity(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	// 0.4 of the operative amount is tied up in a resting buy.
	r.buy = domain.OrderState{ID: "buy-1", Amount: 0.4, Price: 99}
	gw.orders["buy-1"] = domain.OrderInfo{ID: "buy-1", Status: domain.OrderStatusOpen, Price: 99, RemainingAmount: 0.4}

	interval, err := r.Check(context.Background())
	require.NoError(t, err)

	// Empty tape: calm market, longest interval.
	assert.Equal(t, 10*time.Second, interval)

	require.NotEmpty(t, gw.placed)
	first := gw.placed[0]
	assert.Equal(t, domain.OrderSideSell, first.Side)
	assert.InDelta(t, 0.6, first.Amount, 1e-9)
	assert.InDelta(t, 100.99, first.Price, 1e-9) // one tick under the only ask

	sell, _ := r.Orders()
	assert.Equal(t, first.ID, sell.ID)
	assert.InDelta(t, 0.6, sell.Amount, 1e-9)
}

func TestCheckTreatsAmountMismatchAsPartialFill(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	r.sell = domain.OrderState{ID: "sell-1", Amount: 0.6, Price: 100.99}
	gw.orders["sell-1"] = domain.OrderInfo{
		ID:              "sell-1",
		Status:          domain.OrderStatusOpen,
		Price:           100.99,
		RemainingAmount: 0.3,
	}

	_, err := r.Check(context.Background())
	require.NoError(t, err)

	execSell, _ := r.ExecutedPrices()
	assert.True(t, execSell.Valid)
	assert.Equal(t, 100.99, execSell.Price)

	// The update is cancel+recreate, not a fresh independent placement.
	assert.Contains(t, gw.cancelled, "sell-1")
	require.NotEmpty(t, gw.placed)
	moved := gw.placed[0]
	assert.Equal(t, domain.OrderSideSell, moved.Side)
	assert.InDelta(t, 0.3, moved.Amount, 1e-9)

	sell, _ := r.Orders()
	assert.Equal(t, moved.ID, sell.ID)
	assert.InDelta(t, 0.3, sell.Amount, 1e-9)
}

func TestCheckAbandonsUpdateWhenCancelReportsClosed(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	// Resting sell priced away from the current suggestion so an update is
	// attempted, but the cancel reports the order already closed.
	r.sell = domain.OrderState{ID: "sell-1", Amount: 0.6, Price: 105}
	gw.orders["sell-1"] = domain.OrderInfo{
		ID:              "sell-1",
		Status:          domain.OrderStatusOpen,
		Price:           105,
		RemainingAmount: 0.6,
	}
	gw.cancelOK["sell-1"] = false

	_, err := r.Check(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gw.cancelled, "sell-1")
	// No replacement was placed for the sell; the buy side may still place.
	for _, p := range gw.placed {
		assert.NotEqual(t, domain.OrderSideSell, p.Side)
	}

	sell, _ := r.Orders()
	assert.Equal(t, "sell-1", sell.ID)
	assert.Equal(t, 105.0, sell.Price)
	assert.InDelta(t, 0.6, sell.Amount, 1e-9)
}

func TestCheckClearsStateWhenOrderCloses(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	r.sell = domain.OrderState{ID: "sell-1", Amount: 0.6, Price: 100.99}
	gw.orders["sell-1"] = domain.OrderInfo{
		ID:     "sell-1",
		Status: domain.OrderStatusClosed,
		Price:  100.99,
	}

	_, err := r.Check(context.Background())
	require.NoError(t, err)

	execSell, _ := r.ExecutedPrices()
	assert.True(t, execSell.Valid)
	assert.Equal(t, 100.99, execSell.Price)

	// The sell side is cleared this cycle (a replacement would only go out on
	// a later cycle); the freed capacity moves to a buy anchored under the
	// executed sell price.
	sell, buy := r.Orders()
	assert.False(t, sell.Live())
	assert.True(t, buy.Live())
	assert.InDelta(t, 1.0, buy.Amount, 1e-9)
	assert.Less(t, buy.Price, execSell.Price-0.5+1e-9)
}

func TestCheckAmountConservation(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	for i := 0; i < 5; i++ {
		_, err := r.Check(context.Background())
		require.NoError(t, err)

		sell, buy := r.Orders()
		assert.LessOrEqual(t, sell.Amount+buy.Amount, r.cfg.OperativeAmount+1e-9,
			"cycle %d: resting amounts exceed operative amount", i)
	}
}

func TestCheckUnknownStatusIsFatal(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	r.sell = domain.OrderState{ID: "sell-1", Amount: 0.6, Price: 100.99}
	gw.orders["sell-1"] = domain.OrderInfo{ID: "sell-1", Status: "limbo"}

	_, err := r.Check(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnknownOrderStatus)
}

func TestPlaceRetriesOnceWithCorrectedAmount(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	gw.placeErrs = []error{domain.ErrInsufficientBalance}
	gw.balance = domain.Balance{Base: 0.5, Quote: 10_000}

	_, err := r.Check(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, gw.placed)
	assert.Equal(t, domain.OrderSideSell, gw.placed[0].Side)
	assert.InDelta(t, 0.5, gw.placed[0].Amount, 1e-9)
}

func TestPlaceOtherBusinessErrorIsFatal(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	gw.placeErrs = []error{domain.ErrInvalidOrder}

	_, err := r.Check(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestCheckSkipsCycleOnThinBook(t *testing.T) {
	gw := newFakeGateway()
	gw.book = domain.MarketSnapshot{Pair: "XBT/EUR"}
	r := testReconciler(gw)

	interval, err := r.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, interval)
	assert.Empty(t, gw.placed)
}

func TestCheckUntouchedOrderNotChurned(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)

	// Resting sell exactly at the suggestion with full capacity working.
	r.sell = domain.OrderState{ID: "sell-1", Amount: 1.0, Price: 100.99}
	gw.orders["sell-1"] = domain.OrderInfo{
		ID:              "sell-1",
		Status:          domain.OrderStatusOpen,
		Price:           100.99,
		RemainingAmount: 1.0,
	}

	_, err := r.Check(context.Background())
	require.NoError(t, err)

	assert.Empty(t, gw.cancelled)
	sell, _ := r.Orders()
	assert.Equal(t, "sell-1", sell.ID)
}
