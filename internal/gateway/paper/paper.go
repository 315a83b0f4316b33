// Package paper provides a simulated exchange that fills resting limit
// orders against real market trades. Market data is served by a delegate
// gateway (or injected directly in tests) while order placement, matching
// and balances live entirely in memory, so a strategy can run unchanged
// against live data without risking funds.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// MarketData is the read-only slice of the gateway contract the simulator
// delegates to for depth, trades and time.
type MarketData interface {
	GetMarketDepth(ctx context.Context) (domain.MarketSnapshot, error)
	GetTradeHistory(ctx context.Context, since time.Time) ([]domain.Trade, error)
	GetServerTime(ctx context.Context) (time.Time, error)
}

type paperOrder struct {
	id        string
	side      domain.OrderSide
	price     float64
	amount    float64
	remaining float64
	status    domain.OrderStatus
	placedAt  time.Time
}

// Gateway is an in-memory exchange. A resting sell fills when a buy-side
// market trade prints at or above its price; a resting buy fills when a
// sell-side trade prints at or below. Fills debit and credit the simulated
// balance including reserved funds.
type Gateway struct {
	market MarketData
	logger *slog.Logger

	mu        sync.Mutex
	orders    map[string]*paperOrder
	balance   domain.Balance
	lastMatch time.Time
}

// New creates a paper gateway backed by the given market data source and
// seeded with the given starting balance.
func New(market MarketData, starting domain.Balance, logger *slog.Logger) *Gateway {
	return &Gateway{
		market:  market,
		logger:  logger.With(slog.String("component", "paper_gateway")),
		orders:  make(map[string]*paperOrder),
		balance: starting,
	}
}

// Name implements domain.Gateway.
func (g *Gateway) Name() string { return "paper" }

// GetServerTime implements domain.Gateway.
func (g *Gateway) GetServerTime(ctx context.Context) (time.Time, error) {
	return g.market.GetServerTime(ctx)
}

// GetMarketDepth implements domain.Gateway.
func (g *Gateway) GetMarketDepth(ctx context.Context) (domain.MarketSnapshot, error) {
	return g.market.GetMarketDepth(ctx)
}

// GetTradeHistory implements domain.Gateway. Fetched trades also drive the
// matching engine: every poll advances the simulation.
func (g *Gateway) GetTradeHistory(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	trades, err := g.market.GetTradeHistory(ctx, since)
	if err != nil {
		return nil, err
	}
	g.match(trades)
	return trades, nil
}

// PlaceOrder implements domain.Gateway. Funds are reserved at placement:
// base for sells, quote at the limit price for buys.
func (g *Gateway) PlaceOrder(_ context.Context, side domain.OrderSide, price, amount float64) (string, error) {
	if price <= 0 || amount <= 0 {
		return "", fmt.Errorf("paper: price=%v amount=%v: %w", price, amount, domain.ErrInvalidOrder)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch side {
	case domain.OrderSideSell:
		if g.balance.Base < amount {
			return "", fmt.Errorf("paper: need %v base, have %v: %w", amount, g.balance.Base, domain.ErrInsufficientBalance)
		}
		g.balance.Base -= amount
	case domain.OrderSideBuy:
		cost := price * amount
		if g.balance.Quote < cost {
			return "", fmt.Errorf("paper: need %v quote, have %v: %w", cost, g.balance.Quote, domain.ErrInsufficientBalance)
		}
		g.balance.Quote -= cost
	default:
		return "", fmt.Errorf("paper: side %q: %w", side, domain.ErrInvalidOrder)
	}

	id := uuid.NewString()
	g.orders[id] = &paperOrder{
		id:        id,
		side:      side,
		price:     price,
		amount:    amount,
		remaining: amount,
		status:    domain.OrderStatusOpen,
		placedAt:  time.Now().UTC(),
	}
	g.logger.Info("order placed",
		slog.String("order_id", id),
		slog.String("side", string(side)),
		slog.Float64("price", price),
		slog.Float64("amount", amount),
	)
	return id, nil
}

// CancelOrder implements domain.Gateway. Cancelling an order that already
// closed (or was never placed) reports false with no error.
func (g *Gateway) CancelOrder(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[id]
	if !ok || o.status != domain.OrderStatusOpen {
		return false, nil
	}

	// Release the reserved funds for the unfilled remainder.
	switch o.side {
	case domain.OrderSideSell:
		g.balance.Base += o.remaining
	case domain.OrderSideBuy:
		g.balance.Quote += o.price * o.remaining
	}
	o.status = domain.OrderStatusCancelled
	return true, nil
}

// GetOrderInfo implements domain.Gateway.
func (g *Gateway) GetOrderInfo(_ context.Context, id string) (domain.OrderInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[id]
	if !ok {
		return domain.OrderInfo{}, fmt.Errorf("paper: order %s: %w", id, domain.ErrOrderNotFound)
	}
	return domain.OrderInfo{
		ID:              o.id,
		Status:          o.status,
		Price:           o.price,
		RemainingAmount: o.remaining,
	}, nil
}

// GetAccountBalance implements domain.Gateway. Reported balances exclude
// funds reserved by open orders, matching how exchanges report free margin.
func (g *Gateway) GetAccountBalance(context.Context) (domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

// ObserveTrade advances the matching engine with one streamed trade. Callers
// wiring a live feed must use it, because a fresh stream buffer answers the
// trade-history polls that otherwise drive the simulation.
func (g *Gateway) ObserveTrade(t domain.Trade) {
	g.match([]domain.Trade{t})
}

// match replays market trades against resting orders. Trades already seen
// (at or before the previous high-water mark) are skipped so repeated polls
// of an overlapping window do not double-fill.
func (g *Gateway) match(trades []domain.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range trades {
		if !t.Timestamp.After(g.lastMatch) {
			continue
		}
		remaining := t.Amount
		for _, o := range g.orders {
			if o.status != domain.OrderStatusOpen || remaining <= 0 {
				continue
			}
			if !crosses(o, t) {
				continue
			}
			fill := min(remaining, o.remaining)
			remaining -= fill
			g.fill(o, fill)
		}
	}
	if n := len(trades); n > 0 {
		last := trades[n-1].Timestamp
		if last.After(g.lastMatch) {
			g.lastMatch = last
		}
	}
}

// crosses reports whether a market trade would execute against the resting
// order: an aggressive buy lifts sells at or below its price, an aggressive
// sell hits buys at or above.
func crosses(o *paperOrder, t domain.Trade) bool {
	switch o.side {
	case domain.OrderSideSell:
		return t.Side == domain.OrderSideBuy && t.Price >= o.price
	case domain.OrderSideBuy:
		return t.Side == domain.OrderSideSell && t.Price <= o.price
	}
	return false
}

func (g *Gateway) fill(o *paperOrder, amount float64) {
	o.remaining -= amount
	if o.remaining <= 1e-12 {
		o.remaining = 0
		o.status = domain.OrderStatusClosed
	}

	switch o.side {
	case domain.OrderSideSell:
		g.balance.Quote += o.price * amount
	case domain.OrderSideBuy:
		g.balance.Base += amount
	}

	g.logger.Info("order filled",
		slog.String("order_id", o.id),
		slog.String("side", string(o.side)),
		slog.Float64("price", o.price),
		slog.Float64("amount", amount),
		slog.Float64("remaining", o.remaining),
	)
}
