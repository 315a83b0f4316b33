package domain

import (
	"context"
	"time"
)

// Gateway is the exchange collaborator. Implementations own authentication,
// wire formats, and bounded retry-with-backoff; from the strategy's point of
// view every call is all-or-nothing: it either returns a parsed result or an
// error after the gateway's own retry budget is exhausted.
type Gateway interface {
	// Name identifies the exchange (e.g. "kraken", "paper").
	Name() string
	// GetMarketDepth returns the current order book, best-first on both sides.
	GetMarketDepth(ctx context.Context) (MarketSnapshot, error)
	// GetTradeHistory returns public trades at or after since.
	GetTradeHistory(ctx context.Context, since time.Time) ([]Trade, error)
	// GetServerTime returns the exchange-authoritative clock, used instead of
	// the local clock to avoid skew in the activity window.
	GetServerTime(ctx context.Context) (time.Time, error)
	// GetOrderInfo returns the server-side view of an order.
	GetOrderInfo(ctx context.Context, id string) (OrderInfo, error)
	// PlaceOrder submits a limit order and returns its id. Business failures
	// (insufficient balance, exchange limits) map to domain sentinel errors.
	PlaceOrder(ctx context.Context, side OrderSide, price, amount float64) (string, error)
	// CancelOrder cancels an order. A false result means the order already
	// closed server-side; that is not an error.
	CancelOrder(ctx context.Context, id string) (bool, error)
	// GetAccountBalance returns the available base and quote amounts.
	GetAccountBalance(ctx context.Context) (Balance, error)
}
