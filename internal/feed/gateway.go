package feed

import (
	"context"
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// BufferedHistoryGateway wraps a gateway and serves trade history from the
// streaming buffer whenever the stream is fresh, falling back to the REST
// endpoint when it is not. All other calls pass through unchanged.
type BufferedHistoryGateway struct {
	domain.Gateway
	buffer *TradeBuffer
	maxAge time.Duration
}

// NewBufferedHistoryGateway wraps gw. maxAge bounds how stale the stream may
// be before trade history falls back to the underlying gateway.
func NewBufferedHistoryGateway(gw domain.Gateway, buffer *TradeBuffer, maxAge time.Duration) *BufferedHistoryGateway {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &BufferedHistoryGateway{Gateway: gw, buffer: buffer, maxAge: maxAge}
}

// GetTradeHistory serves from the buffer when fresh.
func (g *BufferedHistoryGateway) GetTradeHistory(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	if g.buffer.Fresh(time.Now(), g.maxAge) {
		return g.buffer.Recent(since), nil
	}
	return g.Gateway.GetTradeHistory(ctx, since)
}
