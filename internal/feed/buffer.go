package feed

import (
	"sync"
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// TradeBuffer accumulates streamed trades in memory so the trading loop can
// read recent activity without a REST round trip per cycle. The buffer is
// bounded; the oldest trades are dropped once capacity is reached.
type TradeBuffer struct {
	mu       sync.Mutex
	trades   []domain.Trade
	capacity int
	lastSeen time.Time
}

// NewTradeBuffer creates a buffer holding at most capacity trades.
func NewTradeBuffer(capacity int) *TradeBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &TradeBuffer{capacity: capacity}
}

// Add appends a trade, evicting the oldest entries beyond capacity.
func (b *TradeBuffer) Add(t domain.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trades = append(b.trades, t)
	if len(b.trades) > b.capacity {
		overflow := len(b.trades) - b.capacity
		b.trades = append(b.trades[:0], b.trades[overflow:]...)
	}
	if t.Timestamp.After(b.lastSeen) {
		b.lastSeen = t.Timestamp
	}
}

// Recent returns a copy of the trades at or after since, in arrival order.
func (b *TradeBuffer) Recent(since time.Time) []domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.Trade, 0, len(b.trades))
	for _, t := range b.trades {
		if t.Timestamp.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Fresh reports whether the stream has delivered a trade within maxAge of
// now. A stale buffer means the feed is down and callers should fall back
// to polling.
func (b *TradeBuffer) Fresh(now time.Time, maxAge time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.lastSeen.IsZero() && now.Sub(b.lastSeen) <= maxAge
}

// Len returns the current number of buffered trades.
func (b *TradeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.trades)
}
