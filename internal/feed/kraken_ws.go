package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// TradeHandler is called for each public trade received on the stream.
type TradeHandler func(trade domain.Trade)

// KrakenWSFeed connects to the Kraken public WebSocket, subscribes to the
// trade channel for one pair and invokes the handler per trade. It reconnects
// with a fixed backoff on disconnect.
type KrakenWSFeed struct {
	wsURL     string
	pair      string
	onTrade   TradeHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewKrakenWSFeed creates a feed for the given WS pair name, e.g. "XBT/EUR".
func NewKrakenWSFeed(wsURL, pair string, onTrade TradeHandler, logger *slog.Logger) *KrakenWSFeed {
	return &KrakenWSFeed{
		wsURL:   wsURL,
		pair:    pair,
		onTrade: onTrade,
		logger:  logger.With(slog.String("component", "kraken_ws_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and consumes trades until ctx is cancelled or Close is called.
func (f *KrakenWSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("kraken ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *KrakenWSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	sub := map[string]any{
		"event": "subscribe",
		"pair":  []string{f.pair},
		"subscription": map[string]string{
			"name": "trade",
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("kraken ws subscribed", slog.String("pair", f.pair))

	// Unblock ReadMessage when the context or the feed is shut down.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-readerDone:
			return
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("read: %w", err)
		}
		f.handleMessage(data)
	}
}

// handleMessage decodes one frame. Trade frames are arrays of the shape
// [channelID, [[price, volume, time, side, orderType, misc], ...], "trade", pair];
// event frames (heartbeat, subscription status) are objects and are skipped.
func (f *KrakenWSFeed) handleMessage(data []byte) {
	if len(data) == 0 || data[0] != '[' {
		return
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 4 {
		return
	}
	var channel string
	if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "trade" {
		return
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(frame[1], &rows); err != nil {
		f.logger.Debug("unparseable trade frame", slog.Int("payload_len", len(data)))
		return
	}
	for _, row := range rows {
		trade, err := parseStreamTrade(row)
		if err != nil {
			f.logger.Debug("skipping trade row", slog.String("error", err.Error()))
			continue
		}
		if f.onTrade != nil {
			f.onTrade(trade)
		}
	}
}

func parseStreamTrade(row []json.RawMessage) (domain.Trade, error) {
	if len(row) < 4 {
		return domain.Trade{}, fmt.Errorf("short trade row")
	}
	var priceStr, volStr, timeStr, sideStr string
	for i, dst := range []*string{&priceStr, &volStr, &timeStr, &sideStr} {
		if err := json.Unmarshal(row[i], dst); err != nil {
			return domain.Trade{}, fmt.Errorf("field %d: %w", i, err)
		}
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("price: %w", err)
	}
	vol, err := strconv.ParseFloat(volStr, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("volume: %w", err)
	}
	ts, err := strconv.ParseFloat(timeStr, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("time: %w", err)
	}

	side := domain.OrderSideBuy
	if sideStr == "s" {
		side = domain.OrderSideSell
	}

	sec := int64(ts)
	return domain.Trade{
		Timestamp: time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC(),
		Price:     price,
		Amount:    vol,
		Side:      side,
	}, nil
}

// Close stops the feed.
func (f *KrakenWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
