package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

const (
	defaultBaseURL = "https://api.kraken.com"
	defaultDepth   = 100

	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// Config holds the connection and market parameters for a Kraken session.
type Config struct {
	BaseURL string
	Key     string
	Secret  string // base64-encoded API secret

	// Pair is the Kraken pair name used on the wire, e.g. "XXBTZEUR".
	Pair string
	// BaseAsset and QuoteAsset are the Kraken balance ledger codes for the
	// pair, e.g. "XXBT" and "ZEUR".
	BaseAsset  string
	QuoteAsset string

	DepthCount int
}

// Client talks to the Kraken REST API and adapts it to the exchange gateway
// contract. Private calls are signed with the account key pair; public market
// data needs no credentials.
type Client struct {
	cfg        Config
	secret     []byte
	httpClient *http.Client
	logger     *slog.Logger
	nonce      atomic.Int64
}

// New creates a Kraken client. The secret must be the base64 string issued by
// Kraken; it is decoded once up front so signing failures surface early.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DepthCount <= 0 {
		cfg.DepthCount = defaultDepth
	}
	if cfg.Pair == "" {
		return nil, fmt.Errorf("kraken: pair is required")
	}

	var secret []byte
	if cfg.Secret != "" {
		var err error
		secret, err = base64.StdEncoding.DecodeString(cfg.Secret)
		if err != nil {
			return nil, fmt.Errorf("kraken: decode api secret: %w", err)
		}
	}

	c := &Client{
		cfg:    cfg,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "kraken_client")),
	}
	c.nonce.Store(time.Now().UnixMilli())
	return c, nil
}

// Name implements domain.Gateway.
func (c *Client) Name() string { return "kraken" }

// GetServerTime implements domain.Gateway.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	raw, err := c.public(ctx, "/0/public/Time", nil)
	if err != nil {
		return time.Time{}, err
	}
	var res serverTimeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return time.Time{}, fmt.Errorf("kraken: decode server time: %w", err)
	}
	return time.Unix(res.UnixTime, 0).UTC(), nil
}

// GetMarketDepth implements domain.Gateway. Levels come back best-first on
// both sides, which is the order Kraken serves them in.
func (c *Client) GetMarketDepth(ctx context.Context) (domain.MarketSnapshot, error) {
	params := url.Values{
		"pair":  {c.cfg.Pair},
		"count": {strconv.Itoa(c.cfg.DepthCount)},
	}
	raw, err := c.public(ctx, "/0/public/Depth", params)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	var res depthResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("kraken: decode depth: %w", err)
	}
	book, ok := res[c.cfg.Pair]
	if !ok {
		// Kraken sometimes keys the result by an alternate pair alias.
		for _, b := range res {
			book = b
			ok = true
			break
		}
	}
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("kraken: depth result missing pair %s", c.cfg.Pair)
	}

	snap := domain.MarketSnapshot{
		Pair:      c.cfg.Pair,
		Bids:      make([]domain.PriceLevel, 0, len(book.Bids)),
		Asks:      make([]domain.PriceLevel, 0, len(book.Asks)),
		Timestamp: time.Now().UTC(),
	}
	for _, lvl := range book.Bids {
		pl, err := parseLevel(lvl)
		if err != nil {
			return domain.MarketSnapshot{}, err
		}
		snap.Bids = append(snap.Bids, pl)
	}
	for _, lvl := range book.Asks {
		pl, err := parseLevel(lvl)
		if err != nil {
			return domain.MarketSnapshot{}, err
		}
		snap.Asks = append(snap.Asks, pl)
	}
	return snap, nil
}

// GetTradeHistory implements domain.Gateway. Kraken's since cursor is in
// nanoseconds; entries older than since are filtered out locally as well
// because the cursor is advisory.
func (c *Client) GetTradeHistory(ctx context.Context, since time.Time) ([]domain.Trade, error) {
	params := url.Values{"pair": {c.cfg.Pair}}
	if !since.IsZero() {
		params.Set("since", strconv.FormatInt(since.UnixNano(), 10))
	}
	raw, err := c.public(ctx, "/0/public/Trades", params)
	if err != nil {
		return nil, err
	}

	var res map[string]json.RawMessage
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("kraken: decode trades: %w", err)
	}

	var rows [][]json.RawMessage
	for key, msg := range res {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(msg, &rows); err != nil {
			return nil, fmt.Errorf("kraken: decode trades for %s: %w", key, err)
		}
		break
	}

	trades := make([]domain.Trade, 0, len(rows))
	for _, row := range rows {
		t, err := parseTrade(row)
		if err != nil {
			return nil, err
		}
		if !since.IsZero() && t.Timestamp.Before(since) {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// PlaceOrder implements domain.Gateway.
func (c *Client) PlaceOrder(ctx context.Context, side domain.OrderSide, price, amount float64) (string, error) {
	form := url.Values{
		"pair":      {c.cfg.Pair},
		"type":      {string(side)},
		"ordertype": {"limit"},
		"price":     {formatFloat(price)},
		"volume":    {formatFloat(amount)},
	}
	raw, err := c.private(ctx, "/0/private/AddOrder", form)
	if err != nil {
		return "", err
	}
	var res addOrderResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("kraken: decode add order: %w", err)
	}
	if len(res.TxID) == 0 {
		return "", fmt.Errorf("kraken: add order returned no txid")
	}
	c.logger.InfoContext(ctx, "order placed",
		slog.String("txid", res.TxID[0]),
		slog.String("side", string(side)),
		slog.Float64("price", price),
		slog.Float64("amount", amount),
	)
	return res.TxID[0], nil
}

// CancelOrder implements domain.Gateway. An order that is already closed or
// unknown to the exchange reports false with no error so the caller can react
// to the race instead of failing on it.
func (c *Client) CancelOrder(ctx context.Context, id string) (bool, error) {
	form := url.Values{"txid": {id}}
	raw, err := c.private(ctx, "/0/private/CancelOrder", form)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	var res cancelOrderResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("kraken: decode cancel order: %w", err)
	}
	return res.Count > 0, nil
}

// GetOrderInfo implements domain.Gateway.
func (c *Client) GetOrderInfo(ctx context.Context, id string) (domain.OrderInfo, error) {
	form := url.Values{"txid": {id}}
	raw, err := c.private(ctx, "/0/private/QueryOrders", form)
	if err != nil {
		return domain.OrderInfo{}, err
	}

	var res map[string]orderInfo
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.OrderInfo{}, fmt.Errorf("kraken: decode query orders: %w", err)
	}
	info, ok := res[id]
	if !ok {
		return domain.OrderInfo{}, fmt.Errorf("kraken: order %s: %w", id, domain.ErrOrderNotFound)
	}

	vol, _ := info.Vol.Float64()
	volExec, _ := info.VolExec.Float64()
	limit, _ := info.Descr.Price.Float64()

	return domain.OrderInfo{
		ID:              id,
		Status:          mapStatus(info.Status),
		Price:           limit,
		RemainingAmount: vol - volExec,
	}, nil
}

// GetAccountBalance implements domain.Gateway. Assets absent from the ledger
// read as zero.
func (c *Client) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	raw, err := c.private(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return domain.Balance{}, err
	}
	var res map[string]json.Number
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.Balance{}, fmt.Errorf("kraken: decode balance: %w", err)
	}
	base, _ := res[c.cfg.BaseAsset].Float64()
	quote, _ := res[c.cfg.QuoteAsset].Float64()
	return domain.Balance{Base: base, Quote: quote}, nil
}

func (c *Client) public(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}

func (c *Client) private(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	if c.cfg.Key == "" || len(c.secret) == 0 {
		return nil, fmt.Errorf("kraken: private call %s: %w", path, domain.ErrUnauthorized)
	}
	return c.do(ctx, func() (*http.Request, error) {
		nonce := strconv.FormatInt(c.nonce.Add(1), 10)
		form.Set("nonce", nonce)
		body := form.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("API-Key", c.cfg.Key)
		req.Header.Set("API-Sign", c.sign(path, nonce, body))
		return req, nil
	})
}

// sign computes the Kraken request signature:
// HMAC-SHA512(path + SHA256(nonce + postdata), secret), base64-encoded.
func (c *Client) sign(path, nonce, body string) string {
	inner := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(path))
	mac.Write(inner[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// do executes a request with bounded retries. Transport failures, 5xx
// responses and rate limits are retried with doubling backoff; business
// errors are mapped to domain sentinels and returned immediately.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (json.RawMessage, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.logger.WarnContext(ctx, "retrying request",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		result, err := c.roundTrip(req)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("kraken: giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) roundTrip(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kraken: %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("kraken: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("kraken: %s: http %d", req.URL.Path, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("kraken: %s: %w", req.URL.Path, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kraken: %s: http %d: %s", req.URL.Path, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("kraken: decode envelope: %w", err)
	}
	if len(env.Error) > 0 {
		return nil, mapBusinessError(req.URL.Path, env.Error)
	}
	return env.Result, nil
}

// mapBusinessError translates Kraken error codes to domain sentinels.
func mapBusinessError(path string, codes []string) error {
	joined := strings.Join(codes, "; ")
	for _, code := range codes {
		switch {
		case strings.HasPrefix(code, "EOrder:Insufficient funds"):
			return fmt.Errorf("kraken: %s: %s: %w", path, joined, domain.ErrInsufficientBalance)
		case strings.HasPrefix(code, "EOrder:Unknown order"):
			return fmt.Errorf("kraken: %s: %s: %w", path, joined, domain.ErrOrderNotFound)
		case strings.HasPrefix(code, "EOrder:Invalid"), strings.HasPrefix(code, "EGeneral:Invalid arguments"):
			return fmt.Errorf("kraken: %s: %s: %w", path, joined, domain.ErrInvalidOrder)
		case strings.HasPrefix(code, "EAPI:Rate limit"), strings.HasPrefix(code, "EOrder:Rate limit"):
			return fmt.Errorf("kraken: %s: %s: %w", path, joined, domain.ErrRateLimited)
		case strings.HasPrefix(code, "EAPI:Invalid key"), strings.HasPrefix(code, "EAPI:Invalid signature"),
			strings.HasPrefix(code, "EAPI:Invalid nonce"), strings.HasPrefix(code, "EGeneral:Permission denied"):
			return fmt.Errorf("kraken: %s: %s: %w", path, joined, domain.ErrUnauthorized)
		case strings.HasPrefix(code, "EService:"):
			return fmt.Errorf("kraken: %s: service unavailable: %s", path, joined)
		}
	}
	return fmt.Errorf("kraken: %s: %s", path, joined)
}

// retryable reports whether the call may succeed on a later attempt.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	if errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrInvalidOrder) ||
		errors.Is(err, domain.ErrUnauthorized) {
		return false
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return true
	}
	// Transport errors and 5xx/service responses fall through here.
	return strings.Contains(err.Error(), "http 5") ||
		strings.Contains(err.Error(), "service unavailable") ||
		strings.Contains(err.Error(), "connection")
}

func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "pending":
		return domain.OrderStatusPending
	case "open":
		return domain.OrderStatusOpen
	case "closed":
		return domain.OrderStatusClosed
	case "canceled", "expired":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatus(s)
	}
}

func parseLevel(lvl [3]json.Number) (domain.PriceLevel, error) {
	price, err := lvl[0].Float64()
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("kraken: parse level price: %w", err)
	}
	amount, err := lvl[1].Float64()
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("kraken: parse level volume: %w", err)
	}
	return domain.PriceLevel{Price: price, Amount: amount}, nil
}

func parseTrade(row []json.RawMessage) (domain.Trade, error) {
	if len(row) < 4 {
		return domain.Trade{}, fmt.Errorf("kraken: short trade row")
	}
	var priceStr, volStr, sideStr string
	var ts float64
	if err := json.Unmarshal(row[0], &priceStr); err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade price: %w", err)
	}
	if err := json.Unmarshal(row[1], &volStr); err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade volume: %w", err)
	}
	if err := json.Unmarshal(row[2], &ts); err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade time: %w", err)
	}
	if err := json.Unmarshal(row[3], &sideStr); err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade side: %w", err)
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade price: %w", err)
	}
	vol, err := strconv.ParseFloat(volStr, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("kraken: parse trade volume: %w", err)
	}

	side := domain.OrderSideBuy
	if sideStr == "s" {
		side = domain.OrderSideSell
	}

	sec, frac := int64(ts), ts-float64(int64(ts))
	return domain.Trade{
		Timestamp: time.Unix(sec, int64(frac*1e9)).UTC(),
		Price:     price,
		Amount:    vol,
		Side:      side,
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
