package kraken

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:    srv.URL,
		Key:        "test-key",
		Secret:     base64.StdEncoding.EncodeToString([]byte("test-secret")),
		Pair:       "XXBTZEUR",
		BaseAsset:  "XXBT",
		QuoteAsset: "ZEUR",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestGetMarketDepth(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Depth", r.URL.Path)
		assert.Equal(t, "XXBTZEUR", r.URL.Query().Get("pair"))
		io.WriteString(w, `{"error":[],"result":{"XXBTZEUR":{
			"asks":[["30100.5","1.25",1700000000],["30101.0","2.0",1700000001]],
			"bids":[["30099.9","0.5",1700000000]]}}}`)
	}))

	snap, err := c.GetMarketDepth(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Asks, 2)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 30100.5, snap.Asks[0].Price)
	assert.Equal(t, 1.25, snap.Asks[0].Amount)
	assert.Equal(t, 30099.9, snap.Bids[0].Price)
}

func TestGetTradeHistoryFiltersSince(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":[],"result":{"XXBTZEUR":[
			["30000.0","1.0",1700000000.1,"b","l",""],
			["30001.0","0.5",1700000100.5,"s","m",""]],
			"last":"1700000100500000000"}}`)
	}))

	since := time.Unix(1_700_000_050, 0)
	trades, err := c.GetTradeHistory(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 30001.0, trades[0].Price)
	assert.Equal(t, domain.OrderSideSell, trades[0].Side)
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	var gotKey, gotSign string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("API-Key")
		gotSign = r.Header.Get("API-Sign")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sell", r.PostForm.Get("type"))
		assert.Equal(t, "limit", r.PostForm.Get("ordertype"))
		assert.NotEmpty(t, r.PostForm.Get("nonce"))
		io.WriteString(w, `{"error":[],"result":{"txid":["OABC12-DEF34-GHI56"]}}`)
	}))

	id, err := c.PlaceOrder(context.Background(), domain.OrderSideSell, 30100.99, 0.6)
	require.NoError(t, err)
	assert.Equal(t, "OABC12-DEF34-GHI56", id)
	assert.Equal(t, "test-key", gotKey)
	assert.NotEmpty(t, gotSign)
}

func TestCancelOrderUnknownReportsClosed(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":["EOrder:Unknown order"],"result":{}}`)
	}))

	cancelled, err := c.CancelOrder(context.Background(), "OABC12-DEF34-GHI56")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGetOrderInfoMapsStatusAndRemaining(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":[],"result":{"OABC12-DEF34-GHI56":{
			"status":"open","vol":"0.6","vol_exec":"0.3","price":"30100.99",
			"descr":{"price":"30100.99"}}}}`)
	}))

	info, err := c.GetOrderInfo(context.Background(), "OABC12-DEF34-GHI56")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, info.Status)
	assert.InDelta(t, 0.3, info.RemainingAmount, 1e-9)
	assert.Equal(t, 30100.99, info.Price)
}

func TestBusinessErrorMapping(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":["EOrder:Insufficient funds"],"result":{}}`)
	}))

	_, err := c.PlaceOrder(context.Background(), domain.OrderSideBuy, 30000, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestRateLimitRetriesThenFails(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, `{"error":["EAPI:Rate limit exceeded"],"result":{}}`)
	}))

	_, err := c.GetMarketDepth(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, maxAttempts, calls)
}

func TestGetAccountBalance(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":[],"result":{"XXBT":"1.5","ZEUR":"12000.25"}}`)
	}))

	bal, err := c.GetAccountBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.5, bal.Base)
	assert.Equal(t, 12000.25, bal.Quote)
}

func TestPrivateCallWithoutCredentials(t *testing.T) {
	c, err := New(Config{Pair: "XXBTZEUR"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), domain.OrderSideBuy, 1, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
