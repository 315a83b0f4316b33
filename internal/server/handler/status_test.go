package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

type fakeStateCache struct {
	state domain.BotState
	err   error
}

func (c *fakeStateCache) SetState(context.Context, domain.BotState) error { return nil }

func (c *fakeStateCache) GetState(context.Context, string) (domain.BotState, error) {
	return c.state, c.err
}

func TestGetStatusRunning(t *testing.T) {
	cache := &fakeStateCache{state: domain.BotState{Pair: "XBT/EUR", Madness: 0.5}}
	h := NewStatusHandler(cache, "trade", "XBT/EUR", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "trade", body["mode"])
}

func TestGetStatusNotRunning(t *testing.T) {
	cache := &fakeStateCache{err: domain.ErrNotFound}
	h := NewStatusHandler(cache, "trade", "XBT/EUR", slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["running"])
	_, hasState := body["state"]
	assert.False(t, hasState)
}
