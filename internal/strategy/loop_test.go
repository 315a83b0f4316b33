package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoopKillStopsBetweenCycles(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)
	// Thin book: cycles are cheap no-ops with the max interval.
	gw.book = domain.MarketSnapshot{Pair: "XBT/EUR"}
	r.policy.MaxInterval = 5 * time.Millisecond

	loop := NewLoop(r, discardLogger())

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	loop.Kill()
	loop.Kill() // safe to call twice

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after Kill")
	}
}

func TestLoopContextCancel(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)
	gw.book = domain.MarketSnapshot{Pair: "XBT/EUR"}
	r.policy.MaxInterval = 5 * time.Millisecond

	loop := NewLoop(r, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLoopFailsFastOnCycleError(t *testing.T) {
	gw := newFakeGateway()
	r := testReconciler(gw)
	sentinel := errors.New("exchange down")
	gw.timeErr = sentinel

	loop := NewLoop(r, discardLogger())

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}
