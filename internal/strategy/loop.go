package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop drives the reconciler: one Check per cycle, then sleep for the
// activity-scaled interval. The loop is single-threaded and cooperative: a
// kill request is observed only between cycles, never mid-Check.
type Loop struct {
	rec      *Reconciler
	logger   *slog.Logger
	kill     chan struct{}
	killOnce sync.Once
}

// NewLoop creates a Loop around the given reconciler.
func NewLoop(rec *Reconciler, logger *slog.Logger) *Loop {
	return &Loop{
		rec:    rec,
		logger: logger.With(slog.String("component", "trading_loop")),
		kill:   make(chan struct{}),
	}
}

// Run executes cycles until the context is cancelled, Kill is called, or a
// cycle fails. A failed cycle stops the loop and returns the error: there is
// no automatic restart near real money.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "trading loop started")
	defer l.logger.Info("trading loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.kill:
			return nil
		default:
		}

		interval, err := l.rec.Check(ctx)
		if err != nil {
			l.logger.ErrorContext(ctx, "cycle failed, stopping loop",
				slog.String("error", err.Error()),
			)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.kill:
			return nil
		case <-time.After(interval):
		}
	}
}

// Kill requests a stop. It takes effect at the top of the next cycle and is
// safe to call from any goroutine, multiple times.
func (l *Loop) Kill() {
	l.killOnce.Do(func() { close(l.kill) })
}
