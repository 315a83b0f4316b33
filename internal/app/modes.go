package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/trapbot/internal/config"
	"github.com/alanyoungcy/trapbot/internal/domain"
	"github.com/alanyoungcy/trapbot/internal/feed"
	"github.com/alanyoungcy/trapbot/internal/gateway/kraken"
	"github.com/alanyoungcy/trapbot/internal/gateway/paper"
	"github.com/alanyoungcy/trapbot/internal/madness"
	"github.com/alanyoungcy/trapbot/internal/notify"
	"github.com/alanyoungcy/trapbot/internal/pricing"
	"github.com/alanyoungcy/trapbot/internal/server"
	"github.com/alanyoungcy/trapbot/internal/server/handler"
	"github.com/alanyoungcy/trapbot/internal/strategy"
)

// lockTTL bounds how long a crashed instance keeps other instances out.
const lockTTL = 5 * time.Minute

// TradeMode runs the full trading loop against the live exchange.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	secret, err := config.ResolveExchangeSecret(a.cfg)
	if err != nil {
		return err
	}
	gw, err := a.buildKrakenClient(secret)
	if err != nil {
		return err
	}

	return a.runTrading(ctx, deps, gw)
}

// PaperMode runs the trading loop against a simulated exchange fed by live
// market data. No credentials are needed and no real orders go out.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	market, err := a.buildKrakenClient("")
	if err != nil {
		return err
	}
	gw := paper.New(market, domain.Balance{
		Base:  a.cfg.Paper.StartBase,
		Quote: a.cfg.Paper.StartQuote,
	}, a.logger)

	return a.runTrading(ctx, deps, gw)
}

// MonitorMode observes the market and publishes what the bot would do
// without placing any orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	gw, err := a.buildKrakenClient("")
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	g.Go(func() error {
		return a.monitorLoop(ctx, deps, gw)
	})

	return g.Wait()
}

// runTrading is the shared body of trade and paper mode: lock the pair, wire
// the feed, run the reconciler loop plus the supporting goroutines.
func (a *App) runTrading(ctx context.Context, deps *Dependencies, gw domain.Gateway) error {
	lockKey := fmt.Sprintf("%s:%s", a.cfg.Exchange.Name, a.cfg.Exchange.Pair)
	unlock, err := deps.LockManager.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("app: acquire pair lock %s: %w", lockKey, err)
	}
	defer unlock()

	g, ctx := errgroup.WithContext(ctx)

	// Streamed trades short-circuit the per-cycle history poll when fresh.
	tradingGW := gw
	if a.cfg.Exchange.WSURL != "" {
		buffer := feed.NewTradeBuffer(4096)
		onTrade := feed.TradeHandler(buffer.Add)
		if sim, ok := gw.(*paper.Gateway); ok {
			// The stream bypasses the history poll that drives the simulated
			// matching engine, so the feed taps the simulator directly.
			onTrade = func(t domain.Trade) {
				buffer.Add(t)
				sim.ObserveTrade(t)
			}
		}
		wsFeed := feed.NewKrakenWSFeed(a.cfg.Exchange.WSURL, a.cfg.Exchange.Pair, onTrade, a.logger)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
		tradingGW = feed.NewBufferedHistoryGateway(gw, buffer, 30*time.Second)
	}

	rec := a.buildReconciler(tradingGW, deps)
	loop := strategy.NewLoop(rec, a.logger)
	g.Go(func() error {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			_ = deps.Notifier.Notify(context.Background(), notify.EventBotFatal,
				"bot stopped", fmt.Sprintf("%s %s: %v", a.cfg.Exchange.Name, a.cfg.Exchange.Pair, err))
			return err
		}
		return ctx.Err()
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	_ = deps.Notifier.Notify(ctx, notify.EventBotStarted,
		"bot started", fmt.Sprintf("%s mode on %s %s", a.cfg.Mode, a.cfg.Exchange.Name, a.cfg.Exchange.Pair))
	defer func() {
		_ = deps.Notifier.Notify(context.Background(), notify.EventBotStopped,
			"bot stopped", fmt.Sprintf("%s %s", a.cfg.Exchange.Name, a.cfg.Exchange.Pair))
	}()

	return g.Wait()
}

func (a *App) buildKrakenClient(secret string) (*kraken.Client, error) {
	key := a.cfg.Exchange.Key
	if secret == "" {
		key = ""
	}
	client, err := kraken.New(kraken.Config{
		BaseURL:    a.cfg.Exchange.RESTURL,
		Key:        key,
		Secret:     secret,
		Pair:       a.cfg.Exchange.WirePair,
		BaseAsset:  a.cfg.Exchange.BaseAsset,
		QuoteAsset: a.cfg.Exchange.QuoteAsset,
		DepthCount: a.cfg.Exchange.DepthCount,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: build kraken client: %w", err)
	}
	return client, nil
}

func (a *App) estimator() madness.Estimator {
	t := a.cfg.Trading
	return madness.Estimator{
		MinTrades:    t.MinTrades,
		MaxTrades:    t.MaxTrades,
		MinAvgVolume: t.MinAvgVolume,
		MaxAvgVolume: t.MaxAvgVolume,
	}
}

func (a *App) policy() pricing.Policy {
	t := a.cfg.Trading
	return pricing.Policy{
		MinVolume:     t.MinVolume,
		MaxVolume:     t.MaxVolume,
		MinInterval:   t.MinInterval.Duration,
		MaxInterval:   t.MaxInterval.Duration,
		MinDifference: t.MinDifference,
		MinPriceDelta: t.MinPriceDelta,
		Tick:          t.PriceTick,
	}
}

func (a *App) buildReconciler(gw domain.Gateway, deps *Dependencies) *strategy.Reconciler {
	opts := []strategy.Option{
		strategy.WithStatePublisher(deps.StateCache),
		strategy.WithNotifier(deps.Notifier),
	}
	if deps.FillStore != nil && deps.CycleStore != nil {
		opts = append(opts, strategy.WithRecorder(&storeRecorder{
			fills:  deps.FillStore,
			cycles: deps.CycleStore,
		}))
	}

	return strategy.New(gw, a.estimator(), a.policy(), strategy.Config{
		Exchange:        a.cfg.Exchange.Name,
		Pair:            a.cfg.Exchange.Pair,
		OperativeAmount: a.cfg.Trading.OperativeAmount,
		Window:          a.cfg.Trading.Window.Duration,
		Epsilon:         a.cfg.Trading.Epsilon,
	}, a.logger, opts...)
}

// startServer registers the monitoring API goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(deps.StateCache, a.cfg.Mode, a.cfg.Exchange.Pair, a.logger),
	}
	if deps.FillStore != nil && deps.CycleStore != nil {
		handlers.History = handler.NewHistoryHandler(deps.FillStore, deps.CycleStore, a.logger)
	}

	srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// archiveLoop periodically moves aged history rows to object storage.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			if _, err := deps.Archiver.ArchiveBefore(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// monitorLoop computes and publishes what the strategy would do each cycle
// without touching any orders.
func (a *App) monitorLoop(ctx context.Context, deps *Dependencies, gw domain.Gateway) error {
	est := a.estimator()
	policy := a.policy()
	t := a.cfg.Trading

	for {
		interval := policy.MaxInterval

		now, err := gw.GetServerTime(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "server time unavailable", slog.String("error", err.Error()))
			now = time.Now().UTC()
		}

		trades, err := gw.GetTradeHistory(ctx, now.Add(-t.Window.Duration))
		if err != nil {
			a.logger.WarnContext(ctx, "trade history unavailable", slog.String("error", err.Error()))
			trades = nil
		}

		book, err := gw.GetMarketDepth(ctx)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "market depth unavailable", slog.String("error", err.Error()))
		case book.Thin():
			a.logger.WarnContext(ctx, "order book too thin to price")
		default:
			coefficient := est.Estimate(trades, now, t.Window.Duration)
			wallVolume := policy.WallVolume(coefficient)
			interval = policy.Interval(coefficient)

			sellPrice, sellErr := policy.SuggestSellPrice(book, wallVolume, t.OperativeAmount, domain.OrderState{})
			buyPrice, buyErr := policy.SuggestBuyPrice(book, wallVolume, t.OperativeAmount, domain.OrderState{}, domain.ExecutedPrice{})

			log := a.logger.With(
				slog.Float64("madness", coefficient),
				slog.Float64("wall_volume", wallVolume),
				slog.Duration("interval", interval),
			)
			if sellErr == nil {
				log = log.With(slog.Float64("suggested_sell", sellPrice))
			}
			if buyErr == nil {
				log = log.With(slog.Float64("suggested_buy", buyPrice))
			}
			log.InfoContext(ctx, "market observation")

			state := domain.BotState{
				Exchange:   a.cfg.Exchange.Name,
				Pair:       a.cfg.Exchange.Pair,
				Madness:    coefficient,
				WallVolume: wallVolume,
				IntervalMs: interval.Milliseconds(),
				UpdatedAt:  time.Now().UTC(),
			}
			if err := deps.StateCache.SetState(ctx, state); err != nil {
				a.logger.WarnContext(ctx, "publish state failed", slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
