// Package strategy implements the buyer/seller trap: the bot keeps at most
// one resting SELL and one resting BUY limit order and repositions them every
// cycle from order-book walls and tape activity. The reconciler is the only
// writer of the order state; everything it learns comes from re-reading the
// exchange each cycle.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/trapbot/internal/domain"
	"github.com/alanyoungcy/trapbot/internal/madness"
	"github.com/alanyoungcy/trapbot/internal/pricing"
)

// defaultEpsilon is the smallest amount worth placing; anything below is
// float dust left over from partial fills.
const defaultEpsilon = 1e-5

// Config holds the strategy parameters, immutable for the process lifetime.
type Config struct {
	Exchange string
	Pair     string
	// OperativeAmount is the fixed base-asset quantity the bot keeps working
	// across its BUY+SELL pair.
	OperativeAmount float64
	// Window is the trailing look-back for the activity estimate.
	Window time.Duration
	// Epsilon overrides defaultEpsilon when positive.
	Epsilon float64
}

// Recorder persists fills and cycle audit rows. Implementations must treat
// failures as observability loss only; the reconciler logs and continues.
type Recorder interface {
	RecordFill(ctx context.Context, fill domain.Fill) error
	RecordCycle(ctx context.Context, rec domain.CycleRecord) error
}

// StatePublisher pushes the live bot state for the status API.
type StatePublisher interface {
	SetState(ctx context.Context, state domain.BotState) error
}

// Notifier delivers operator notifications for a named event.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Reconciler owns the per-side order state and runs one maintenance cycle at
// a time. It is not safe for concurrent use; the trading loop is its only
// caller.
type Reconciler struct {
	gw        domain.Gateway
	estimator madness.Estimator
	policy    pricing.Policy
	cfg       Config

	sell         domain.OrderState
	buy          domain.OrderState
	executedSell domain.ExecutedPrice
	executedBuy  domain.ExecutedPrice

	recorder  Recorder       // optional
	publisher StatePublisher // optional
	notifier  Notifier       // optional

	logger *slog.Logger
}

// Option configures optional reconciler collaborators.
type Option func(*Reconciler)

// WithRecorder attaches a fill/cycle recorder.
func WithRecorder(r Recorder) Option { return func(rc *Reconciler) { rc.recorder = r } }

// WithStatePublisher attaches a live-state publisher.
func WithStatePublisher(p StatePublisher) Option { return func(rc *Reconciler) { rc.publisher = p } }

// WithNotifier attaches an operator notifier.
func WithNotifier(n Notifier) Option { return func(rc *Reconciler) { rc.notifier = n } }

// New creates a Reconciler with no open orders remembered.
func New(gw domain.Gateway, estimator madness.Estimator, policy pricing.Policy, cfg Config, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		gw:        gw,
		estimator: estimator,
		policy:    policy,
		cfg:       cfg,
		logger: logger.With(
			slog.String("component", "reconciler"),
			slog.String("exchange", cfg.Exchange),
			slog.String("pair", cfg.Pair),
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Orders returns the current local order state (sell, buy).
func (r *Reconciler) Orders() (domain.OrderState, domain.OrderState) {
	return r.sell, r.buy
}

// ExecutedPrices returns the last executed sell and buy prices.
func (r *Reconciler) ExecutedPrices() (domain.ExecutedPrice, domain.ExecutedPrice) {
	return r.executedSell, r.executedBuy
}

func (r *Reconciler) epsilon() float64 {
	if r.cfg.Epsilon > 0 {
		return r.cfg.Epsilon
	}
	return defaultEpsilon
}

// Check runs one maintenance cycle: fetch market data, estimate activity,
// reconcile the SELL order, then the BUY order (the sides are coupled: each
// cycle re-derives one side's target amount from the other's resting amount,
// so the order of reconciliation matters). It returns how long the loop
// should sleep before the next cycle.
//
// A missing or thin snapshot skips the cycle and returns the maximum
// interval; a transient calm is cheaper than killing a bot that can recover
// on the next poll. Errors that do escape are fatal to the loop.
func (r *Reconciler) Check(ctx context.Context) (time.Duration, error) {
	now, err := r.gw.GetServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("strategy: server time: %w", err)
	}

	trades, err := r.gw.GetTradeHistory(ctx, now.Add(-r.cfg.Window))
	if err != nil {
		// A broken tape degrades to a calm-market estimate; it must not stop
		// order maintenance.
		r.logger.WarnContext(ctx, "trade history unavailable, assuming calm market",
			slog.String("error", err.Error()),
		)
		trades = nil
	}

	book, err := r.gw.GetMarketDepth(ctx)
	if err != nil || book.Thin() {
		if err != nil {
			r.logger.WarnContext(ctx, "market depth unavailable, skipping cycle",
				slog.String("error", err.Error()),
			)
		} else {
			r.logger.WarnContext(ctx, "order book too thin, skipping cycle",
				slog.Int("bids", len(book.Bids)),
				slog.Int("asks", len(book.Asks)),
			)
		}
		return r.policy.MaxInterval, nil
	}

	coef := r.estimator.Estimate(trades, now, r.cfg.Window)
	wallVolume := r.policy.WallVolume(coef)
	interval := r.policy.Interval(coef)
	cycleID := uuid.New().String()

	r.logger.DebugContext(ctx, "cycle start",
		slog.String("cycle_id", cycleID),
		slog.Float64("madness", coef),
		slog.Float64("wall_volume", wallVolume),
		slog.Duration("interval", interval),
	)

	if err := r.checkSell(ctx, book, wallVolume, cycleID); err != nil {
		return 0, err
	}
	if err := r.checkBuy(ctx, book, wallVolume, cycleID); err != nil {
		return 0, err
	}

	balance, err := r.gw.GetAccountBalance(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "balance unavailable",
			slog.String("error", err.Error()),
		)
	} else {
		r.logger.InfoContext(ctx, "cycle complete",
			slog.String("cycle_id", cycleID),
			slog.Float64("base_balance", balance.Base),
			slog.Float64("quote_balance", balance.Quote),
			slog.Float64("sell_amount", r.sell.Amount),
			slog.Float64("buy_amount", r.buy.Amount),
		)
	}

	r.recordCycle(ctx, cycleID, coef, wallVolume, interval, now)
	r.publishState(ctx, coef, wallVolume, interval, balance, now)

	return interval, nil
}

// checkSell reconciles the SELL side against the server-reported state.
func (r *Reconciler) checkSell(ctx context.Context, book domain.MarketSnapshot, wallVolume float64, cycleID string) error {
	log := r.logger.With(slog.String("side", "sell"), slog.String("cycle_id", cycleID))
	desired := r.cfg.OperativeAmount - r.buy.Amount

	if !r.sell.Live() {
		if desired <= r.epsilon() {
			return nil
		}
		price, err := r.policy.SuggestSellPrice(book, wallVolume, r.cfg.OperativeAmount, r.sell)
		if err != nil {
			log.WarnContext(ctx, "no sell price available", slog.String("error", err.Error()))
			return nil
		}
		placed, err := r.place(ctx, domain.OrderSideSell, price, desired, log)
		if err != nil {
			return err
		}
		if placed.Live() {
			r.sell = placed
			log.InfoContext(ctx, "sell order placed",
				slog.String("order_id", placed.ID),
				slog.Float64("price", placed.Price),
				slog.Float64("amount", placed.Amount),
			)
		}
		return nil
	}

	info, err := r.gw.GetOrderInfo(ctx, r.sell.ID)
	if err != nil {
		return fmt.Errorf("strategy: sell order info %s: %w", r.sell.ID, err)
	}

	switch info.Status {
	case domain.OrderStatusOpen:
		if equalAmount(info.RemainingAmount, r.sell.Amount, r.epsilon()) {
			// Untouched: reprice when the book moved or capacity freed up.
			price, err := r.policy.SuggestSellPrice(book, wallVolume, r.cfg.OperativeAmount, r.sell)
			if err != nil {
				log.WarnContext(ctx, "no sell price available", slog.String("error", err.Error()))
				return nil
			}
			if desired > r.sell.Amount+r.epsilon() || price != r.sell.Price {
				return r.moveOrder(ctx, &r.sell, domain.OrderSideSell, price, desired, log)
			}
			return nil
		}

		// Partial fill: remember the executed price, trim, reposition.
		filled := r.sell.Amount - info.RemainingAmount
		r.executedSell = domain.ExecutedPrice{Price: info.Price, Valid: true}
		r.sell.Amount = info.RemainingAmount
		log.InfoContext(ctx, "sell order partially filled",
			slog.String("order_id", r.sell.ID),
			slog.Float64("executed_price", info.Price),
			slog.Float64("filled", filled),
			slog.Float64("remaining", info.RemainingAmount),
		)
		r.recordFillEvent(ctx, r.sell.ID, cycleID, domain.OrderSideSell, info.Price, filled, true)

		price, err := r.policy.SuggestSellPrice(book, wallVolume, r.cfg.OperativeAmount, r.sell)
		if err != nil {
			log.WarnContext(ctx, "no sell price available", slog.String("error", err.Error()))
			return nil
		}
		return r.moveOrder(ctx, &r.sell, domain.OrderSideSell, price, r.sell.Amount, log)

	case domain.OrderStatusClosed:
		r.executedSell = domain.ExecutedPrice{Price: info.Price, Valid: true}
		log.InfoContext(ctx, "sell order filled",
			slog.String("order_id", r.sell.ID),
			slog.Float64("executed_price", info.Price),
			slog.Float64("amount", r.sell.Amount),
		)
		r.recordFillEvent(ctx, r.sell.ID, cycleID, domain.OrderSideSell, info.Price, r.sell.Amount, false)
		r.sell = domain.OrderState{}
		return nil

	case domain.OrderStatusPending, domain.OrderStatusCancelled:
		log.InfoContext(ctx, "sell order in transient state, waiting",
			slog.String("order_id", r.sell.ID),
			slog.String("status", string(info.Status)),
		)
		return nil

	default:
		log.ErrorContext(ctx, "unexpected sell order status",
			slog.String("order_id", r.sell.ID),
			slog.String("status", string(info.Status)),
		)
		return fmt.Errorf("strategy: sell order %s: %w: %q", r.sell.ID, domain.ErrUnknownOrderStatus, info.Status)
	}
}

// checkBuy mirrors checkSell for the BUY side, anchored on the last executed
// sell price.
func (r *Reconciler) checkBuy(ctx context.Context, book domain.MarketSnapshot, wallVolume float64, cycleID string) error {
	log := r.logger.With(slog.String("side", "buy"), slog.String("cycle_id", cycleID))
	desired := r.cfg.OperativeAmount - r.sell.Amount

	if !r.buy.Live() {
		if desired <= r.epsilon() {
			return nil
		}
		price, err := r.policy.SuggestBuyPrice(book, wallVolume, r.cfg.OperativeAmount, r.buy, r.executedSell)
		if err != nil {
			log.WarnContext(ctx, "no buy price available", slog.String("error", err.Error()))
			return nil
		}
		placed, err := r.place(ctx, domain.OrderSideBuy, price, desired, log)
		if err != nil {
			return err
		}
		if placed.Live() {
			r.buy = placed
			log.InfoContext(ctx, "buy order placed",
				slog.String("order_id", placed.ID),
				slog.Float64("price", placed.Price),
				slog.Float64("amount", placed.Amount),
			)
		}
		return nil
	}

	info, err := r.gw.GetOrderInfo(ctx, r.buy.ID)
	if err != nil {
		return fmt.Errorf("strategy: buy order info %s: %w", r.buy.ID, err)
	}

	switch info.Status {
	case domain.OrderStatusOpen:
		if equalAmount(info.RemainingAmount, r.buy.Amount, r.epsilon()) {
			price, err := r.policy.SuggestBuyPrice(book, wallVolume, r.cfg.OperativeAmount, r.buy, r.executedSell)
			if err != nil {
				log.WarnContext(ctx, "no buy price available", slog.String("error", err.Error()))
				return nil
			}
			if desired > r.buy.Amount+r.epsilon() || price != r.buy.Price {
				return r.moveOrder(ctx, &r.buy, domain.OrderSideBuy, price, desired, log)
			}
			return nil
		}

		filled := r.buy.Amount - info.RemainingAmount
		r.executedBuy = domain.ExecutedPrice{Price: info.Price, Valid: true}
		r.buy.Amount = info.RemainingAmount
		log.InfoContext(ctx, "buy order partially filled",
			slog.String("order_id", r.buy.ID),
			slog.Float64("executed_price", info.Price),
			slog.Float64("filled", filled),
			slog.Float64("remaining", info.RemainingAmount),
		)
		r.recordFillEvent(ctx, r.buy.ID, cycleID, domain.OrderSideBuy, info.Price, filled, true)

		price, err := r.policy.SuggestBuyPrice(book, wallVolume, r.cfg.OperativeAmount, r.buy, r.executedSell)
		if err != nil {
			log.WarnContext(ctx, "no buy price available", slog.String("error", err.Error()))
			return nil
		}
		return r.moveOrder(ctx, &r.buy, domain.OrderSideBuy, price, r.buy.Amount, log)

	case domain.OrderStatusClosed:
		r.executedBuy = domain.ExecutedPrice{Price: info.Price, Valid: true}
		log.InfoContext(ctx, "buy order filled",
			slog.String("order_id", r.buy.ID),
			slog.Float64("executed_price", info.Price),
			slog.Float64("amount", r.buy.Amount),
		)
		r.recordFillEvent(ctx, r.buy.ID, cycleID, domain.OrderSideBuy, info.Price, r.buy.Amount, false)
		r.buy = domain.OrderState{}
		return nil

	case domain.OrderStatusPending, domain.OrderStatusCancelled:
		log.InfoContext(ctx, "buy order in transient state, waiting",
			slog.String("order_id", r.buy.ID),
			slog.String("status", string(info.Status)),
		)
		return nil

	default:
		log.ErrorContext(ctx, "unexpected buy order status",
			slog.String("order_id", r.buy.ID),
			slog.String("status", string(info.Status)),
		)
		return fmt.Errorf("strategy: buy order %s: %w: %q", r.buy.ID, domain.ErrUnknownOrderStatus, info.Status)
	}
}

// moveOrder is the cancel-then-place update. When the cancel reports the
// order already closed server-side the update is abandoned untouched and the
// next cycle's read discovers the closed state; no synchronous retry.
func (r *Reconciler) moveOrder(ctx context.Context, state *domain.OrderState, side domain.OrderSide, price, amount float64, log *slog.Logger) error {
	ok, err := r.gw.CancelOrder(ctx, state.ID)
	if err != nil {
		return fmt.Errorf("strategy: cancel %s order %s: %w", side, state.ID, err)
	}
	if !ok {
		log.InfoContext(ctx, "cancel skipped, order already closed server-side",
			slog.String("order_id", state.ID),
		)
		return nil
	}

	old := *state
	*state = domain.OrderState{}
	placed, err := r.place(ctx, side, price, amount, log)
	if err != nil {
		return err
	}
	if placed.Live() {
		*state = placed
		log.InfoContext(ctx, "order moved",
			slog.String("old_order_id", old.ID),
			slog.String("order_id", placed.ID),
			slog.Float64("old_price", old.Price),
			slog.Float64("price", placed.Price),
			slog.Float64("amount", placed.Amount),
		)
	}
	return nil
}

// place submits a limit order. On an insufficient-balance rejection it
// re-reads the account balance and retries exactly once with the corrected
// amount; any other business error is fatal to the loop. A corrected amount
// below epsilon places nothing and returns an empty state.
func (r *Reconciler) place(ctx context.Context, side domain.OrderSide, price, amount float64, log *slog.Logger) (domain.OrderState, error) {
	id, err := r.gw.PlaceOrder(ctx, side, price, amount)
	if err == nil {
		return domain.OrderState{ID: id, Amount: amount, Price: price}, nil
	}
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		return domain.OrderState{}, fmt.Errorf("strategy: place %s order: %w", side, err)
	}

	balance, balErr := r.gw.GetAccountBalance(ctx)
	if balErr != nil {
		return domain.OrderState{}, fmt.Errorf("strategy: balance after rejected %s order: %w", side, balErr)
	}
	available := balance.Base
	if side == domain.OrderSideBuy && price > 0 {
		available = balance.Quote / price
	}
	corrected := amount
	if available < corrected {
		corrected = available
	}
	if corrected <= r.epsilon() {
		log.WarnContext(ctx, "balance too low to place order, skipping",
			slog.Float64("requested", amount),
			slog.Float64("available", available),
		)
		return domain.OrderState{}, nil
	}

	log.WarnContext(ctx, "order rejected for balance, retrying with corrected amount",
		slog.Float64("requested", amount),
		slog.Float64("corrected", corrected),
	)
	id, err = r.gw.PlaceOrder(ctx, side, price, corrected)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("strategy: place %s order after balance correction: %w", side, err)
	}
	return domain.OrderState{ID: id, Amount: corrected, Price: price}, nil
}

func (r *Reconciler) recordFillEvent(ctx context.Context, orderID, cycleID string, side domain.OrderSide, price, amount float64, partial bool) {
	event := "order_filled"
	if partial {
		event = "order_partial"
	}
	if r.notifier != nil {
		title := fmt.Sprintf("%s %s %s", r.cfg.Exchange, r.cfg.Pair, event)
		msg := fmt.Sprintf("%s %.8f @ %.5f (order %s)", side, amount, price, orderID)
		if err := r.notifier.Notify(ctx, event, title, msg); err != nil {
			r.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	if r.recorder == nil {
		return
	}
	fill := domain.Fill{
		ID:         uuid.New().String(),
		OrderID:    orderID,
		CycleID:    cycleID,
		Pair:       r.cfg.Pair,
		Side:       side,
		Price:      price,
		Amount:     amount,
		Partial:    partial,
		ExecutedAt: time.Now().UTC(),
	}
	if err := r.recorder.RecordFill(ctx, fill); err != nil {
		r.logger.WarnContext(ctx, "fill record failed", slog.String("error", err.Error()))
	}
}

func (r *Reconciler) recordCycle(ctx context.Context, cycleID string, coef, wallVolume float64, interval time.Duration, startedAt time.Time) {
	if r.recorder == nil {
		return
	}
	rec := domain.CycleRecord{
		ID:         cycleID,
		Pair:       r.cfg.Pair,
		Madness:    coef,
		WallVolume: wallVolume,
		IntervalMs: interval.Milliseconds(),
		SellID:     r.sell.ID,
		SellPrice:  r.sell.Price,
		SellAmount: r.sell.Amount,
		BuyID:      r.buy.ID,
		BuyPrice:   r.buy.Price,
		BuyAmount:  r.buy.Amount,
		StartedAt:  startedAt,
	}
	if err := r.recorder.RecordCycle(ctx, rec); err != nil {
		r.logger.WarnContext(ctx, "cycle record failed", slog.String("error", err.Error()))
	}
}

func (r *Reconciler) publishState(ctx context.Context, coef, wallVolume float64, interval time.Duration, balance domain.Balance, now time.Time) {
	if r.publisher == nil {
		return
	}
	state := domain.BotState{
		Exchange:          r.cfg.Exchange,
		Pair:              r.cfg.Pair,
		Madness:           coef,
		WallVolume:        wallVolume,
		IntervalMs:        interval.Milliseconds(),
		Sell:              r.sell,
		Buy:               r.buy,
		ExecutedSellPrice: r.executedSell,
		ExecutedBuyPrice:  r.executedBuy,
		BaseBalance:       balance.Base,
		QuoteBalance:      balance.Quote,
		UpdatedAt:         now,
	}
	if err := r.publisher.SetState(ctx, state); err != nil {
		r.logger.WarnContext(ctx, "state publish failed", slog.String("error", err.Error()))
	}
}

func equalAmount(a, b, epsilon float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < epsilon
}
