package domain

import (
	"context"
	"time"
)

// BotState is the live bot state published for the status API.
type BotState struct {
	Exchange          string        `json:"exchange"`
	Pair              string        `json:"pair"`
	Madness           float64       `json:"madness"`
	WallVolume        float64       `json:"wall_volume"`
	IntervalMs        int64         `json:"interval_ms"`
	Sell              OrderState    `json:"sell"`
	Buy               OrderState    `json:"buy"`
	ExecutedSellPrice ExecutedPrice `json:"executed_sell_price"`
	ExecutedBuyPrice  ExecutedPrice `json:"executed_buy_price"`
	BaseBalance       float64       `json:"base_balance"`
	QuoteBalance      float64       `json:"quote_balance"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// StateCache publishes and reads the live bot state.
type StateCache interface {
	SetState(ctx context.Context, state BotState) error
	GetState(ctx context.Context, pair string) (BotState, error)
}

// LockManager provides distributed locks so at most one bot instance works a
// given exchange+pair at a time.
type LockManager interface {
	// Acquire obtains the lock and returns an unlock function, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
