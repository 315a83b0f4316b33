package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// StateCache implements domain.StateCache using a JSON blob per pair at key
// "botstate:{pair}". Entries carry a TTL so a crashed bot's state expires
// instead of reading as live forever.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache creates a StateCache backed by the given Client. A zero ttl
// defaults to five minutes.
func NewStateCache(c *Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StateCache{rdb: c.Underlying(), ttl: ttl}
}

func stateKey(pair string) string {
	return "botstate:" + pair
}

// SetState stores the latest bot state for its pair.
func (sc *StateCache) SetState(ctx context.Context, state domain.BotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal state %s: %w", state.Pair, err)
	}
	if err := sc.rdb.Set(ctx, stateKey(state.Pair), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set state %s: %w", state.Pair, err)
	}
	return nil
}

// GetState retrieves the latest bot state for a pair. It returns
// domain.ErrNotFound when no state has been published or it has expired.
func (sc *StateCache) GetState(ctx context.Context, pair string) (domain.BotState, error) {
	data, err := sc.rdb.Get(ctx, stateKey(pair)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BotState{}, domain.ErrNotFound
		}
		return domain.BotState{}, fmt.Errorf("redis: get state %s: %w", pair, err)
	}

	var state domain.BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.BotState{}, fmt.Errorf("redis: unmarshal state %s: %w", pair, err)
	}
	return state, nil
}

var _ domain.StateCache = (*StateCache)(nil)
