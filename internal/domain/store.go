package domain

import (
	"context"
	"time"
)

// FillStore persists executed fills.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListRecent(ctx context.Context, limit int) ([]Fill, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CycleStore persists per-cycle audit rows.
type CycleStore interface {
	Insert(ctx context.Context, rec CycleRecord) error
	ListRecent(ctx context.Context, limit int) ([]CycleRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]CycleRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
