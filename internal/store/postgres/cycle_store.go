package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a new CycleStore backed by the given connection pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

const cycleSelectCols = `id, pair, madness, wall_volume, interval_ms,
	sell_id, sell_price, sell_amount, buy_id, buy_price, buy_amount, started_at`

func scanCycleRows(rows pgx.Rows) ([]domain.CycleRecord, error) {
	var recs []domain.CycleRecord
	for rows.Next() {
		var r domain.CycleRecord
		if err := rows.Scan(
			&r.ID, &r.Pair, &r.Madness, &r.WallVolume, &r.IntervalMs,
			&r.SellID, &r.SellPrice, &r.SellAmount,
			&r.BuyID, &r.BuyPrice, &r.BuyAmount, &r.StartedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert stores one cycle snapshot.
func (s *CycleStore) Insert(ctx context.Context, rec domain.CycleRecord) error {
	const query = `
		INSERT INTO cycles (
			id, pair, madness, wall_volume, interval_ms,
			sell_id, sell_price, sell_amount,
			buy_id, buy_price, buy_amount, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Pair, rec.Madness, rec.WallVolume, rec.IntervalMs,
		rec.SellID, rec.SellPrice, rec.SellAmount,
		rec.BuyID, rec.BuyPrice, rec.BuyAmount, rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cycle: %w", err)
	}
	return nil
}

// ListRecent returns the newest cycles, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.CycleRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cycles
		ORDER BY started_at DESC
		LIMIT $1`, cycleSelectCols)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent cycles: %w", err)
	}
	defer rows.Close()
	return scanCycleRows(rows)
}

// ListBefore returns cycles started strictly before cutoff, oldest first.
func (s *CycleStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.CycleRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cycles
		WHERE started_at < $1
		ORDER BY started_at ASC
		LIMIT $2`, cycleSelectCols)
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycles before cutoff: %w", err)
	}
	defer rows.Close()
	return scanCycleRows(rows)
}

// DeleteBefore removes cycles started strictly before cutoff and returns the
// number of rows deleted.
func (s *CycleStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cycles WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete cycles before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}
