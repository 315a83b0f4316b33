package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, order_id, cycle_id, pair, side, price, amount, partial, executed_at`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(
			&f.ID, &f.OrderID, &f.CycleID, &f.Pair, &f.Side,
			&f.Price, &f.Amount, &f.Partial, &f.ExecutedAt,
		); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Insert stores one fill. Re-inserting the same id is a no-op so a retried
// cycle does not duplicate rows.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (id, order_id, cycle_id, pair, side, price, amount, partial, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		f.ID, f.OrderID, f.CycleID, f.Pair, f.Side,
		f.Price, f.Amount, f.Partial, f.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill: %w", err)
	}
	return nil
}

// ListRecent returns the newest fills, newest first.
func (s *FillStore) ListRecent(ctx context.Context, limit int) ([]domain.Fill, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM fills
		ORDER BY executed_at DESC
		LIMIT $1`, fillSelectCols)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent fills: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// ListBefore returns fills executed strictly before cutoff, oldest first.
func (s *FillStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Fill, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM fills
		WHERE executed_at < $1
		ORDER BY executed_at ASC
		LIMIT $2`, fillSelectCols)
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before cutoff: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// DeleteBefore removes fills executed strictly before cutoff and returns the
// number of rows deleted.
func (s *FillStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}
