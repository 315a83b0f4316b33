package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/trapbot/internal/domain"
)

// batchSize bounds how many rows one archive object holds.
const batchSize = 10_000

// Archiver moves aged fill and cycle rows from the primary store to object
// storage. Each run lists rows older than the cutoff, uploads them as JSONL,
// and only then deletes them from Postgres, so a failed upload never loses
// data.
type Archiver struct {
	writer BlobWriter
	fills  domain.FillStore
	cycles domain.CycleStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, fills domain.FillStore, cycles domain.CycleStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		fills:  fills,
		cycles: cycles,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore archives all fills and cycles older than the cutoff and
// returns the total number of rows moved.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	nFills, err := a.archiveFills(ctx, cutoff)
	if err != nil {
		return nFills, err
	}
	nCycles, err := a.archiveCycles(ctx, cutoff)
	if err != nil {
		return nFills + nCycles, err
	}

	if total := nFills + nCycles; total > 0 {
		a.logger.InfoContext(ctx, "archive run complete",
			slog.Int64("fills", nFills),
			slog.Int64("cycles", nCycles),
			slog.Time("cutoff", cutoff),
		)
	}
	return nFills + nCycles, nil
}

func (a *Archiver) archiveFills(ctx context.Context, cutoff time.Time) (int64, error) {
	fills, err := a.fills.ListBefore(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list fills: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal fills: %w", err)
	}
	path := archivePath("fills", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload fills: %w", err)
	}

	deleted, err := a.fills.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived fills: %w", err)
	}
	return deleted, nil
}

func (a *Archiver) archiveCycles(ctx context.Context, cutoff time.Time) (int64, error) {
	cycles, err := a.cycles.ListBefore(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list cycles: %w", err)
	}
	if len(cycles) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(cycles)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal cycles: %w", err)
	}
	path := archivePath("cycles", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload cycles: %w", err)
	}

	deleted, err := a.cycles.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived cycles: %w", err)
	}
	return deleted, nil
}

// archivePath builds the object key, partitioned by the cutoff's year-month:
//
//	archive/fills/2026-08.jsonl
//	archive/cycles/2026-08.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
