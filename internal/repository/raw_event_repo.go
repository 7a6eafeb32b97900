// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/adiadia/salesflow/internal/rawstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RawEventRepository keeps the raw webhook log in the raw_events table.
// Each payload is stored whole as JSONB; seq gives the storage order.
type RawEventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewRawEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *RawEventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &RawEventRepository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// Append writes the whole batch in one transaction, so a batch is either
// fully visible to readers or not at all.
func (r *RawEventRepository) Append(ctx context.Context, events []domain.RawEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batchID, ok := rawstore.BatchIDFromContext(ctx)
	if !ok {
		batchID = uuid.New()
	}
	received := r.now().UTC()

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return 0, fmt.Errorf("%w: encode payload: %w", domain.ErrStorageFailure, err)
		}
		rows = append(rows, []any{batchID, received, payload})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error("begin raw append tx failed", "batch_id", batchID, "error", err)
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrStorageFailure, err)
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"raw_events"},
		[]string{"batch_id", "received_at", "payload"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		r.logger.Error("copy raw events failed", "batch_id", batchID, "error", err)
		return 0, fmt.Errorf("%w: copy: %w", domain.ErrStorageFailure, err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("commit raw append failed", "batch_id", batchID, "error", err)
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStorageFailure, err)
	}

	r.logger.Debug("raw events appended", "batch_id", batchID, "count", copied)
	return int(copied), nil
}

func (r *RawEventRepository) ReadAll(ctx context.Context) ([]domain.RawEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, received_at, payload
		FROM raw_events
		ORDER BY seq ASC
	`)
	if err != nil {
		r.logger.Error("list raw events query failed", "error", err)
		return nil, fmt.Errorf("%w: query: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	out := make([]domain.RawEntry, 0, 64)
	for rows.Next() {
		var (
			entry   domain.RawEntry
			payload []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.ReceivedAt, &payload); err != nil {
			r.logger.Error("scan raw event row failed", "error", err)
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStorageFailure, err)
		}

		ev, err := decodePayload(payload)
		if err != nil {
			r.logger.Error("decode raw event payload failed", "seq", entry.Seq, "error", err)
			return nil, fmt.Errorf("%w: decode seq %d: %w", domain.ErrStorageFailure, entry.Seq, err)
		}
		entry.ReceivedAt = entry.ReceivedAt.UTC()
		entry.Event = ev
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("iterate raw events failed", "error", err)
		return nil, fmt.Errorf("%w: rows: %w", domain.ErrStorageFailure, err)
	}

	return out, nil
}

func (r *RawEventRepository) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raw_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", domain.ErrStorageFailure, err)
	}
	return n, nil
}

// Close is a no-op; the pool belongs to the caller.
func (r *RawEventRepository) Close() error {
	return nil
}

func decodePayload(payload []byte) (domain.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var ev domain.RawEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	if ev == nil {
		ev = domain.RawEvent{}
	}
	return ev, nil
}
