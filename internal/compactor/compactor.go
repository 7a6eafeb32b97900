// SPDX-License-Identifier: Apache-2.0

// Package compactor rebuilds the canonical dataset from the raw event log.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/domain"
	"github.com/adiadia/salesflow/internal/metrics"
	"github.com/adiadia/salesflow/internal/normalize"
)

type RawReader interface {
	ReadAll(ctx context.Context) ([]domain.RawEntry, error)
}

// PublishListener is told about every snapshot the compactor publishes. It is
// called after the compaction lock is released.
type PublishListener interface {
	Published(ctx context.Context, res Result, snap dataset.Snapshot)
}

type Deps struct {
	Raw      RawReader
	Dataset  dataset.Publisher
	Logger   *slog.Logger
	Listener PublishListener
}

// Result describes one Compact call. Skipped is set when another compaction
// was already running and this call did no work.
type Result struct {
	Skipped     bool           `json:"skipped"`
	RawEvents   int            `json:"raw_events"`
	Accepted    int            `json:"accepted"`
	Rejected    map[string]int `json:"rejected"`
	Duplicates  int            `json:"duplicates"`
	Records     int            `json:"records"`
	Checksum    string         `json:"checksum,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
	DurationMS  int64          `json:"duration_ms"`
}

func (r Result) RejectedTotal() int {
	n := 0
	for _, v := range r.Rejected {
		n += v
	}
	return n
}

type Compactor struct {
	mu        sync.Mutex
	raw       RawReader
	publisher dataset.Publisher
	listener  PublishListener
	logger    *slog.Logger
}

func New(deps Deps) *Compactor {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	return &Compactor{
		raw:       deps.Raw,
		publisher: deps.Dataset,
		listener:  deps.Listener,
		logger:    l,
	}
}

// Compact reads the whole raw log, normalizes it, and publishes the result as
// the new dataset. At most one compaction runs at a time; overlapping calls
// return a skipped Result and a nil error. On any failure the previously
// published dataset is left as is.
func (c *Compactor) Compact(ctx context.Context) (Result, error) {
	if !c.mu.TryLock() {
		metrics.IncCompaction(metrics.CompactionSkipped)
		c.logger.Debug("compaction already running, skipping")
		return Result{Skipped: true}, nil
	}

	res, snap, err := c.compactLocked(ctx)
	c.mu.Unlock()

	if err != nil {
		return res, err
	}
	if c.listener != nil {
		c.listener.Published(ctx, res, snap)
	}
	return res, nil
}

func (c *Compactor) compactLocked(ctx context.Context) (Result, dataset.Snapshot, error) {
	started := time.Now()

	abort := func(stage string, err error) (Result, dataset.Snapshot, error) {
		metrics.IncCompaction(metrics.CompactionAborted)
		metrics.ObserveCompactionDuration(time.Since(started))
		if errors.Is(err, context.Canceled) {
			c.logger.Warn("compaction canceled", "stage", stage, "error", err)
		} else {
			c.logger.Error("compaction aborted", "stage", stage, "error", err)
		}
		return Result{}, dataset.Snapshot{}, fmt.Errorf("%w: %s: %w", domain.ErrCompactionAborted, stage, err)
	}

	entries, err := c.raw.ReadAll(ctx)
	if err != nil {
		return abort("read raw events", err)
	}

	built := Build(entries)
	for _, rej := range built.Rejections {
		c.logger.Debug("raw event rejected",
			"seq", rej.Seq,
			"reason", domain.ReasonLabel(rej.Err),
			"error", rej.Err,
		)
	}

	if err := ctx.Err(); err != nil {
		return abort("normalize", err)
	}

	snap, err := c.publisher.Publish(ctx, built.Records)
	if err != nil {
		return abort("publish", err)
	}

	res := built.Result
	res.Checksum = snap.Checksum
	res.PublishedAt = snap.PublishedAt
	res.DurationMS = time.Since(started).Milliseconds()

	metrics.IncCompaction(metrics.CompactionPublished)
	metrics.ObserveCompactionDuration(time.Since(started))
	metrics.SetCanonicalRecords(res.Records)
	for reason, n := range res.Rejected {
		metrics.AddRejected(reason, n)
	}

	c.logger.Info("compaction published",
		"raw_events", res.RawEvents,
		"accepted", res.Accepted,
		"rejected", res.RejectedTotal(),
		"duplicates", res.Duplicates,
		"records", res.Records,
		"checksum", res.Checksum,
		"duration_ms", res.DurationMS,
	)

	return res, snap, nil
}

// Rejection is a raw entry that failed normalization.
type Rejection struct {
	Seq int64
	Err error
}

type Built struct {
	Records    []domain.CanonicalRecord
	Rejections []Rejection
	Result     Result
}

// Build is the pure part of a compaction: normalize every entry, drop exact
// duplicates keeping the first occurrence, then stable-sort by registration
// time so ties keep storage order.
func Build(entries []domain.RawEntry) Built {
	out := Built{
		Records: make([]domain.CanonicalRecord, 0, len(entries)),
		Result: Result{
			RawEvents: len(entries),
			Rejected:  make(map[string]int, len(domain.RejectionLabels)),
		},
	}
	for _, label := range domain.RejectionLabels {
		out.Result.Rejected[label] = 0
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		rec, err := normalize.Normalize(entry.Event)
		if err != nil {
			out.Result.Rejected[domain.ReasonLabel(err)]++
			out.Rejections = append(out.Rejections, Rejection{Seq: entry.Seq, Err: err})
			continue
		}
		out.Result.Accepted++

		key := rec.Key()
		if _, dup := seen[key]; dup {
			out.Result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out.Records = append(out.Records, rec)
	}

	sort.SliceStable(out.Records, func(i, j int) bool {
		return out.Records[i].RegisteredAt.Before(out.Records[j].RegisteredAt)
	})

	out.Result.Records = len(out.Records)
	return out
}
