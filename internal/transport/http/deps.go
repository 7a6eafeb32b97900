// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/domain"
)

type RawAppender interface {
	Append(ctx context.Context, events []domain.RawEvent) (int, error)
}

type DatasetReader interface {
	Load(ctx context.Context) (dataset.Snapshot, error)
}

type Compactor interface {
	Compact(ctx context.Context) (compactor.Result, error)
}

// CompactionTrigger requests a compaction without waiting for it.
type CompactionTrigger interface {
	Trigger()
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
