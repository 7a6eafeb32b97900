// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
)

// MemoryStore is an in-process dataset used by tests and the cli.
type MemoryStore struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Publish(ctx context.Context, records []domain.CanonicalRecord) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	sum, err := Checksum(records)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Records:     slices.Clone(records),
		Published:   true,
		PublishedAt: s.now().UTC(),
		Checksum:    sum,
	}
	s.current.Store(&snap)
	return snap, nil
}

func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if snap := s.current.Load(); snap != nil {
		return *snap, nil
	}
	return Snapshot{}, nil
}
