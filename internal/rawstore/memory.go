// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.RawEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Append(ctx context.Context, events []domain.RawEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	received := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		s.entries = append(s.entries, domain.RawEntry{
			Seq:        int64(len(s.entries) + 1),
			ReceivedAt: received,
			Event:      maps.Clone(ev),
		})
	}
	return len(events), nil
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]domain.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RawEntry, len(s.entries))
	for i, e := range s.entries {
		e.Event = maps.Clone(e.Event)
		out[i] = e
	}
	return out, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
