package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-instance deployments and testing.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
	ids     map[string]struct{}
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		ids: make(map[string]struct{}),
	}
}

// Append implements [Store.Append].
func (s *MemStore) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	if _, exists := s.ids[rec.ID]; exists {
		return Record{}, ErrDuplicateID
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	return rec, nil
}

// List implements [Store.List]. Records are returned newest first.
func (s *MemStore) List(ctx context.Context, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// ClearAll implements [Store.ClearAll].
func (s *MemStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.ids = make(map[string]struct{})
	return nil
}
