package repository

import (
	"context"
	"sync"

	"github.com/okian/sift/internal/domain/merge"
	"github.com/okian/sift/internal/domain/model"
)

// MemoryStore is an in-process Store. Reports are applied under a single
// mutex, so read-modify-write never loses updates. Insertion order is kept
// so ListUserIDs behaves like a heap-ordered table scan.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.BlockRecord
	order   []string
	failure error
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{records: make(map[string]model.BlockRecord)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) check() error {
	if s.closed {
		return ErrStoreClose
	}
	return s.failure
}

// ListUserIDs returns user ids in insertion order.
func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Get returns a copy of the record for userID.
func (s *MemoryStore) Get(_ context.Context, userID string) (model.BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.BlockRecord{}, err
	}
	rec, ok := s.records[userID]
	if !ok {
		return model.BlockRecord{}, ErrNotFound
	}
	return rec, nil
}

// Increment applies the increment policy atomically.
func (s *MemoryStore) Increment(_ context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.apply(merge.Increment, r)
}

// Upsert applies the upsert policy atomically.
func (s *MemoryStore) Upsert(_ context.Context, r model.Report) (model.ReportOutcome, error) {
	return s.apply(merge.Upsert, r)
}

func (s *MemoryStore) apply(p merge.Policy, r model.Report) (model.ReportOutcome, error) {
	if r.UserID == "" {
		return model.ReportOutcome{}, ErrEmptyUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.ReportOutcome{}, err
	}

	var existing *model.BlockRecord
	if rec, ok := s.records[r.UserID]; ok {
		existing = &rec
	}
	out := p.Merge(existing, r)
	if out.Created {
		s.order = append(s.order, r.UserID)
	}
	s.records[r.UserID] = out.Record
	return out, nil
}

// Count returns the number of records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	return len(s.records), nil
}

// Ping reports the simulated failure, if any.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check()
}

// Close marks the store closed; later calls fail with ErrStoreClose.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
