package outbox

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"zonegate/pkg/platform/sentinel"
)

// MemoryStore is the in-memory queue for tests and development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*QueuedJoin
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]*QueuedJoin)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, q *QueuedJoin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[q.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *q
	s.rows[q.ID] = &copied
	return nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]*QueuedJoin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*QueuedJoin
	for _, row := range s.rows {
		if row.Status == StatusQueued {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, q *QueuedJoin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[q.ID]; !exists {
		return sentinel.ErrNotFound
	}
	copied := *q
	s.rows[q.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*QueuedJoin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *row
	return &copied, nil
}
