package cooldown

import (
	"context"
	"sync"
	"time"

	"zonegate/internal/verification/models"
	"zonegate/pkg/platform/sentinel"
)

type key struct {
	riderID string
	kind    models.Kind
}

// MemoryStore keeps cooldown records in memory, keyed by (rider, kind).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[key]models.Cooldown
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[key]models.Cooldown)}
}

func (s *MemoryStore) Get(ctx context.Context, riderID string, kind models.Kind) (*models.Cooldown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key{riderID, kind}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

// Record upserts the cooldown: first attempt creates the record, later
// attempts bump the counter and overwrite the timestamps. Last write wins;
// cooldown enforcement only needs to be conservative.
func (s *MemoryStore) Record(ctx context.Context, riderID string, kind models.Kind, lastAttemptAt, expiresAt time.Time) (*models.Cooldown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{riderID, kind}
	record, ok := s.records[k]
	if !ok {
		record = models.Cooldown{RiderID: riderID, Kind: kind}
	}
	record.AttemptCount++
	record.LastAttemptAt = lastAttemptAt
	record.ExpiresAt = expiresAt
	s.records[k] = record
	return &record, nil
}
