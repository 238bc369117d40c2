package attempt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/verification/models"
	"zonegate/pkg/platform/sentinel"
)

// MemoryStore keeps verification attempts in memory. Attempts are an audit
// trail: rows are created and updated, never removed.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]models.Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[uuid.UUID]models.Attempt)}
}

func (s *MemoryStore) Create(ctx context.Context, attempt *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return sentinel.ErrConflict
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, attempt *models.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.attempts[attempt.ID] = *attempt
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &attempt, nil
}

// FindRecentPassedJoin returns the most recent passed join attempt for the
// (rider, zone) pair submitted at or after since.
func (s *MemoryStore) FindRecentPassedJoin(ctx context.Context, riderID string, zoneID uuid.UUID, since time.Time) (*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Attempt
	for _, a := range s.attempts {
		if a.RiderID != riderID || a.Kind != models.KindJoin || a.Status != models.StatusPassed {
			continue
		}
		if a.ZoneID == nil || *a.ZoneID != zoneID || a.SubmittedAt.Before(since) {
			continue
		}
		if best == nil || a.SubmittedAt.After(best.SubmittedAt) {
			copied := a
			best = &copied
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best, nil
}

// FindLatestPending returns the rider's newest pending attempt of the given
// kind submitted at or after since.
func (s *MemoryStore) FindLatestPending(ctx context.Context, riderID string, kind models.Kind, since time.Time) (*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Attempt
	for _, a := range s.attempts {
		if a.RiderID != riderID || a.Kind != kind || a.Status != models.StatusPending {
			continue
		}
		if a.SubmittedAt.Before(since) {
			continue
		}
		if best == nil || a.SubmittedAt.After(best.SubmittedAt) {
			copied := a
			best = &copied
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best, nil
}

// ListByRider returns the rider's attempts submitted at or after since,
// newest first, capped at limit.
func (s *MemoryStore) ListByRider(ctx context.Context, riderID string, since time.Time, limit int) ([]*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attempt
	for _, a := range s.attempts {
		if a.RiderID != riderID || a.SubmittedAt.Before(since) {
			continue
		}
		copied := a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
