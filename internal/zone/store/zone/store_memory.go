package zone

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"zonegate/internal/zone/models"
	"zonegate/pkg/platform/sentinel"
)

// MemoryStore is an in-memory zone store for tests and single-node
// development. The occupancy guard runs under the store lock, mirroring the
// conditional UPDATE the Postgres store uses.
type MemoryStore struct {
	mu    sync.RWMutex
	zones map[uuid.UUID]models.Zone
}

// NewMemoryStore creates an empty in-memory zone store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{zones: make(map[uuid.UUID]models.Zone)}
}

func (s *MemoryStore) Create(ctx context.Context, zone *models.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.zones[zone.ID]; exists {
		return sentinel.ErrConflict
	}
	s.zones[zone.ID] = *zone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Zone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zone, ok := s.zones[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &zone, nil
}

// IncrementOccupancy bumps the occupancy counter only while spare capacity
// remains. Returns false when the zone is full; the caller treats that as
// ZoneFull and aborts the enclosing transaction.
func (s *MemoryStore) IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zone, ok := s.zones[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if zone.Occupancy >= zone.Capacity {
		return false, nil
	}
	zone.Occupancy++
	s.zones[id] = zone
	return true, nil
}
