package rider

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"zonegate/internal/rider/models"
	"zonegate/pkg/platform/sentinel"
)

// MemoryStore keeps rider availability and assignment linkage in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	riders map[string]models.Rider
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{riders: make(map[string]models.Rider)}
}

func (s *MemoryStore) Get(ctx context.Context, riderID string) (*models.Rider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rider, ok := s.riders[riderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rider, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rider *models.Rider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riders[rider.ID] = *rider
	return nil
}

// SetCurrentAssignment records the rider's live zone assignment, creating the
// directory row when the identity collaborator has not synced one yet.
func (s *MemoryStore) SetCurrentAssignment(ctx context.Context, riderID string, assignmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rider, ok := s.riders[riderID]
	if !ok {
		rider = models.Rider{ID: riderID, Available: true}
	}
	rider.CurrentAssignmentID = &assignmentID
	s.riders[riderID] = rider
	return nil
}
