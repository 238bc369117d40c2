package assignment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"zonegate/internal/join/models"
	"zonegate/pkg/platform/sentinel"
)

// MemoryStore keeps assignments in memory. The live-uniqueness rule the
// Postgres store gets from partial unique indexes is enforced here under the
// store lock: create-if-absent either inserts or hands back the existing live
// row, never both.
type MemoryStore struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]models.CampaignAssignment
	zones     map[uuid.UUID]models.ZoneAssignment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns: make(map[uuid.UUID]models.CampaignAssignment),
		zones:     make(map[uuid.UUID]models.ZoneAssignment),
	}
}

func (s *MemoryStore) FindLiveCampaignAssignment(ctx context.Context, riderID string, campaignID uuid.UUID) (*models.CampaignAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLiveCampaignLocked(riderID, campaignID)
}

func (s *MemoryStore) findLiveCampaignLocked(riderID string, campaignID uuid.UUID) (*models.CampaignAssignment, error) {
	for _, a := range s.campaigns {
		if a.RiderID == riderID && a.CampaignID == campaignID && a.Status.Live() {
			copied := a
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindLiveZoneAssignment(ctx context.Context, riderID string, zoneID uuid.UUID) (*models.ZoneAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLiveZoneLocked(riderID, zoneID)
}

func (s *MemoryStore) findLiveZoneLocked(riderID string, zoneID uuid.UUID) (*models.ZoneAssignment, error) {
	for _, a := range s.zones {
		if a.RiderID == riderID && a.ZoneID == zoneID && a.Status.Live() {
			copied := a
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListLiveZoneAssignments(ctx context.Context, riderID string) ([]*models.ZoneAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ZoneAssignment
	for _, a := range s.zones {
		if a.RiderID == riderID && a.Status.Live() {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

// CreateCampaignAssignmentIfAbsent inserts the assignment unless a live one
// already exists for (rider, campaign); the existing one is returned with
// created=false.
func (s *MemoryStore) CreateCampaignAssignmentIfAbsent(ctx context.Context, a *models.CampaignAssignment) (*models.CampaignAssignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, err := s.findLiveCampaignLocked(a.RiderID, a.CampaignID); err == nil {
		return existing, false, nil
	}
	s.campaigns[a.ID] = *a
	copied := *a
	return &copied, true, nil
}

// CreateZoneAssignmentIfAbsent inserts the assignment unless a live one
// already exists for (rider, zone).
func (s *MemoryStore) CreateZoneAssignmentIfAbsent(ctx context.Context, a *models.ZoneAssignment) (*models.ZoneAssignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, err := s.findLiveZoneLocked(a.RiderID, a.ZoneID); err == nil {
		return existing, false, nil
	}
	s.zones[a.ID] = *a
	copied := *a
	return &copied, true, nil
}

// UpdateZoneAssignment overwrites an existing assignment row, typically a
// status transition out of the live set.
func (s *MemoryStore) UpdateZoneAssignment(ctx context.Context, a *models.ZoneAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.zones[a.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.zones[a.ID] = *a
	return nil
}
