package assignment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"zonegate/internal/join/models"
	"zonegate/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) zoneAssignment(riderID string, zoneID uuid.UUID) *models.ZoneAssignment {
	return &models.ZoneAssignment{
		ID:                   uuid.New(),
		RiderID:              riderID,
		ZoneID:               zoneID,
		CampaignAssignmentID: uuid.New(),
		Status:               models.AssignmentActive,
		AssignedAt:           s.now,
	}
}

func (s *MemoryStoreSuite) TestCreateZoneAssignmentIfAbsent() {
	zoneID := uuid.New()

	first, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", zoneID))
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", zoneID))
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
}

func (s *MemoryStoreSuite) TestCreateAfterTerminalStatusMakesNewRow() {
	zoneID := uuid.New()
	a := s.zoneAssignment("rider-1", zoneID)
	a.Status = models.AssignmentCancelled
	s.store.zones[a.ID] = *a

	created, wasCreated, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", zoneID))
	s.Require().NoError(err)
	s.True(wasCreated)
	s.NotEqual(a.ID, created.ID)
}

func (s *MemoryStoreSuite) TestFindLiveZoneAssignment() {
	zoneID := uuid.New()
	_, err := s.store.FindLiveZoneAssignment(s.ctx, "rider-1", zoneID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	a, _, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", zoneID))
	s.Require().NoError(err)

	got, err := s.store.FindLiveZoneAssignment(s.ctx, "rider-1", zoneID)
	s.Require().NoError(err)
	s.Equal(a.ID, got.ID)

	_, err = s.store.FindLiveZoneAssignment(s.ctx, "rider-2", zoneID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestListLiveZoneAssignments() {
	_, _, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", uuid.New()))
	s.Require().NoError(err)
	_, _, err = s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", uuid.New()))
	s.Require().NoError(err)
	_, _, err = s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-2", uuid.New()))
	s.Require().NoError(err)

	list, err := s.store.ListLiveZoneAssignments(s.ctx, "rider-1")
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *MemoryStoreSuite) TestCreateCampaignAssignmentIfAbsent() {
	campaignID := uuid.New()
	make := func() *models.CampaignAssignment {
		return &models.CampaignAssignment{
			ID:         uuid.New(),
			RiderID:    "rider-1",
			CampaignID: campaignID,
			Status:     models.AssignmentActive,
			AssignedAt: s.now,
		}
	}

	first, created, err := s.store.CreateCampaignAssignmentIfAbsent(s.ctx, make())
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.store.CreateCampaignAssignmentIfAbsent(s.ctx, make())
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
}

// Racing create-if-absent calls must agree on a single winner.
func (s *MemoryStoreSuite) TestConcurrentCreateZoneAssignment() {
	zoneID := uuid.New()
	const goroutines = 32

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, goroutines)
	createdCount := make(chan bool, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, s.zoneAssignment("rider-1", zoneID))
			s.NoError(err)
			ids <- a.ID
			createdCount <- created
		}()
	}
	wg.Wait()
	close(ids)
	close(createdCount)

	unique := make(map[uuid.UUID]bool)
	for id := range ids {
		unique[id] = true
	}
	s.Len(unique, 1)

	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	s.Equal(1, wins)
}
