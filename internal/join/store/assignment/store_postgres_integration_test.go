//go:build integration

package assignment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"zonegate/internal/join/models"
	assignmentstore "zonegate/internal/join/store/assignment"
	zonemodels "zonegate/internal/zone/models"
	zonestore "zonegate/internal/zone/store/zone"
	"zonegate/pkg/geo"
	"zonegate/pkg/platform/sentinel"
	"zonegate/pkg/testutil/containers"
)

type PostgresAssignmentSuite struct {
	suite.Suite

	pg    *containers.PostgresContainer
	store *assignmentstore.PostgresStore
	zones *zonestore.PostgresStore

	ctx        context.Context
	zoneID     uuid.UUID
	campaignID uuid.UUID
}

func TestPostgresAssignmentSuite(t *testing.T) {
	suite.Run(t, new(PostgresAssignmentSuite))
}

func (s *PostgresAssignmentSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = assignmentstore.NewPostgres(s.pg.DB)
	s.zones = zonestore.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresAssignmentSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "zone_assignments", "campaign_assignments", "zones"))

	s.zoneID = uuid.New()
	s.campaignID = uuid.New()
	s.Require().NoError(s.zones.Create(s.ctx, &zonemodels.Zone{
		ID:           s.zoneID,
		CampaignID:   s.campaignID,
		Name:         "integration-zone",
		Center:       geo.Point{Latitude: 40.0, Longitude: -74.0},
		RadiusMeters: 100,
		Capacity:     10,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}))
}

func (s *PostgresAssignmentSuite) campaignAssignment(riderID string) *models.CampaignAssignment {
	return &models.CampaignAssignment{
		ID:         uuid.New(),
		RiderID:    riderID,
		CampaignID: s.campaignID,
		Status:     models.AssignmentAssigned,
		AssignedAt: time.Now().UTC(),
	}
}

func (s *PostgresAssignmentSuite) TestCreateIfAbsentReturnsExistingLiveRow() {
	campaign, created, err := s.store.CreateCampaignAssignmentIfAbsent(s.ctx, s.campaignAssignment("rider-1"))
	s.Require().NoError(err)
	s.True(created)

	zoneA := &models.ZoneAssignment{
		ID:                   uuid.New(),
		RiderID:              "rider-1",
		ZoneID:               s.zoneID,
		CampaignAssignmentID: campaign.ID,
		Status:               models.AssignmentAssigned,
		AssignedAt:           time.Now().UTC(),
	}
	first, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, zoneA)
	s.Require().NoError(err)
	s.True(created)

	duplicate := *zoneA
	duplicate.ID = uuid.New()
	second, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, &duplicate)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
}

func (s *PostgresAssignmentSuite) TestConcurrentCreateIfAbsentHasOneWinner() {
	campaign, _, err := s.store.CreateCampaignAssignmentIfAbsent(s.ctx, s.campaignAssignment("rider-1"))
	s.Require().NoError(err)

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan bool, racers)
	ids := make(chan uuid.UUID, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := &models.ZoneAssignment{
				ID:                   uuid.New(),
				RiderID:              "rider-1",
				ZoneID:               s.zoneID,
				CampaignAssignmentID: campaign.ID,
				Status:               models.AssignmentAssigned,
				AssignedAt:           time.Now().UTC(),
			}
			got, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, a)
			if err != nil {
				return
			}
			results <- created
			ids <- got.ID
		}()
	}
	wg.Wait()
	close(results)
	close(ids)

	var winners int
	for created := range results {
		if created {
			winners++
		}
	}
	s.Equal(1, winners)

	unique := map[uuid.UUID]struct{}{}
	for id := range ids {
		unique[id] = struct{}{}
	}
	s.Len(unique, 1)
}

func (s *PostgresAssignmentSuite) TestTerminalRowDoesNotBlockRejoin() {
	campaign, _, err := s.store.CreateCampaignAssignmentIfAbsent(s.ctx, s.campaignAssignment("rider-1"))
	s.Require().NoError(err)

	first := &models.ZoneAssignment{
		ID:                   uuid.New(),
		RiderID:              "rider-1",
		ZoneID:               s.zoneID,
		CampaignAssignmentID: campaign.ID,
		Status:               models.AssignmentAssigned,
		AssignedAt:           time.Now().UTC(),
	}
	_, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, first)
	s.Require().NoError(err)
	s.Require().True(created)

	first.Status = models.AssignmentCancelled
	s.Require().NoError(s.store.UpdateZoneAssignment(s.ctx, first))

	_, err = s.store.FindLiveZoneAssignment(s.ctx, "rider-1", s.zoneID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	fresh := &models.ZoneAssignment{
		ID:                   uuid.New(),
		RiderID:              "rider-1",
		ZoneID:               s.zoneID,
		CampaignAssignmentID: campaign.ID,
		Status:               models.AssignmentAssigned,
		AssignedAt:           time.Now().UTC(),
	}
	created2, created, err := s.store.CreateZoneAssignmentIfAbsent(s.ctx, fresh)
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, created2.ID)
}
