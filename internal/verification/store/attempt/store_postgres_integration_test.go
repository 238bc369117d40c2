//go:build integration

package attempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"zonegate/internal/verification/models"
	attemptstore "zonegate/internal/verification/store/attempt"
	"zonegate/pkg/geo"
	"zonegate/pkg/testutil/containers"
)

type PostgresAttemptSuite struct {
	suite.Suite

	pg    *containers.PostgresContainer
	store *attemptstore.PostgresStore

	ctx context.Context
	now time.Time
}

func TestPostgresAttemptSuite(t *testing.T) {
	suite.Run(t, new(PostgresAttemptSuite))
}

func (s *PostgresAttemptSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = attemptstore.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresAttemptSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "verification_attempts"))
	s.now = time.Now().UTC().Truncate(time.Millisecond)
}

func (s *PostgresAttemptSuite) seed(riderID string, submittedAt time.Time, status models.Status) *models.Attempt {
	attempt := &models.Attempt{
		ID:             uuid.New(),
		RiderID:        riderID,
		Kind:           models.KindRandom,
		Location:       geo.Point{Latitude: 40.0, Longitude: -74.0},
		AccuracyMeters: 5,
		CapturedAt:     submittedAt,
		SubmittedAt:    submittedAt,
		Status:         status,
	}
	s.Require().NoError(s.store.Create(s.ctx, attempt))
	return attempt
}

func (s *PostgresAttemptSuite) TestListByRiderZeroLimitReturnsEverything() {
	for i := 0; i < 5; i++ {
		s.seed("rider-1", s.now.Add(time.Duration(i)*time.Minute), models.StatusPassed)
	}

	attempts, err := s.store.ListByRider(s.ctx, "rider-1", time.Time{}, 0)
	s.Require().NoError(err)
	s.Len(attempts, 5)
}

func (s *PostgresAttemptSuite) TestListByRiderHonorsPositiveLimit() {
	for i := 0; i < 5; i++ {
		s.seed("rider-1", s.now.Add(time.Duration(i)*time.Minute), models.StatusPassed)
	}

	attempts, err := s.store.ListByRider(s.ctx, "rider-1", time.Time{}, 2)
	s.Require().NoError(err)
	s.Require().Len(attempts, 2)
	s.True(attempts[0].SubmittedAt.After(attempts[1].SubmittedAt))
}

func (s *PostgresAttemptSuite) TestListByRiderFiltersBySince() {
	s.seed("rider-1", s.now.Add(-48*time.Hour), models.StatusFailed)
	recent := s.seed("rider-1", s.now, models.StatusPassed)

	attempts, err := s.store.ListByRider(s.ctx, "rider-1", s.now.Add(-24*time.Hour), 0)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal(recent.ID, attempts[0].ID)
}

func (s *PostgresAttemptSuite) TestListByRiderIsScopedToRider() {
	s.seed("rider-1", s.now, models.StatusPassed)
	s.seed("rider-2", s.now, models.StatusPassed)

	attempts, err := s.store.ListByRider(s.ctx, "rider-1", time.Time{}, 0)
	s.Require().NoError(err)
	s.Require().Len(attempts, 1)
	s.Equal("rider-1", attempts[0].RiderID)
}
