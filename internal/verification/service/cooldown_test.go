package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zonegate/internal/verification/models"
	cooldownstore "zonegate/internal/verification/store/cooldown"
)

type CooldownServiceSuite struct {
	suite.Suite

	service *CooldownService

	ctx context.Context
	now time.Time
}

func TestCooldownServiceSuite(t *testing.T) {
	suite.Run(t, new(CooldownServiceSuite))
}

func (s *CooldownServiceSuite) SetupTest() {
	svc, err := NewCooldownService(cooldownstore.NewMemoryStore())
	s.Require().NoError(err)
	s.service = svc

	s.ctx = context.Background()
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *CooldownServiceSuite) remaining(kind models.Kind, at time.Time) time.Duration {
	remaining, err := s.service.Check(s.ctx, "rider-1", kind, at)
	s.Require().NoError(err)
	return remaining
}

func (s *CooldownServiceSuite) TestNoLedgerEntryIsClear() {
	s.Equal(time.Duration(0), s.remaining(models.KindJoin, s.now))
}

func (s *CooldownServiceSuite) TestApplyArmsBaseWindow() {
	s.Require().NoError(s.service.Apply(s.ctx, "rider-1", models.KindJoin, s.now, 0))

	s.Equal(60*time.Second, s.remaining(models.KindJoin, s.now))
	s.Equal(time.Duration(0), s.remaining(models.KindJoin, s.now.Add(61*time.Second)))
}

func (s *CooldownServiceSuite) TestExtensionLengthensWindow() {
	s.Require().NoError(s.service.Apply(s.ctx, "rider-1", models.KindJoin, s.now, 90*time.Second))

	s.Equal(30*time.Second, s.remaining(models.KindJoin, s.now.Add(2*time.Minute)))
	s.Equal(time.Duration(0), s.remaining(models.KindJoin, s.now.Add(151*time.Second)))
}

func (s *CooldownServiceSuite) TestNegativeExtensionFallsBackToBase() {
	s.Require().NoError(s.service.Apply(s.ctx, "rider-1", models.KindJoin, s.now, -time.Hour))

	s.Equal(60*time.Second, s.remaining(models.KindJoin, s.now))
}

func (s *CooldownServiceSuite) TestKindsAreIndependent() {
	s.Require().NoError(s.service.Apply(s.ctx, "rider-1", models.KindRandom, s.now, 0))

	s.Equal(300*time.Second, s.remaining(models.KindRandom, s.now))
	s.Equal(time.Duration(0), s.remaining(models.KindJoin, s.now))
}
