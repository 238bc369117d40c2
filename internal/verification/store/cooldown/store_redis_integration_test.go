//go:build integration

package cooldown_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zonegate/internal/verification/models"
	cooldownstore "zonegate/internal/verification/store/cooldown"
	"zonegate/pkg/platform/sentinel"
	"zonegate/pkg/testutil/containers"
)

type RedisCooldownSuite struct {
	suite.Suite

	redis *containers.RedisContainer
	store *cooldownstore.RedisStore

	ctx context.Context
}

func TestRedisCooldownSuite(t *testing.T) {
	suite.Run(t, new(RedisCooldownSuite))
}

func (s *RedisCooldownSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = cooldownstore.NewRedis(s.redis.Client, time.Hour)
	s.ctx = context.Background()
}

func (s *RedisCooldownSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisCooldownSuite) TestGetUnknownRiderIsNotFound() {
	_, err := s.store.Get(s.ctx, "rider-1", models.KindJoin)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCooldownSuite) TestRecordThenGetRoundTrip() {
	now := time.Now().UTC().Truncate(time.Millisecond)
	recorded, err := s.store.Record(s.ctx, "rider-1", models.KindJoin, now, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, recorded.AttemptCount)

	got, err := s.store.Get(s.ctx, "rider-1", models.KindJoin)
	s.Require().NoError(err)
	s.Equal("rider-1", got.RiderID)
	s.Equal(models.KindJoin, got.Kind)
	s.True(got.LastAttemptAt.Equal(now))
	s.True(got.ExpiresAt.Equal(now.Add(time.Minute)))
}

func (s *RedisCooldownSuite) TestRepeatedRecordsIncrementAttemptCount() {
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := s.store.Record(s.ctx, "rider-1", models.KindRandom, now, now.Add(5*time.Minute))
		s.Require().NoError(err)
	}

	got, err := s.store.Get(s.ctx, "rider-1", models.KindRandom)
	s.Require().NoError(err)
	s.Equal(3, got.AttemptCount)
}

func (s *RedisCooldownSuite) TestKindsAreIsolated() {
	now := time.Now().UTC()
	_, err := s.store.Record(s.ctx, "rider-1", models.KindJoin, now, now.Add(time.Minute))
	s.Require().NoError(err)

	_, err = s.store.Get(s.ctx, "rider-1", models.KindRandom)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
