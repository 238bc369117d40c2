package cooldown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zonegate/internal/verification/models"
	"zonegate/pkg/platform/sentinel"
)

const cooldownKeyPrefix = "cooldown:"

// RedisStore is the distributed cooldown store for multi-instance
// deployments. Records expire with the cooldown itself plus a retention
// margin so attempt counters survive short gaps between attempts.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedis constructs a Redis-backed cooldown store. Retention bounds how
// long an idle record (and its attempt counter) outlives its expiry.
func NewRedis(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func redisKey(riderID string, kind models.Kind) string {
	return cooldownKeyPrefix + riderID + ":" + string(kind)
}

func (s *RedisStore) Get(ctx context.Context, riderID string, kind models.Kind) (*models.Cooldown, error) {
	payload, err := s.client.Get(ctx, redisKey(riderID, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	var record models.Cooldown
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode cooldown: %w", err)
	}
	return &record, nil
}

// Record reads, bumps, and rewrites the record. Not a strict atomic
// increment: concurrent writers race to last-write-wins, which is the
// documented cooldown semantics — a slightly stale counter at worst.
func (s *RedisStore) Record(ctx context.Context, riderID string, kind models.Kind, lastAttemptAt, expiresAt time.Time) (*models.Cooldown, error) {
	record, err := s.Get(ctx, riderID, kind)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		record = &models.Cooldown{RiderID: riderID, Kind: kind}
	}
	record.AttemptCount++
	record.LastAttemptAt = lastAttemptAt
	record.ExpiresAt = expiresAt

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode cooldown: %w", err)
	}
	ttl := expiresAt.Sub(lastAttemptAt) + s.retention
	if err := s.client.Set(ctx, redisKey(riderID, kind), payload, ttl).Err(); err != nil {
		return nil, fmt.Errorf("record cooldown: %w", err)
	}
	return record, nil
}
