package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zonegate/internal/verification/models"
	"zonegate/pkg/platform/sentinel"
)

// PostgresStore persists cooldown records in PostgreSQL. Pure I/O; duration
// policy (which kind waits how long) belongs to the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, riderID string, kind models.Kind) (*models.Cooldown, error) {
	query := `
		SELECT rider_id, kind, last_attempt_at, expires_at, attempt_count
		FROM verification_cooldowns
		WHERE rider_id = $1 AND kind = $2
	`
	var record models.Cooldown
	err := s.db.QueryRowContext(ctx, query, riderID, kind).Scan(
		&record.RiderID, &record.Kind, &record.LastAttemptAt, &record.ExpiresAt, &record.AttemptCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return &record, nil
}

// Record atomically upserts the cooldown in a single statement: insert on
// first attempt, otherwise increment the counter and overwrite timestamps.
func (s *PostgresStore) Record(ctx context.Context, riderID string, kind models.Kind, lastAttemptAt, expiresAt time.Time) (*models.Cooldown, error) {
	query := `
		INSERT INTO verification_cooldowns (rider_id, kind, last_attempt_at, expires_at, attempt_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (rider_id, kind) DO UPDATE SET
			last_attempt_at = EXCLUDED.last_attempt_at,
			expires_at = EXCLUDED.expires_at,
			attempt_count = verification_cooldowns.attempt_count + 1
		RETURNING rider_id, kind, last_attempt_at, expires_at, attempt_count
	`
	var record models.Cooldown
	err := s.db.QueryRowContext(ctx, query, riderID, kind, lastAttemptAt, expiresAt).Scan(
		&record.RiderID, &record.Kind, &record.LastAttemptAt, &record.ExpiresAt, &record.AttemptCount,
	)
	if err != nil {
		return nil, fmt.Errorf("record cooldown: %w", err)
	}
	return &record, nil
}
