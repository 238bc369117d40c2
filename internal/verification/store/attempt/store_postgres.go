package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"zonegate/internal/verification/models"
	"zonegate/pkg/platform/sentinel"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists verification attempts in PostgreSQL. Diagnostics are
// stored as JSONB but remain a fixed-shape struct in code.
type PostgresStore struct {
	q querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const attemptColumns = `id, rider_id, zone_id, campaign_id, kind, image_key, lat, lon, accuracy_meters, captured_at, submitted_at, status, confidence, diagnostics`

func (s *PostgresStore) Create(ctx context.Context, attempt *models.Attempt) error {
	diag, err := json.Marshal(attempt.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	query := `
		INSERT INTO verification_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.q.ExecContext(ctx, query,
		attempt.ID, attempt.RiderID, nullableUUID(attempt.ZoneID), nullableUUID(attempt.CampaignID),
		attempt.Kind, attempt.ImageKey,
		attempt.Location.Latitude, attempt.Location.Longitude, attempt.AccuracyMeters,
		attempt.CapturedAt, attempt.SubmittedAt,
		attempt.Status, attempt.Confidence, diag,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, attempt *models.Attempt) error {
	diag, err := json.Marshal(attempt.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	query := `
		UPDATE verification_attempts
		SET status = $2, confidence = $3, diagnostics = $4, image_key = $5,
		    lat = $6, lon = $7, accuracy_meters = $8, captured_at = $9
		WHERE id = $1
	`
	result, err := s.q.ExecContext(ctx, query,
		attempt.ID, attempt.Status, attempt.Confidence, diag, attempt.ImageKey,
		attempt.Location.Latitude, attempt.Location.Longitude, attempt.AccuracyMeters, attempt.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attempt rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM verification_attempts WHERE id = $1`
	attempt, err := scanAttempt(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

func (s *PostgresStore) FindRecentPassedJoin(ctx context.Context, riderID string, zoneID uuid.UUID, since time.Time) (*models.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM verification_attempts
		WHERE rider_id = $1 AND zone_id = $2 AND kind = $3 AND status = $4 AND submitted_at >= $5
		ORDER BY submitted_at DESC
		LIMIT 1
	`
	attempt, err := scanAttempt(s.q.QueryRowContext(ctx, query, riderID, zoneID, models.KindJoin, models.StatusPassed, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find recent passed join: %w", err)
	}
	return attempt, nil
}

func (s *PostgresStore) FindLatestPending(ctx context.Context, riderID string, kind models.Kind, since time.Time) (*models.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM verification_attempts
		WHERE rider_id = $1 AND kind = $2 AND status = $3 AND submitted_at >= $4
		ORDER BY submitted_at DESC
		LIMIT 1
	`
	attempt, err := scanAttempt(s.q.QueryRowContext(ctx, query, riderID, kind, models.StatusPending, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest pending: %w", err)
	}
	return attempt, nil
}

func (s *PostgresStore) ListByRider(ctx context.Context, riderID string, since time.Time, limit int) ([]*models.Attempt, error) {
	// limit <= 0 means unbounded; LIMIT 0 would silently return nothing.
	query := `
		SELECT ` + attemptColumns + `
		FROM verification_attempts
		WHERE rider_id = $1 AND submitted_at >= $2
		ORDER BY submitted_at DESC
	`
	args := []any{riderID, since}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts rows: %w", err)
	}
	return out, nil
}

type attemptRow interface {
	Scan(dest ...any) error
}

func scanAttempt(row attemptRow) (*models.Attempt, error) {
	var attempt models.Attempt
	var zoneID, campaignID sql.Null[uuid.UUID]
	var imageKey sql.NullString
	var confidence sql.NullFloat64
	var diag []byte
	err := row.Scan(
		&attempt.ID, &attempt.RiderID, &zoneID, &campaignID,
		&attempt.Kind, &imageKey,
		&attempt.Location.Latitude, &attempt.Location.Longitude, &attempt.AccuracyMeters,
		&attempt.CapturedAt, &attempt.SubmittedAt,
		&attempt.Status, &confidence, &diag,
	)
	if err != nil {
		return nil, err
	}
	if zoneID.Valid {
		attempt.ZoneID = &zoneID.V
	}
	if campaignID.Valid {
		attempt.CampaignID = &campaignID.V
	}
	attempt.ImageKey = imageKey.String
	attempt.Confidence = confidence.Float64
	if len(diag) > 0 {
		if err := json.Unmarshal(diag, &attempt.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
		}
	}
	return &attempt, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
