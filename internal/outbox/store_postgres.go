package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"zonegate/pkg/platform/sentinel"
)

// PostgresStore persists the queue in the queued_joins table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const queuedColumns = `id, rider_id, zone_id, lat, lon, accuracy_meters, captured_at,
	image_key, image_type, status, attempt_count, last_error, enqueued_at, updated_at`

func (s *PostgresStore) Enqueue(ctx context.Context, q *QueuedJoin) error {
	query := `
		INSERT INTO queued_joins (` + queuedColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		q.ID, q.RiderID, q.ZoneID, q.Location.Latitude, q.Location.Longitude,
		q.AccuracyMeters, q.CapturedAt, q.ImageKey, q.ImageContentType,
		q.Status, q.AttemptCount, nullable(q.LastError), q.EnqueuedAt, q.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("enqueue join: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*QueuedJoin, error) {
	query := `
		SELECT ` + queuedColumns + `
		FROM queued_joins
		WHERE status = 'queued'
		ORDER BY enqueued_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending joins: %w", err)
	}
	defer rows.Close()

	var out []*QueuedJoin
	for rows.Next() {
		q, err := scanQueued(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued join: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending joins rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, q *QueuedJoin) error {
	query := `
		UPDATE queued_joins
		SET status = $2, attempt_count = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		q.ID, q.Status, q.AttemptCount, nullable(q.LastError), q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update queued join: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update queued join rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*QueuedJoin, error) {
	query := `SELECT ` + queuedColumns + ` FROM queued_joins WHERE id = $1`
	q, err := scanQueued(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get queued join: %w", err)
	}
	return q, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanQueued(r row) (*QueuedJoin, error) {
	var q QueuedJoin
	var lastError sql.NullString
	if err := r.Scan(
		&q.ID, &q.RiderID, &q.ZoneID, &q.Location.Latitude, &q.Location.Longitude,
		&q.AccuracyMeters, &q.CapturedAt, &q.ImageKey, &q.ImageContentType,
		&q.Status, &q.AttemptCount, &lastError, &q.EnqueuedAt, &q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	q.LastError = lastError.String
	return &q, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
