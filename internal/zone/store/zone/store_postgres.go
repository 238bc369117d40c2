package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"zonegate/internal/zone/models"
	"zonegate/pkg/platform/sentinel"
)

// querier abstracts *sql.DB and *sql.Tx so the same store runs standalone or
// inside the join transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists zones in PostgreSQL. Pure I/O; capacity policy
// lives in the conditional occupancy update, not in application reads.
type PostgresStore struct {
	q querier
}

// NewPostgres constructs a PostgreSQL-backed zone store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

// NewPostgresTx constructs a zone store bound to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

func (s *PostgresStore) Create(ctx context.Context, zone *models.Zone) error {
	query := `
		INSERT INTO zones (id, campaign_id, name, center_lat, center_lon, radius_meters, capacity, occupancy, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.q.ExecContext(ctx, query,
		zone.ID, zone.CampaignID, zone.Name,
		zone.Center.Latitude, zone.Center.Longitude, zone.RadiusMeters,
		zone.Capacity, zone.Occupancy, zone.Active, zone.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Zone, error) {
	query := `
		SELECT id, campaign_id, name, center_lat, center_lon, radius_meters, capacity, occupancy, active, created_at
		FROM zones
		WHERE id = $1
	`
	var zone models.Zone
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&zone.ID, &zone.CampaignID, &zone.Name,
		&zone.Center.Latitude, &zone.Center.Longitude, &zone.RadiusMeters,
		&zone.Capacity, &zone.Occupancy, &zone.Active, &zone.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &zone, nil
}

// IncrementOccupancy atomically bumps occupancy while spare capacity
// remains. The WHERE clause is the authoritative capacity guard: under
// concurrent joins at most capacity increments ever commit, no
// read-then-write involved.
func (s *PostgresStore) IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE zones
		SET occupancy = occupancy + 1
		WHERE id = $1 AND occupancy < capacity
	`
	result, err := s.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("increment zone occupancy: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment zone occupancy rows affected: %w", err)
	}
	return rows > 0, nil
}
