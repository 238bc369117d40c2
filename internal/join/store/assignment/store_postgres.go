package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"zonegate/internal/join/models"
	"zonegate/pkg/platform/sentinel"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists assignments in PostgreSQL. Correctness under
// concurrent joins comes from the partial unique indexes on
// (rider_id, campaign_id) and (rider_id, zone_id) WHERE status IN
// ('assigned','active'): create-if-absent is INSERT ... ON CONFLICT DO
// NOTHING, and the loser of a race reads back the winner's row. Application
// pre-checks are optimizations only.
type PostgresStore struct {
	q querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

const campaignColumns = `id, rider_id, campaign_id, status, assigned_at, started_at`
const zoneColumns = `id, rider_id, zone_id, campaign_assignment_id, status, assigned_at, started_at`

func (s *PostgresStore) FindLiveCampaignAssignment(ctx context.Context, riderID string, campaignID uuid.UUID) (*models.CampaignAssignment, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaign_assignments
		WHERE rider_id = $1 AND campaign_id = $2 AND status IN ('assigned', 'active')
	`
	a, err := scanCampaign(s.q.QueryRowContext(ctx, query, riderID, campaignID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find live campaign assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindLiveZoneAssignment(ctx context.Context, riderID string, zoneID uuid.UUID) (*models.ZoneAssignment, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zone_assignments
		WHERE rider_id = $1 AND zone_id = $2 AND status IN ('assigned', 'active')
	`
	a, err := scanZone(s.q.QueryRowContext(ctx, query, riderID, zoneID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find live zone assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListLiveZoneAssignments(ctx context.Context, riderID string) ([]*models.ZoneAssignment, error) {
	query := `
		SELECT ` + zoneColumns + `
		FROM zone_assignments
		WHERE rider_id = $1 AND status IN ('assigned', 'active')
		ORDER BY assigned_at DESC
	`
	rows, err := s.q.QueryContext(ctx, query, riderID)
	if err != nil {
		return nil, fmt.Errorf("list live zone assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.ZoneAssignment
	for rows.Next() {
		a, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list live zone assignments rows: %w", err)
	}
	return out, nil
}

// CreateCampaignAssignmentIfAbsent is conflict-safe create-if-absent: the
// insert hits the live-uniqueness index, and on conflict the existing live
// row is read back. A conflict with no readable live row means the row
// changed state mid-race; sentinel.ErrConflict tells the service to re-run
// duplicate resolution.
func (s *PostgresStore) CreateCampaignAssignmentIfAbsent(ctx context.Context, a *models.CampaignAssignment) (*models.CampaignAssignment, bool, error) {
	query := `
		INSERT INTO campaign_assignments (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (rider_id, campaign_id) WHERE status IN ('assigned', 'active') DO NOTHING
		RETURNING ` + campaignColumns + `
	`
	created, err := scanCampaign(s.q.QueryRowContext(ctx, query,
		a.ID, a.RiderID, a.CampaignID, a.Status, a.AssignedAt, a.StartedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, sentinel.ErrConflict
		}
		return nil, false, fmt.Errorf("create campaign assignment: %w", err)
	}

	existing, err := s.FindLiveCampaignAssignment(ctx, a.RiderID, a.CampaignID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, sentinel.ErrConflict
		}
		return nil, false, err
	}
	return existing, false, nil
}

// CreateZoneAssignmentIfAbsent mirrors the campaign variant for the
// (rider, zone) pair.
func (s *PostgresStore) CreateZoneAssignmentIfAbsent(ctx context.Context, a *models.ZoneAssignment) (*models.ZoneAssignment, bool, error) {
	query := `
		INSERT INTO zone_assignments (` + zoneColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (rider_id, zone_id) WHERE status IN ('assigned', 'active') DO NOTHING
		RETURNING ` + zoneColumns + `
	`
	created, err := scanZone(s.q.QueryRowContext(ctx, query,
		a.ID, a.RiderID, a.ZoneID, a.CampaignAssignmentID, a.Status, a.AssignedAt, a.StartedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, false, sentinel.ErrConflict
		}
		return nil, false, fmt.Errorf("create zone assignment: %w", err)
	}

	existing, err := s.FindLiveZoneAssignment(ctx, a.RiderID, a.ZoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, sentinel.ErrConflict
		}
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateZoneAssignment overwrites an existing row, typically a status
// transition out of the live set.
func (s *PostgresStore) UpdateZoneAssignment(ctx context.Context, a *models.ZoneAssignment) error {
	query := `
		UPDATE zone_assignments
		SET status = $2, started_at = $3
		WHERE id = $1
	`
	result, err := s.q.ExecContext(ctx, query, a.ID, a.Status, a.StartedAt)
	if err != nil {
		return fmt.Errorf("update zone assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update zone assignment rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func scanCampaign(r row) (*models.CampaignAssignment, error) {
	var a models.CampaignAssignment
	var startedAt sql.NullTime
	if err := r.Scan(&a.ID, &a.RiderID, &a.CampaignID, &a.Status, &a.AssignedAt, &startedAt); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	return &a, nil
}

func scanZone(r row) (*models.ZoneAssignment, error) {
	var a models.ZoneAssignment
	var startedAt sql.NullTime
	if err := r.Scan(&a.ID, &a.RiderID, &a.ZoneID, &a.CampaignAssignmentID, &a.Status, &a.AssignedAt, &startedAt); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	return &a, nil
}
