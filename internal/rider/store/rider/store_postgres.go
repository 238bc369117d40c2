package rider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"zonegate/internal/rider/models"
	"zonegate/pkg/platform/sentinel"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the rider directory view in PostgreSQL.
type PostgresStore struct {
	q querier
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{q: tx}
}

func (s *PostgresStore) Get(ctx context.Context, riderID string) (*models.Rider, error) {
	query := `
		SELECT id, available, current_assignment_id
		FROM riders
		WHERE id = $1
	`
	var rider models.Rider
	var current sql.Null[uuid.UUID]
	err := s.q.QueryRowContext(ctx, query, riderID).Scan(&rider.ID, &rider.Available, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get rider: %w", err)
	}
	if current.Valid {
		rider.CurrentAssignmentID = &current.V
	}
	return &rider, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rider *models.Rider) error {
	query := `
		INSERT INTO riders (id, available, current_assignment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			available = EXCLUDED.available,
			current_assignment_id = EXCLUDED.current_assignment_id
	`
	var current any
	if rider.CurrentAssignmentID != nil {
		current = *rider.CurrentAssignmentID
	}
	if _, err := s.q.ExecContext(ctx, query, rider.ID, rider.Available, current); err != nil {
		return fmt.Errorf("upsert rider: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetCurrentAssignment(ctx context.Context, riderID string, assignmentID uuid.UUID) error {
	query := `
		INSERT INTO riders (id, available, current_assignment_id)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (id) DO UPDATE SET
			current_assignment_id = EXCLUDED.current_assignment_id
	`
	if _, err := s.q.ExecContext(ctx, query, riderID, assignmentID); err != nil {
		return fmt.Errorf("set current assignment: %w", err)
	}
	return nil
}
