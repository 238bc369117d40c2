package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "zonegate/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			category, occurred_at, rider_id, zone_id, campaign_id,
			assignment_id, attempt_id, action, reason, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Category, event.Timestamp, event.RiderID,
		nullable(event.ZoneID), nullable(event.CampaignID),
		nullable(event.AssignmentID), nullable(event.AttemptID),
		event.Action, nullable(event.Reason), nullable(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByRider(ctx context.Context, riderID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, rider_id, zone_id, campaign_id,
		       assignment_id, attempt_id, action, reason, request_id
		FROM audit_events
		WHERE rider_id = $1
		ORDER BY occurred_at`,
		riderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var zoneID, campaignID, assignmentID, attemptID, reason, requestID sql.NullString
		if err := rows.Scan(
			&e.Category, &e.Timestamp, &e.RiderID, &zoneID, &campaignID,
			&assignmentID, &attemptID, &e.Action, &reason, &requestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ZoneID = zoneID.String
		e.CampaignID = campaignID.String
		e.AssignmentID = assignmentID.String
		e.AttemptID = attemptID.String
		e.Reason = reason.String
		e.RequestID = requestID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
