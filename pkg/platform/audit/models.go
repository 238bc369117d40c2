package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose, enabling
// different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with contractual significance:
	// assignments created, occupancy changes billed to a campaign.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to fraud monitoring:
	// verification failures, anomalous duplicate joins.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory `json:"category"`
	Timestamp    time.Time     `json:"timestamp"`
	RiderID      string        `json:"rider_id"`
	ZoneID       string        `json:"zone_id,omitempty"`
	CampaignID   string        `json:"campaign_id,omitempty"`
	AssignmentID string        `json:"assignment_id,omitempty"`
	AttemptID    string        `json:"attempt_id,omitempty"`
	Action       Action        `json:"action"`
	Reason       string        `json:"reason,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
}

// Action is the closed vocabulary of audited actions.
type Action string

const (
	EventJoinCommitted           Action = "join_committed"
	EventJoinDuplicate           Action = "join_duplicate"
	EventJoinDuplicateUnverified Action = "join_duplicate_unverified"
	EventJoinRejected            Action = "join_rejected"
	EventVerificationFailed      Action = "verification_failed"
	EventVerificationPassed      Action = "verification_passed"
)
