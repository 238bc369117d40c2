package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
)

// Kind distinguishes why a verification was requested.
type Kind string

const (
	KindJoin   Kind = "join"
	KindRandom Kind = "random"
	KindManual Kind = "manual"
)

// ParseKind validates a verification kind from external input.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindJoin, KindRandom, KindManual:
		return k, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid verification kind: "+s)
}

// Status is the lifecycle state of a verification attempt. Pending is the
// only non-terminal state; terminal states are never revisited.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPassed       Status = "passed"
	StatusFailed       Status = "failed"
	StatusManualReview Status = "manual_review"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusManualReview
}

// Diagnostics is the fixed-shape evaluation record attached to an attempt.
// A closed struct rather than an open map so callers can handle outcomes
// exhaustively.
type Diagnostics struct {
	ValidationType       string     `json:"validation_type"`
	ImageFormat          string     `json:"image_format,omitempty"`
	ImageBytes           int        `json:"image_bytes,omitempty"`
	Width                int        `json:"width,omitempty"`
	Height               int        `json:"height,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	ProcessedAt          time.Time  `json:"processed_at"`
	CampaignAssignmentID *uuid.UUID `json:"campaign_assignment_id,omitempty"`
	ZoneAssignmentID     *uuid.UUID `json:"zone_assignment_id,omitempty"`
	JoinCompletedAt      *time.Time `json:"join_completed_at,omitempty"`
}

// Outcome is the tagged verdict of evaluating an attempt: exactly one of
// passed, failed, or manual review, with a confidence score and diagnostics.
type Outcome struct {
	Status      Status      `json:"status"`
	Confidence  float64     `json:"confidence"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Attempt is a single proof-of-presence submission. Created once per
// submission, transitioned to a terminal status exactly once, and never
// deleted; the row is the audit trail.
type Attempt struct {
	ID             uuid.UUID   `json:"id"`
	RiderID        string      `json:"rider_id"`
	ZoneID         *uuid.UUID  `json:"zone_id,omitempty"`
	CampaignID     *uuid.UUID  `json:"campaign_id,omitempty"`
	Kind           Kind        `json:"kind"`
	ImageKey       string      `json:"image_key,omitempty"`
	Location       geo.Point   `json:"location"`
	AccuracyMeters float64     `json:"accuracy_meters"`
	CapturedAt     time.Time   `json:"captured_at"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	Status         Status      `json:"status"`
	Confidence     float64     `json:"confidence"`
	Diagnostics    Diagnostics `json:"diagnostics"`
}

// ApplyOutcome transitions a pending attempt to the outcome's terminal
// status. Attempts are immutable once terminal except for assignment-ID
// back-fill on pass.
func (a *Attempt) ApplyOutcome(o Outcome) error {
	if a.Status.Terminal() {
		return dErrors.New(dErrors.CodeConflict, "attempt already has a terminal status")
	}
	a.Status = o.Status
	a.Confidence = o.Confidence
	a.Diagnostics = o.Diagnostics
	return nil
}

// BackfillAssignments links a passed attempt to the assignments the join
// transaction created or reused.
func (a *Attempt) BackfillAssignments(campaignAssignmentID, zoneAssignmentID uuid.UUID, completedAt time.Time) {
	a.Diagnostics.CampaignAssignmentID = &campaignAssignmentID
	a.Diagnostics.ZoneAssignmentID = &zoneAssignmentID
	a.Diagnostics.JoinCompletedAt = &completedAt
}

// Cooldown is the per-(rider, kind) attempt ledger. Enforcement only needs to
// be conservative: last write wins on concurrent updates.
type Cooldown struct {
	RiderID       string    `json:"rider_id"`
	Kind          Kind      `json:"kind"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	AttemptCount  int       `json:"attempt_count"`
}

// Remaining returns how long the cooldown still blocks attempts at now,
// clamped to zero.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	if c == nil || !now.Before(c.ExpiresAt) {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}
