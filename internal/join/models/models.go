package models

import (
	"time"

	"github.com/google/uuid"

	verificationmodels "zonegate/internal/verification/models"
)

// AssignmentStatus is the lifecycle of a rider assignment.
type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentActive    AssignmentStatus = "active"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Live reports whether the assignment currently occupies a slot. The store
// enforces at most one live assignment per (rider, zone) and per
// (rider, campaign) via partial uniqueness; Live mirrors that predicate.
func (s AssignmentStatus) Live() bool {
	return s == AssignmentAssigned || s == AssignmentActive
}

// CampaignAssignment links a rider to a campaign.
type CampaignAssignment struct {
	ID         uuid.UUID        `json:"id"`
	RiderID    string           `json:"rider_id"`
	CampaignID uuid.UUID        `json:"campaign_id"`
	Status     AssignmentStatus `json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
}

// ZoneAssignment links a rider to a specific zone within a campaign.
type ZoneAssignment struct {
	ID                   uuid.UUID        `json:"id"`
	RiderID              string           `json:"rider_id"`
	ZoneID               uuid.UUID        `json:"zone_id"`
	CampaignAssignmentID uuid.UUID        `json:"campaign_assignment_id"`
	Status               AssignmentStatus `json:"status"`
	AssignedAt           time.Time        `json:"assigned_at"`
	StartedAt            *time.Time       `json:"started_at,omitempty"`
}

// JoinResult is the success payload of a join. Duplicate marks a retry that
// resolved to an existing live assignment; in that case Attempt may be nil
// because no new verification was recorded.
type JoinResult struct {
	Duplicate          bool                        `json:"duplicate"`
	CampaignAssignment *CampaignAssignment         `json:"campaign_assignment"`
	ZoneAssignment     *ZoneAssignment             `json:"zone_assignment"`
	Attempt            *verificationmodels.Attempt `json:"attempt,omitempty"`
}

// EligibilityResult is the read-only probe response. Reasons lists every
// blocking condition found, not just the first, so the client can render them
// all.
type EligibilityResult struct {
	CanJoin                  bool     `json:"can_join"`
	Reasons                  []string `json:"reasons"`
	CooldownRemainingSeconds int      `json:"cooldown_remaining_seconds"`
	DistanceMeters           float64  `json:"distance_meters"`
}
