package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/join/models"
	ridermodels "zonegate/internal/rider/models"
	verificationmodels "zonegate/internal/verification/models"
	zonemodels "zonegate/internal/zone/models"
)

// ZoneStore is the zone surface the coordinator needs. IncrementOccupancy is
// the authoritative capacity guard: it succeeds only while spare capacity
// remains.
type ZoneStore interface {
	Get(ctx context.Context, id uuid.UUID) (*zonemodels.Zone, error)
	IncrementOccupancy(ctx context.Context, id uuid.UUID) (bool, error)
}

// AssignmentStore persists campaign and zone assignments. The create-if-absent
// operations are the exactly-once primitive: under a race exactly one caller
// observes created=true.
type AssignmentStore interface {
	FindLiveCampaignAssignment(ctx context.Context, riderID string, campaignID uuid.UUID) (*models.CampaignAssignment, error)
	FindLiveZoneAssignment(ctx context.Context, riderID string, zoneID uuid.UUID) (*models.ZoneAssignment, error)
	CreateCampaignAssignmentIfAbsent(ctx context.Context, a *models.CampaignAssignment) (*models.CampaignAssignment, bool, error)
	CreateZoneAssignmentIfAbsent(ctx context.Context, a *models.ZoneAssignment) (*models.ZoneAssignment, bool, error)
}

// AttemptStore records verification attempts.
type AttemptStore interface {
	Create(ctx context.Context, attempt *verificationmodels.Attempt) error
	Update(ctx context.Context, attempt *verificationmodels.Attempt) error
	FindRecentPassedJoin(ctx context.Context, riderID string, zoneID uuid.UUID, since time.Time) (*verificationmodels.Attempt, error)
}

// RiderStore exposes rider availability and assignment linkage.
type RiderStore interface {
	Get(ctx context.Context, riderID string) (*ridermodels.Rider, error)
	SetCurrentAssignment(ctx context.Context, riderID string, assignmentID uuid.UUID) error
}

// TxStores bundles the store handles visible inside a commit transaction.
// Every mutation in the join commit goes through these so the whole commit is
// atomic: either all rows land or none do.
type TxStores struct {
	Zones       ZoneStore
	Assignments AssignmentStore
	Attempts    AttemptStore
	Riders      RiderStore
}

// StoreTx provides the transactional boundary for the join commit.
// Implementations wrap a database transaction or, in-memory, a coarse lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores TxStores) error) error
}
