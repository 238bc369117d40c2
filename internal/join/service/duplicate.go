package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/join/models"
	verificationmodels "zonegate/internal/verification/models"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/platform/sentinel"
)

// Resolution classifies a retried join against the rider's existing state.
type Resolution int

const (
	// ResolutionFresh: no live assignment for this (rider, zone); the join
	// proceeds as a first attempt.
	ResolutionFresh Resolution = iota

	// ResolutionVerifiedDuplicate: a live assignment exists and a passed join
	// attempt within the window backs it. The classic retry-after-commit case;
	// the existing assignment is returned as success.
	ResolutionVerifiedDuplicate

	// ResolutionUnverifiedDuplicate: a live assignment exists but no recent
	// passed attempt backs it. Still resolved to the existing assignment, but
	// flagged for audit: it usually means the attempt trail and the
	// assignment rows disagree.
	ResolutionUnverifiedDuplicate
)

// defaultDuplicateWindow bounds how far back a passed attempt can be and
// still vouch for a live assignment.
const defaultDuplicateWindow = time.Hour

// duplicateResolution carries the evidence behind a non-fresh resolution.
type duplicateResolution struct {
	Resolution Resolution
	Assignment *models.ZoneAssignment
	Attempt    *verificationmodels.Attempt
}

// resolveDuplicate classifies the join attempt against existing live state.
// Read-only: callers decide what to do with the classification.
func (s *Service) resolveDuplicate(ctx context.Context, riderID string, zoneID uuid.UUID, now time.Time) (duplicateResolution, error) {
	existing, err := s.assignments.FindLiveZoneAssignment(ctx, riderID, zoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return duplicateResolution{Resolution: ResolutionFresh}, nil
		}
		return duplicateResolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up live assignment")
	}

	attempt, err := s.attempts.FindRecentPassedJoin(ctx, riderID, zoneID, now.Add(-s.duplicateWindow))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return duplicateResolution{
				Resolution: ResolutionUnverifiedDuplicate,
				Assignment: existing,
			}, nil
		}
		return duplicateResolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up recent passed attempt")
	}

	return duplicateResolution{
		Resolution: ResolutionVerifiedDuplicate,
		Assignment: existing,
		Attempt:    attempt,
	}, nil
}
