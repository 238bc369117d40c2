// Package service orchestrates the join flow: preconditions, photo
// verification, and the atomic assignment commit. Handlers stay thin; all
// ordering and exactly-once rules live here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/join/metrics"
	"zonegate/internal/join/models"
	verificationmodels "zonegate/internal/verification/models"
	zonemodels "zonegate/internal/zone/models"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
	audit "zonegate/pkg/platform/audit"
	"zonegate/pkg/platform/sentinel"
	"zonegate/pkg/requestcontext"
)

// defaultMaxAccuracyTolerance caps how much a reported GPS accuracy can widen
// the zone boundary.
const defaultMaxAccuracyTolerance = 50.0

// Processor evaluates proof images into a terminal verdict.
type Processor interface {
	Evaluate(kind verificationmodels.Kind, imageBytes []byte, submittedAt time.Time) verificationmodels.Outcome
}

// Cooldowns gates attempt frequency per (rider, kind).
type Cooldowns interface {
	Check(ctx context.Context, riderID string, kind verificationmodels.Kind, now time.Time) (time.Duration, error)
	Apply(ctx context.Context, riderID string, kind verificationmodels.Kind, now time.Time, extra time.Duration) error
}

// ImageStore persists the proof photo; attempt rows carry only the key.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// AuditPublisher records domain events for the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// JoinRequest is the validated input of a join attempt.
type JoinRequest struct {
	RiderID          string
	ZoneID           uuid.UUID
	Location         geo.Point
	AccuracyMeters   float64
	CapturedAt       time.Time
	Image            []byte
	ImageContentType string
}

// Service coordinates join attempts. Reads run against the plain stores;
// the commit runs inside tx so assignment rows, the occupancy counter, the
// rider linkage, and the attempt verdict land atomically.
type Service struct {
	tx          StoreTx
	zones       ZoneStore
	assignments AssignmentStore
	attempts    AttemptStore
	riders      RiderStore
	cooldowns   Cooldowns
	images      ImageStore
	processor   Processor

	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger

	maxAccuracyTolerance float64
	duplicateWindow      time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxAccuracyTolerance overrides the cap on GPS-accuracy boundary
// widening.
func WithMaxAccuracyTolerance(meters float64) Option {
	return func(s *Service) {
		s.maxAccuracyTolerance = meters
	}
}

// WithDuplicateWindow overrides how far back a passed attempt can vouch for
// an existing live assignment.
func WithDuplicateWindow(window time.Duration) Option {
	return func(s *Service) {
		s.duplicateWindow = window
	}
}

func New(
	tx StoreTx,
	zones ZoneStore,
	assignments AssignmentStore,
	attempts AttemptStore,
	riders RiderStore,
	cooldowns Cooldowns,
	images ImageStore,
	proc Processor,
	opts ...Option,
) (*Service, error) {
	if tx == nil {
		return nil, errors.New("store tx is required")
	}
	if zones == nil || assignments == nil || attempts == nil || riders == nil {
		return nil, errors.New("all stores are required")
	}
	if cooldowns == nil {
		return nil, errors.New("cooldown service is required")
	}
	if images == nil {
		return nil, errors.New("image store is required")
	}
	if proc == nil {
		return nil, errors.New("processor is required")
	}

	svc := &Service{
		tx:                   tx,
		zones:                zones,
		assignments:          assignments,
		attempts:             attempts,
		riders:               riders,
		cooldowns:            cooldowns,
		images:               images,
		processor:            proc,
		logger:               slog.Default(),
		maxAccuracyTolerance: defaultMaxAccuracyTolerance,
		duplicateWindow:      defaultDuplicateWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckEligibility is the read-only probe behind GET /zones/{id}/eligibility.
// It reports every blocking condition found, not just the first, and never
// mutates state: no attempt rows, no cooldown writes, no assignments.
func (s *Service) CheckEligibility(ctx context.Context, riderID string, zoneID uuid.UUID, location geo.Point, accuracyMeters float64) (*models.EligibilityResult, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.EligibilityResult{
				CanJoin: false,
				Reasons: []string{string(models.FailureZoneNotFound)},
			}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load zone")
	}

	result := &models.EligibilityResult{
		DistanceMeters: geo.Distance(location, zone.Center),
	}
	if !zone.Active {
		result.Reasons = append(result.Reasons, string(models.FailureZoneNotFound))
	}

	remaining, err := s.cooldowns.Check(ctx, riderID, verificationmodels.KindJoin, now)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		result.Reasons = append(result.Reasons, string(models.FailureCooldownActive))
		result.CooldownRemainingSeconds = int(remaining.Seconds())
	}

	if _, err := s.assignments.FindLiveZoneAssignment(ctx, riderID, zoneID); err == nil {
		result.Reasons = append(result.Reasons, "already_assigned")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up live assignment")
	}

	if !zone.Contains(location, accuracyMeters, s.maxAccuracyTolerance) {
		result.Reasons = append(result.Reasons, string(models.FailureOutOfBounds))
	}
	if !zone.HasCapacity() {
		result.Reasons = append(result.Reasons, string(models.FailureZoneFull))
	}

	if available, err := s.riderAvailable(ctx, riderID); err != nil {
		return nil, err
	} else if !available {
		result.Reasons = append(result.Reasons, string(models.FailureRiderUnavailable))
	}

	result.CanJoin = len(result.Reasons) == 0
	return result, nil
}

// Join runs the full flow: preconditions in a fixed order, photo
// verification, then the atomic commit. Expected rejections come back as
// *models.Failure; anything else is an internal fault.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*models.JoinResult, error) {
	started := time.Now()
	result, err := s.join(ctx, req)
	s.metrics.ObserveJoinLatency(time.Since(started))

	switch {
	case err == nil && result.Duplicate:
		s.metrics.IncrementOutcome("duplicate")
	case err == nil:
		s.metrics.IncrementOutcome("committed")
	default:
		if _, ok := models.AsFailure(err); ok {
			s.metrics.IncrementOutcome("rejected")
		} else {
			s.metrics.IncrementOutcome("error")
		}
	}
	return result, err
}

func (s *Service) join(ctx context.Context, req JoinRequest) (*models.JoinResult, error) {
	if err := validateJoinRequest(req); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	// Precondition order is part of the contract: zone existence, cooldown,
	// duplicate resolution, bounds, capacity, rider availability.
	zone, err := s.loadJoinableZone(ctx, req.ZoneID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.cooldowns.Check(ctx, req.RiderID, verificationmodels.KindJoin, now)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return nil, &models.Failure{
			Kind:             models.FailureCooldownActive,
			RemainingSeconds: int(remaining.Seconds()),
		}
	}

	resolution, err := s.resolveDuplicate(ctx, req.RiderID, req.ZoneID, now)
	if err != nil {
		return nil, err
	}
	if resolution.Resolution != ResolutionFresh {
		return s.resolveToDuplicate(ctx, zone, req.RiderID, resolution)
	}

	if !zone.Contains(req.Location, req.AccuracyMeters, s.maxAccuracyTolerance) {
		distance := geo.Distance(req.Location, zone.Center)
		s.emitAudit(ctx, audit.Event{
			Category: audit.CategoryOperations,
			RiderID:  req.RiderID,
			ZoneID:   zone.ID.String(),
			Action:   audit.EventJoinRejected,
			Reason:   string(models.FailureOutOfBounds),
		})
		return nil, &models.Failure{Kind: models.FailureOutOfBounds, DistanceMeters: distance}
	}

	// Advisory only; the tx occupancy guard is authoritative. Rejecting here
	// avoids burning a verification on a zone that is already full.
	if !zone.HasCapacity() {
		return nil, &models.Failure{Kind: models.FailureZoneFull}
	}

	if available, err := s.riderAvailable(ctx, req.RiderID); err != nil {
		return nil, err
	} else if !available {
		return nil, &models.Failure{Kind: models.FailureRiderUnavailable}
	}

	attempt, err := s.recordPendingAttempt(ctx, zone, req, now)
	if err != nil {
		return nil, err
	}

	outcome := s.processor.Evaluate(verificationmodels.KindJoin, req.Image, now)
	if outcome.Status != verificationmodels.StatusPassed {
		return nil, s.rejectFailedVerification(ctx, zone, attempt, outcome, now)
	}

	result, err := s.commit(ctx, zone, attempt, outcome, now)
	if err == nil || !errors.Is(err, sentinel.ErrConflict) {
		return result, err
	}

	// A concurrent request created the live assignment between our duplicate
	// check and the commit. Re-resolve once; the loser lands on the
	// duplicate-reuse path instead of surfacing a conflict.
	s.metrics.IncrementConflictRetries()
	resolution, rerr := s.resolveDuplicate(ctx, req.RiderID, req.ZoneID, now)
	if rerr != nil {
		return nil, rerr
	}
	if resolution.Resolution == ResolutionFresh {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "join conflict did not resolve to an existing assignment")
	}
	s.metrics.IncrementDuplicateResolution("conflict_retry")
	return s.resolveToDuplicate(ctx, zone, req.RiderID, resolution)
}

func validateJoinRequest(req JoinRequest) error {
	if req.RiderID == "" {
		return &models.Failure{Kind: models.FailureMalformedInput, Reason: "rider id is required"}
	}
	if len(req.Image) == 0 {
		return &models.Failure{Kind: models.FailureMalformedInput, Reason: "proof image is required"}
	}
	if err := req.Location.Validate(); err != nil {
		return &models.Failure{Kind: models.FailureMalformedInput, Reason: err.Error()}
	}
	if req.CapturedAt.IsZero() {
		return &models.Failure{Kind: models.FailureMalformedInput, Reason: "captured_at is required"}
	}
	return nil
}

func (s *Service) loadJoinableZone(ctx context.Context, zoneID uuid.UUID) (*zonemodels.Zone, error) {
	zone, err := s.zones.Get(ctx, zoneID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &models.Failure{Kind: models.FailureZoneNotFound}
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load zone")
	}
	if !zone.Active {
		return nil, &models.Failure{Kind: models.FailureZoneNotFound, Reason: "zone is not active"}
	}
	return zone, nil
}

func (s *Service) riderAvailable(ctx context.Context, riderID string) (bool, error) {
	rider, err := s.riders.Get(ctx, riderID)
	if err != nil {
		// The rider directory is synced from an identity collaborator; a
		// rider it has not seen yet is treated as available.
		if errors.Is(err, sentinel.ErrNotFound) {
			return true, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rider")
	}
	return rider.Available, nil
}

func (s *Service) recordPendingAttempt(ctx context.Context, zone *zonemodels.Zone, req JoinRequest, now time.Time) (*verificationmodels.Attempt, error) {
	attemptID := uuid.New()
	imageKey := fmt.Sprintf("verifications/%s", attemptID)
	if err := s.images.Put(ctx, imageKey, req.Image, req.ImageContentType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store proof image")
	}

	attempt := &verificationmodels.Attempt{
		ID:             attemptID,
		RiderID:        req.RiderID,
		ZoneID:         &zone.ID,
		CampaignID:     &zone.CampaignID,
		Kind:           verificationmodels.KindJoin,
		ImageKey:       imageKey,
		Location:       req.Location,
		AccuracyMeters: req.AccuracyMeters,
		CapturedAt:     req.CapturedAt,
		SubmittedAt:    now,
		Status:         verificationmodels.StatusPending,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attempt")
	}
	return attempt, nil
}

// rejectFailedVerification finalizes a failed attempt: terminal status, a
// join cooldown, and the audit trail. Always returns a typed failure.
func (s *Service) rejectFailedVerification(ctx context.Context, zone *zonemodels.Zone, attempt *verificationmodels.Attempt, outcome verificationmodels.Outcome, now time.Time) error {
	if err := attempt.ApplyOutcome(outcome); err != nil {
		return err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize attempt")
	}
	if err := s.cooldowns.Apply(ctx, attempt.RiderID, verificationmodels.KindJoin, now, 0); err != nil {
		return err
	}

	s.emitAudit(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		RiderID:   attempt.RiderID,
		ZoneID:    zone.ID.String(),
		AttemptID: attempt.ID.String(),
		Action:    audit.EventVerificationFailed,
		Reason:    outcome.Diagnostics.FailureReason,
	})
	s.logger.Info("join verification failed",
		"rider_id", attempt.RiderID,
		"zone_id", zone.ID,
		"attempt_id", attempt.ID,
		"reason", outcome.Diagnostics.FailureReason,
	)
	return &models.Failure{
		Kind:   models.FailureVerificationFailed,
		Reason: outcome.Diagnostics.FailureReason,
	}
}

// commit lands the passed join atomically: both assignment rows, the
// occupancy counter, the rider linkage, and the attempt verdict. A unique
// violation inside surfaces as sentinel.ErrConflict for the caller to
// re-resolve.
func (s *Service) commit(ctx context.Context, zone *zonemodels.Zone, attempt *verificationmodels.Attempt, outcome verificationmodels.Outcome, now time.Time) (*models.JoinResult, error) {
	var (
		campaignAssignment *models.CampaignAssignment
		zoneAssignment     *models.ZoneAssignment
	)

	err := s.tx.RunInTx(ctx, func(stores TxStores) error {
		// Re-check inside the boundary: a concurrent commit may have created
		// the live assignment since the duplicate resolution ran.
		_, err := stores.Assignments.FindLiveZoneAssignment(ctx, attempt.RiderID, zone.ID)
		if err == nil {
			return sentinel.ErrConflict
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		// Occupancy moves first so a full zone aborts before any row lands.
		// The conflict paths below roll the increment back with the tx.
		ok, err := stores.Zones.IncrementOccupancy(ctx, zone.ID)
		if err != nil {
			return err
		}
		if !ok {
			return &models.Failure{Kind: models.FailureZoneFull}
		}

		startedAt := now
		campaignAssignment, _, err = stores.Assignments.CreateCampaignAssignmentIfAbsent(ctx, &models.CampaignAssignment{
			ID:         uuid.New(),
			RiderID:    attempt.RiderID,
			CampaignID: zone.CampaignID,
			Status:     models.AssignmentActive,
			AssignedAt: now,
			StartedAt:  &startedAt,
		})
		if err != nil {
			return err
		}

		var zoneCreated bool
		zoneAssignment, zoneCreated, err = stores.Assignments.CreateZoneAssignmentIfAbsent(ctx, &models.ZoneAssignment{
			ID:                   uuid.New(),
			RiderID:              attempt.RiderID,
			ZoneID:               zone.ID,
			CampaignAssignmentID: campaignAssignment.ID,
			Status:               models.AssignmentActive,
			AssignedAt:           now,
			StartedAt:            &startedAt,
		})
		if err != nil {
			return err
		}
		if !zoneCreated {
			// Lost the insert race despite the check above; abandon the tx so
			// the occupancy increment unwinds and re-resolve as a duplicate.
			return sentinel.ErrConflict
		}

		if err := stores.Riders.SetCurrentAssignment(ctx, attempt.RiderID, zoneAssignment.ID); err != nil {
			return err
		}

		if err := attempt.ApplyOutcome(outcome); err != nil {
			return err
		}
		attempt.BackfillAssignments(campaignAssignment.ID, zoneAssignment.ID, now)
		return stores.Attempts.Update(ctx, attempt)
	})
	if err != nil {
		if failure, ok := models.AsFailure(err); ok && failure.Kind == models.FailureZoneFull {
			return nil, s.rejectZoneFull(ctx, zone, attempt, outcome)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "join commit failed")
	}

	s.emitAudit(ctx, audit.Event{
		Category:     audit.CategoryCompliance,
		RiderID:      attempt.RiderID,
		ZoneID:       zone.ID.String(),
		CampaignID:   zone.CampaignID.String(),
		AssignmentID: zoneAssignment.ID.String(),
		AttemptID:    attempt.ID.String(),
		Action:       audit.EventJoinCommitted,
	})
	s.emitAudit(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		RiderID:   attempt.RiderID,
		ZoneID:    zone.ID.String(),
		AttemptID: attempt.ID.String(),
		Action:    audit.EventVerificationPassed,
	})
	s.logger.Info("join committed",
		"rider_id", attempt.RiderID,
		"zone_id", zone.ID,
		"zone_assignment_id", zoneAssignment.ID,
		"attempt_id", attempt.ID,
	)

	return &models.JoinResult{
		CampaignAssignment: campaignAssignment,
		ZoneAssignment:     zoneAssignment,
		Attempt:            attempt,
	}, nil
}

// rejectZoneFull handles capacity loss discovered inside the transaction:
// the commit rolled back, so finalize the attempt as failed. No cooldown;
// the rider did nothing wrong.
func (s *Service) rejectZoneFull(ctx context.Context, zone *zonemodels.Zone, attempt *verificationmodels.Attempt, outcome verificationmodels.Outcome) error {
	failed := outcome
	failed.Status = verificationmodels.StatusFailed
	failed.Diagnostics.FailureReason = "zone full"
	if err := attempt.ApplyOutcome(failed); err != nil {
		return err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize attempt")
	}
	s.emitAudit(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		RiderID:   attempt.RiderID,
		ZoneID:    zone.ID.String(),
		AttemptID: attempt.ID.String(),
		Action:    audit.EventJoinRejected,
		Reason:    string(models.FailureZoneFull),
	})
	return &models.Failure{Kind: models.FailureZoneFull}
}

// resolveToDuplicate turns a non-fresh resolution into a success referencing
// the existing assignment. The unverified branch additionally flags the
// anomaly for audit: assignment rows without a backing passed attempt.
func (s *Service) resolveToDuplicate(ctx context.Context, zone *zonemodels.Zone, riderID string, resolution duplicateResolution) (*models.JoinResult, error) {
	campaignAssignment, err := s.assignments.FindLiveCampaignAssignment(ctx, riderID, zone.CampaignID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up campaign assignment")
	}

	action := audit.EventJoinDuplicate
	branch := "verified"
	if resolution.Resolution == ResolutionUnverifiedDuplicate {
		action = audit.EventJoinDuplicateUnverified
		branch = "unverified"
	}
	s.metrics.IncrementDuplicateResolution(branch)

	event := audit.Event{
		Category:     audit.CategorySecurity,
		RiderID:      riderID,
		ZoneID:       zone.ID.String(),
		AssignmentID: resolution.Assignment.ID.String(),
		Action:       action,
	}
	if resolution.Attempt != nil {
		event.AttemptID = resolution.Attempt.ID.String()
	}
	s.emitAudit(ctx, event)
	s.logger.Info("join resolved as duplicate",
		"rider_id", riderID,
		"zone_id", zone.ID,
		"branch", branch,
	)

	return &models.JoinResult{
		Duplicate:          true,
		CampaignAssignment: campaignAssignment,
		ZoneAssignment:     resolution.Assignment,
		Attempt:            resolution.Attempt,
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.Error("audit emit failed", "action", event.Action, "error", err)
	}
}
