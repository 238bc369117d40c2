// Package service runs the verification flows that live outside a join:
// spot-check prompts, proof submission, pending-window expiry, and the
// rider's attempt history.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	joinmodels "zonegate/internal/join/models"
	"zonegate/internal/verification/metrics"
	"zonegate/internal/verification/models"
	zonemodels "zonegate/internal/zone/models"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
	audit "zonegate/pkg/platform/audit"
	"zonegate/pkg/platform/sentinel"
	"zonegate/pkg/requestcontext"
)

const (
	// defaultResponseWindow is how long a rider has to answer a spot-check
	// prompt before the pending attempt times out.
	defaultResponseWindow = 10 * time.Minute

	// History defaults: trailing week, newest twenty attempts.
	defaultHistoryWindow = 7 * 24 * time.Hour
	defaultHistoryLimit  = 20

	defaultMaxAccuracyTolerance = 50.0
)

// AttemptStore is the attempt surface the verification flows need.
type AttemptStore interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	Update(ctx context.Context, attempt *models.Attempt) error
	FindLatestPending(ctx context.Context, riderID string, kind models.Kind, since time.Time) (*models.Attempt, error)
	ListByRider(ctx context.Context, riderID string, since time.Time, limit int) ([]*models.Attempt, error)
}

// AssignmentReader locates the rider's live zone assignments.
type AssignmentReader interface {
	ListLiveZoneAssignments(ctx context.Context, riderID string) ([]*joinmodels.ZoneAssignment, error)
}

// ZoneReader loads zones for the containment check.
type ZoneReader interface {
	Get(ctx context.Context, id uuid.UUID) (*zonemodels.Zone, error)
}

// Processor evaluates proof images into a terminal verdict.
type Processor interface {
	Evaluate(kind models.Kind, imageBytes []byte, submittedAt time.Time) models.Outcome
}

// ImageStore persists proof photos.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// AuditPublisher records verification events for the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates spot-check verifications.
type Service struct {
	attempts    AttemptStore
	assignments AssignmentReader
	zones       ZoneReader
	images      ImageStore
	processor   Processor
	cooldowns   *CooldownService

	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger

	responseWindow       time.Duration
	historyWindow        time.Duration
	historyLimit         int
	maxAccuracyTolerance float64
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

// WithResponseWindow overrides how long a pending spot check stays answerable.
func WithResponseWindow(window time.Duration) Option {
	return func(s *Service) {
		s.responseWindow = window
	}
}

func New(
	attempts AttemptStore,
	assignments AssignmentReader,
	zones ZoneReader,
	images ImageStore,
	proc Processor,
	cooldowns *CooldownService,
	opts ...Option,
) (*Service, error) {
	if attempts == nil || assignments == nil || zones == nil {
		return nil, errors.New("all stores are required")
	}
	if images == nil {
		return nil, errors.New("image store is required")
	}
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	if cooldowns == nil {
		return nil, errors.New("cooldown service is required")
	}

	svc := &Service{
		attempts:             attempts,
		assignments:          assignments,
		zones:                zones,
		images:               images,
		processor:            proc,
		cooldowns:            cooldowns,
		logger:               slog.Default(),
		responseWindow:       defaultResponseWindow,
		historyWindow:        defaultHistoryWindow,
		historyLimit:         defaultHistoryLimit,
		maxAccuracyTolerance: defaultMaxAccuracyTolerance,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRandom opens a spot-check prompt: the rider must be inside one of
// their live assignment zones, and random checks are spaced by the random
// cooldown. The attempt stays pending until Submit answers it or the
// response window lapses.
func (s *Service) CreateRandom(ctx context.Context, riderID string, location geo.Point, accuracyMeters float64) (*models.Attempt, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	remaining, err := s.cooldowns.Check(ctx, riderID, models.KindRandom, now)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		s.metrics.IncrementCooldownRejection(string(models.KindRandom))
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("random verification cooldown active: %ds remaining", int(remaining.Seconds())))
	}

	zone, err := s.locateContainingZone(ctx, riderID, location, accuracyMeters)
	if err != nil {
		return nil, err
	}

	attempt := &models.Attempt{
		ID:             uuid.New(),
		RiderID:        riderID,
		ZoneID:         &zone.ID,
		CampaignID:     &zone.CampaignID,
		Kind:           models.KindRandom,
		Location:       location,
		AccuracyMeters: accuracyMeters,
		CapturedAt:     now,
		SubmittedAt:    now,
		Status:         models.StatusPending,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attempt")
	}

	// Arm the spacing cooldown at prompt time so a rider cannot farm prompts
	// by abandoning them.
	if err := s.cooldowns.Apply(ctx, riderID, models.KindRandom, now, 0); err != nil {
		return nil, err
	}

	s.logger.Info("random verification created",
		"rider_id", riderID,
		"zone_id", zone.ID,
		"attempt_id", attempt.ID,
	)
	return attempt, nil
}

// Submit answers the rider's newest pending spot check with a proof photo.
// The photo is stored, evaluated, and the attempt finalized; the random
// cooldown is refreshed regardless of verdict.
func (s *Service) Submit(ctx context.Context, riderID string, image []byte, contentType string) (*models.Attempt, error) {
	if len(image) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "proof image is required")
	}
	now := requestcontext.Now(ctx)

	attempt, err := s.attempts.FindLatestPending(ctx, riderID, models.KindRandom, now.Add(-s.responseWindow))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no pending verification to answer")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up pending attempt")
	}

	imageKey := fmt.Sprintf("verifications/%s", attempt.ID)
	if err := s.images.Put(ctx, imageKey, image, contentType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store proof image")
	}
	attempt.ImageKey = imageKey

	evalStarted := time.Now()
	outcome := s.processor.Evaluate(models.KindRandom, image, now)
	s.metrics.ObserveEvaluateLatency(time.Since(evalStarted))

	if err := attempt.ApplyOutcome(outcome); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize attempt")
	}
	if err := s.cooldowns.Apply(ctx, riderID, models.KindRandom, now, 0); err != nil {
		return nil, err
	}
	s.metrics.IncrementOutcome(string(models.KindRandom), string(attempt.Status))

	action := audit.EventVerificationPassed
	if attempt.Status != models.StatusPassed {
		action = audit.EventVerificationFailed
	}
	s.emitAudit(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		RiderID:   riderID,
		AttemptID: attempt.ID.String(),
		Action:    action,
		Reason:    attempt.Diagnostics.FailureReason,
	})
	s.logger.Info("random verification answered",
		"rider_id", riderID,
		"attempt_id", attempt.ID,
		"status", attempt.Status,
	)
	return attempt, nil
}

// Pending returns the rider's newest answerable spot check. Prompts past the
// response window are expired on read: finalized as failed with a timeout
// reason, so an abandoned prompt cannot be answered late.
func (s *Service) Pending(ctx context.Context, riderID string) (*models.Attempt, error) {
	now := requestcontext.Now(ctx)

	for {
		attempt, err := s.attempts.FindLatestPending(ctx, riderID, models.KindRandom, time.Time{})
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, sentinel.ErrNotFound
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up pending attempt")
		}
		if now.Sub(attempt.SubmittedAt) <= s.responseWindow {
			return attempt, nil
		}
		if err := s.expire(ctx, attempt, now); err != nil {
			return nil, err
		}
	}
}

func (s *Service) expire(ctx context.Context, attempt *models.Attempt, now time.Time) error {
	err := attempt.ApplyOutcome(models.Outcome{
		Status: models.StatusFailed,
		Diagnostics: models.Diagnostics{
			ValidationType: "response_timeout",
			FailureReason:  "response timeout",
			ProcessedAt:    now,
		},
	})
	if err != nil {
		return err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire attempt")
	}
	s.metrics.IncrementOutcome(string(attempt.Kind), string(models.StatusFailed))
	s.logger.Info("pending verification expired",
		"rider_id", attempt.RiderID,
		"attempt_id", attempt.ID,
	)
	return nil
}

// History returns the rider's attempts over the trailing week, newest first.
func (s *Service) History(ctx context.Context, riderID string) ([]*models.Attempt, error) {
	now := requestcontext.Now(ctx)
	attempts, err := s.attempts.ListByRider(ctx, riderID, now.Add(-s.historyWindow), s.historyLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attempts")
	}
	return attempts, nil
}

// Stats summarizes the rider's full verification record.
func (s *Service) Stats(ctx context.Context, riderID string) (*models.Stats, error) {
	now := requestcontext.Now(ctx)
	attempts, err := s.attempts.ListByRider(ctx, riderID, time.Time{}, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attempts")
	}
	stats := models.ComputeStats(attempts, now)
	return &stats, nil
}

// locateContainingZone finds which of the rider's live assignments covers the
// reported location.
func (s *Service) locateContainingZone(ctx context.Context, riderID string, location geo.Point, accuracyMeters float64) (*zonemodels.Zone, error) {
	assignments, err := s.assignments.ListLiveZoneAssignments(ctx, riderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list live assignments")
	}
	if len(assignments) == 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "rider has no active zone assignment")
	}

	for _, assignment := range assignments {
		zone, err := s.zones.Get(ctx, assignment.ZoneID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load zone")
		}
		if zone.Contains(location, accuracyMeters, s.maxAccuracyTolerance) {
			return zone, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeConflict, "location is outside all assigned zones")
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
