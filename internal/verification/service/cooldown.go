package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zonegate/internal/verification/models"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/platform/sentinel"
)

// CooldownStore persists per-(rider, kind) attempt ledgers.
type CooldownStore interface {
	Get(ctx context.Context, riderID string, kind models.Kind) (*models.Cooldown, error)
	Record(ctx context.Context, riderID string, kind models.Kind, lastAttemptAt, expiresAt time.Time) (*models.Cooldown, error)
}

// CooldownConfig holds the base cooldown duration per verification kind.
type CooldownConfig struct {
	JoinCooldown   time.Duration
	RandomCooldown time.Duration
	ManualCooldown time.Duration
}

// DefaultCooldownConfig returns the production defaults: a failed join locks
// the rider out for a minute, random checks are spaced five minutes apart,
// and manual reviews carry no cooldown.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		JoinCooldown:   60 * time.Second,
		RandomCooldown: 300 * time.Second,
		ManualCooldown: 0,
	}
}

func (c CooldownConfig) duration(kind models.Kind) time.Duration {
	switch kind {
	case models.KindJoin:
		return c.JoinCooldown
	case models.KindRandom:
		return c.RandomCooldown
	default:
		return c.ManualCooldown
	}
}

// CooldownService answers "may this rider attempt now" and records attempts.
// Check is side-effect free; Apply is the only writer.
type CooldownService struct {
	store  CooldownStore
	config CooldownConfig
	logger *slog.Logger
}

type CooldownOption func(*CooldownService)

func WithCooldownConfig(cfg CooldownConfig) CooldownOption {
	return func(s *CooldownService) {
		s.config = cfg
	}
}

func WithCooldownLogger(logger *slog.Logger) CooldownOption {
	return func(s *CooldownService) {
		s.logger = logger
	}
}

func NewCooldownService(store CooldownStore, opts ...CooldownOption) (*CooldownService, error) {
	if store == nil {
		return nil, errors.New("cooldown store is required")
	}
	svc := &CooldownService{
		store:  store,
		config: DefaultCooldownConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check returns how long the rider must still wait before attempting the
// given kind. Zero means the attempt may proceed. A rider with no ledger
// entry has never attempted and is never blocked.
func (s *CooldownService) Check(ctx context.Context, riderID string, kind models.Kind, now time.Time) (time.Duration, error) {
	record, err := s.store.Get(ctx, riderID, kind)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cooldown")
	}
	return record.Remaining(now), nil
}

// Apply records an attempt at now and arms the kind's cooldown window.
// extra lengthens the window beyond the kind's base duration, e.g. for
// riders whose ledger shows repeated failures; pass 0 for the base window.
// Last write wins on concurrent applies; enforcement only needs to be
// conservative.
func (s *CooldownService) Apply(ctx context.Context, riderID string, kind models.Kind, now time.Time, extra time.Duration) error {
	if extra < 0 {
		extra = 0
	}
	expiresAt := now.Add(s.config.duration(kind) + extra)
	record, err := s.store.Record(ctx, riderID, kind, now, expiresAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record cooldown")
	}
	s.logger.Debug("cooldown applied",
		"rider_id", riderID,
		"kind", kind,
		"expires_at", record.ExpiresAt,
		"attempt_count", record.AttemptCount,
	)
	return nil
}
