package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	joinmodels "zonegate/internal/join/models"
	joinservice "zonegate/internal/join/service"
	"zonegate/pkg/platform/sentinel"
)

const (
	defaultInterval    = 30 * time.Second
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

// Store is the queue surface the replayer needs.
type Store interface {
	ListPending(ctx context.Context, limit int) ([]*QueuedJoin, error)
	Update(ctx context.Context, q *QueuedJoin) error
}

// ImageStore loads the stored proof image for a queued join.
type ImageStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// JoinService is the coordinator entry point. Replays go through the exact
// same call as live requests; the idempotency contract does the rest.
type JoinService interface {
	Join(ctx context.Context, req joinservice.JoinRequest) (*joinmodels.JoinResult, error)
}

// Replayer drains the queue, replaying each submission against the
// coordinator and recording the outcome on the row.
type Replayer struct {
	queue  Store
	images ImageStore
	joins  JoinService
	logger *slog.Logger

	interval    time.Duration
	batchSize   int
	concurrency int
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

func WithReplayLogger(logger *slog.Logger) ReplayerOption {
	return func(r *Replayer) {
		r.logger = logger
	}
}

func WithReplayInterval(interval time.Duration) ReplayerOption {
	return func(r *Replayer) {
		r.interval = interval
	}
}

func WithReplayConcurrency(n int) ReplayerOption {
	return func(r *Replayer) {
		r.concurrency = n
	}
}

func WithReplayBatchSize(n int) ReplayerOption {
	return func(r *Replayer) {
		r.batchSize = n
	}
}

func NewReplayer(queue Store, images ImageStore, joins JoinService, opts ...ReplayerOption) (*Replayer, error) {
	if queue == nil || images == nil || joins == nil {
		return nil, errors.New("queue, image store and join service are required")
	}
	r := &Replayer{
		queue:       queue,
		images:      images,
		joins:       joins,
		logger:      slog.Default(),
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run drains the queue on a fixed interval until the context is cancelled.
func (r *Replayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReplayPending(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox replay pass failed", "error", err.Error())
			}
		}
	}
}

// ReplayPending replays one batch of queued joins concurrently.
func (r *Replayer) ReplayPending(ctx context.Context) error {
	pending, err := r.queue.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, item := range pending {
		g.Go(func() error {
			r.replay(gctx, item)
			return nil
		})
	}
	return g.Wait()
}

func (r *Replayer) replay(ctx context.Context, item *QueuedJoin) {
	now := time.Now().UTC()

	image, err := r.images.Get(ctx, item.ImageKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			r.finish(ctx, item, StatusRejected, "proof image missing", now)
			return
		}
		r.retry(ctx, item, err.Error(), now)
		return
	}

	_, err = r.joins.Join(ctx, joinservice.JoinRequest{
		RiderID:          item.RiderID,
		ZoneID:           item.ZoneID,
		Location:         item.Location,
		AccuracyMeters:   item.AccuracyMeters,
		CapturedAt:       item.CapturedAt,
		Image:            image,
		ImageContentType: item.ImageContentType,
	})
	if err == nil {
		r.finish(ctx, item, StatusDelivered, "", now)
		return
	}

	if failure, ok := joinmodels.AsFailure(err); ok {
		switch failure.Kind {
		case joinmodels.FailureCooldownActive, joinmodels.FailureZoneFull:
			// Both clear on their own; worth another pass.
			r.retry(ctx, item, failure.Error(), now)
		default:
			r.finish(ctx, item, StatusRejected, failure.Error(), now)
		}
		return
	}
	r.retry(ctx, item, err.Error(), now)
}

func (r *Replayer) retry(ctx context.Context, item *QueuedJoin, reason string, now time.Time) {
	item.AttemptCount++
	item.LastError = reason
	item.UpdatedAt = now
	if item.AttemptCount >= MaxAttempts {
		item.Status = StatusAbandoned
		r.logger.WarnContext(ctx, "queued join abandoned",
			"queued_join_id", item.ID,
			"rider_id", item.RiderID,
			"attempts", item.AttemptCount,
			"last_error", reason,
		)
	}
	if err := r.queue.Update(ctx, item); err != nil {
		r.logger.ErrorContext(ctx, "failed to update queued join", "queued_join_id", item.ID, "error", err.Error())
	}
}

func (r *Replayer) finish(ctx context.Context, item *QueuedJoin, status Status, reason string, now time.Time) {
	item.Status = status
	item.AttemptCount++
	item.LastError = reason
	item.UpdatedAt = now
	if err := r.queue.Update(ctx, item); err != nil {
		r.logger.ErrorContext(ctx, "failed to update queued join", "queued_join_id", item.ID, "error", err.Error())
	}
}
