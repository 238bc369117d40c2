package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	joinservice "zonegate/internal/join/service"
	"zonegate/pkg/requestcontext"
)

// EnqueueStore is the write side of the queue.
type EnqueueStore interface {
	Enqueue(ctx context.Context, q *QueuedJoin) error
}

// ImagePutter stores the proof image at ingest so the queue row only carries
// a key.
type ImagePutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Ingestor accepts a join submission for deferred replay: image into the
// object store, metadata into the queue. No verdict is reached here.
type Ingestor struct {
	queue  EnqueueStore
	images ImagePutter
	logger *slog.Logger
}

func NewIngestor(queue EnqueueStore, images ImagePutter, logger *slog.Logger) (*Ingestor, error) {
	if queue == nil || images == nil {
		return nil, errors.New("queue and image store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{queue: queue, images: images, logger: logger}, nil
}

// Enqueue persists the submission and returns the queued row. The replayer
// decides it later through the regular join path.
func (i *Ingestor) Enqueue(ctx context.Context, req joinservice.JoinRequest) (*QueuedJoin, error) {
	now := requestcontext.Now(ctx)
	id := uuid.New()
	imageKey := fmt.Sprintf("queued/%s", id)
	if err := i.images.Put(ctx, imageKey, req.Image, req.ImageContentType); err != nil {
		return nil, fmt.Errorf("store queued proof image: %w", err)
	}

	item := &QueuedJoin{
		ID:               id,
		RiderID:          req.RiderID,
		ZoneID:           req.ZoneID,
		Location:         req.Location,
		AccuracyMeters:   req.AccuracyMeters,
		CapturedAt:       req.CapturedAt,
		ImageKey:         imageKey,
		ImageContentType: req.ImageContentType,
		Status:           StatusQueued,
		EnqueuedAt:       now,
		UpdatedAt:        now,
	}
	if err := i.queue.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue join: %w", err)
	}
	i.logger.InfoContext(ctx, "join queued for replay",
		"queued_join_id", item.ID,
		"rider_id", item.RiderID,
		"zone_id", item.ZoneID,
	)
	return item, nil
}
