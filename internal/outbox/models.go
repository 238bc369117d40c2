// Package outbox is the durable replay queue for join submissions that could
// not be decided at ingest time. The replayer drives each queued join through
// the same coordinator entry point as a live request, so correctness rests
// entirely on the coordinator's idempotency contract: replaying an
// already-committed join resolves to the duplicate-reuse path.
package outbox

import (
	"time"

	"github.com/google/uuid"

	"zonegate/pkg/geo"
)

// Status is the queue lifecycle of one submission.
type Status string

const (
	// StatusQueued means the submission awaits replay.
	StatusQueued Status = "queued"
	// StatusDelivered means the coordinator accepted it (fresh or duplicate).
	StatusDelivered Status = "delivered"
	// StatusRejected means the coordinator returned a terminal rejection.
	StatusRejected Status = "rejected"
	// StatusAbandoned means replay gave up after MaxAttempts.
	StatusAbandoned Status = "abandoned"
)

// MaxAttempts bounds how often a queued join is replayed before it is
// abandoned.
const MaxAttempts = 3

// QueuedJoin is one deferred join submission. The proof image lives in the
// image store under ImageKey; the row carries everything else the
// coordinator needs.
type QueuedJoin struct {
	ID               uuid.UUID `json:"id"`
	RiderID          string    `json:"rider_id"`
	ZoneID           uuid.UUID `json:"zone_id"`
	Location         geo.Point `json:"location"`
	AccuracyMeters   float64   `json:"accuracy_meters"`
	CapturedAt       time.Time `json:"captured_at"`
	ImageKey         string    `json:"image_key"`
	ImageContentType string    `json:"image_content_type"`
	Status           Status    `json:"status"`
	AttemptCount     int       `json:"attempt_count"`
	LastError        string    `json:"last_error,omitempty"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
