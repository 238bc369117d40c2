// Package handler exposes the join flow over HTTP. Handlers parse and
// respond; every decision lives in the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zonegate/internal/join/models"
	"zonegate/internal/join/service"
	"zonegate/internal/outbox"
	platformmetrics "zonegate/internal/platform/metrics"
	"zonegate/internal/platform/middleware"
	"zonegate/internal/transport/http/shared"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks

// Service is the join surface the handler depends on.
type Service interface {
	Join(ctx context.Context, req service.JoinRequest) (*models.JoinResult, error)
	CheckEligibility(ctx context.Context, riderID string, zoneID uuid.UUID, location geo.Point, accuracyMeters float64) (*models.EligibilityResult, error)
}

// Queue accepts a submission for deferred replay instead of deciding it now.
type Queue interface {
	Enqueue(ctx context.Context, req service.JoinRequest) (*outbox.QueuedJoin, error)
}

// Handler handles zone join endpoints.
type Handler struct {
	logger       *slog.Logger
	join         Service
	queue        Queue
	metrics      *platformmetrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(join Service, logger *slog.Logger, metrics *platformmetrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		join:         join,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// WithQueue enables the deferred-join endpoint.
func (h *Handler) WithQueue(queue Queue) *Handler {
	h.queue = queue
	return h
}

// Register registers the join routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	joinRouter := chi.NewRouter()
	joinRouter.Use(middleware.Recovery(h.logger))
	joinRouter.Use(middleware.RequestID)
	joinRouter.Use(middleware.RequestTime)
	joinRouter.Use(middleware.Logger(h.logger))
	joinRouter.Use(middleware.Timeout(30 * time.Second))
	joinRouter.Use(middleware.Latency(h.metrics))
	joinRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	joinRouter.Get("/{zoneID}/eligibility", h.handleEligibility)
	joinRouter.Post("/{zoneID}/join", h.handleJoin)
	if h.queue != nil {
		joinRouter.Post("/{zoneID}/join/queued", h.handleQueuedJoin)
	}

	r.Mount("/zones", joinRouter)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID := middleware.GetRiderID(ctx)
	if riderID == "" {
		h.logger.ErrorContext(ctx, "rider ID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := parseEligibilityRequest(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	result, err := h.join.CheckEligibility(ctx, riderID, req.ZoneID, req.Location, req.AccuracyMeters)
	if err != nil {
		h.logger.ErrorContext(ctx, "eligibility check failed",
			"request_id", middleware.GetRequestID(ctx),
			"zone_id", req.ZoneID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newEligibilityResponse(result))
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID := middleware.GetRiderID(ctx)
	if riderID == "" {
		h.logger.ErrorContext(ctx, "rider ID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := parseJoinRequest(r, riderID)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid join request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		writeFailure(w, err)
		return
	}

	result, err := h.join.Join(ctx, req)
	if err != nil {
		if failure, ok := models.AsFailure(err); ok {
			writeFailureResponse(w, failure)
			return
		}
		h.logger.ErrorContext(ctx, "join failed",
			"request_id", middleware.GetRequestID(ctx),
			"zone_id", req.ZoneID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newJoinResponse(result))
}

// handleQueuedJoin parks the submission for the replayer instead of deciding
// it inline. Clients use it when a live join keeps failing transiently.
func (h *Handler) handleQueuedJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID := middleware.GetRiderID(ctx)
	if riderID == "" {
		h.logger.ErrorContext(ctx, "rider ID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := parseJoinRequest(r, riderID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	item, err := h.queue.Enqueue(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue join",
			"request_id", middleware.GetRequestID(ctx),
			"zone_id", req.ZoneID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, queuedJoinResponse{ID: item.ID, Status: string(item.Status)})
}
