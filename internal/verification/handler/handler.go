// Package handler exposes the random-verification flow over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	platformmetrics "zonegate/internal/platform/metrics"
	"zonegate/internal/platform/middleware"
	"zonegate/internal/transport/http/shared"
	"zonegate/internal/verification/models"
	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
	"zonegate/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks

// Service is the verification surface the handler depends on.
type Service interface {
	CreateRandom(ctx context.Context, riderID string, location geo.Point, accuracyMeters float64) (*models.Attempt, error)
	Submit(ctx context.Context, riderID string, image []byte, contentType string) (*models.Attempt, error)
	Pending(ctx context.Context, riderID string) (*models.Attempt, error)
	History(ctx context.Context, riderID string) ([]*models.Attempt, error)
	Stats(ctx context.Context, riderID string) (*models.Stats, error)
}

// Handler handles verification endpoints.
type Handler struct {
	logger       *slog.Logger
	verification Service
	metrics      *platformmetrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(verification Service, logger *slog.Logger, metrics *platformmetrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		verification: verification,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	verificationRouter := chi.NewRouter()
	verificationRouter.Use(middleware.Recovery(h.logger))
	verificationRouter.Use(middleware.RequestID)
	verificationRouter.Use(middleware.RequestTime)
	verificationRouter.Use(middleware.Logger(h.logger))
	verificationRouter.Use(middleware.Timeout(30 * time.Second))
	verificationRouter.Use(middleware.Latency(h.metrics))
	verificationRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	verificationRouter.Post("/random", h.handleCreateRandom)
	verificationRouter.Post("/submit", h.handleSubmit)
	verificationRouter.Get("/pending", h.handlePending)
	verificationRouter.Get("/history", h.handleHistory)
	verificationRouter.Get("/stats", h.handleStats)

	r.Mount("/verifications", verificationRouter)
}

func (h *Handler) riderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	riderID := middleware.GetRiderID(r.Context())
	if riderID == "" {
		h.logger.ErrorContext(r.Context(), "rider ID missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return riderID, true
}

func (h *Handler) handleCreateRandom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID, ok := h.riderID(w, r)
	if !ok {
		return
	}

	req, err := parseCreateRandomRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	attempt, err := h.verification.CreateRandom(ctx, riderID, req.Location, req.AccuracyMeters)
	if err != nil {
		h.logger.WarnContext(ctx, "random verification not created",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, newAttemptResponse(attempt))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID, ok := h.riderID(w, r)
	if !ok {
		return
	}

	image, contentType, err := parseSubmitRequest(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	attempt, err := h.verification.Submit(ctx, riderID, image, contentType)
	if err != nil {
		h.logger.WarnContext(ctx, "verification submit failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newAttemptResponse(attempt))
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID, ok := h.riderID(w, r)
	if !ok {
		return
	}

	attempt, err := h.verification.Pending(ctx, riderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no pending verification"))
			return
		}
		h.logger.ErrorContext(ctx, "pending lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newAttemptResponse(attempt))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID, ok := h.riderID(w, r)
	if !ok {
		return
	}

	attempts, err := h.verification.History(ctx, riderID)
	if err != nil {
		h.logger.ErrorContext(ctx, "history lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newHistoryResponse(attempts))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	riderID, ok := h.riderID(w, r)
	if !ok {
		return
	}

	stats, err := h.verification.Stats(ctx, riderID)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}
