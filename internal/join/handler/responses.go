package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"zonegate/internal/join/models"
	"zonegate/internal/transport/http/shared"
	verificationmodels "zonegate/internal/verification/models"
)

type assignmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	Status     string     `json:"status"`
	AssignedAt time.Time  `json:"assigned_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

type attemptResponse struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence"`
}

type joinResponse struct {
	Success            bool                `json:"success"`
	Duplicate          bool                `json:"duplicate"`
	ZoneAssignment     *assignmentResponse `json:"zone_assignment,omitempty"`
	CampaignAssignment *assignmentResponse `json:"campaign_assignment,omitempty"`
	Attempt            *attemptResponse    `json:"attempt,omitempty"`
}

func newJoinResponse(result *models.JoinResult) joinResponse {
	resp := joinResponse{Success: true, Duplicate: result.Duplicate}
	if result.ZoneAssignment != nil {
		resp.ZoneAssignment = &assignmentResponse{
			ID:         result.ZoneAssignment.ID,
			Status:     string(result.ZoneAssignment.Status),
			AssignedAt: result.ZoneAssignment.AssignedAt,
			StartedAt:  result.ZoneAssignment.StartedAt,
		}
	}
	if result.CampaignAssignment != nil {
		resp.CampaignAssignment = &assignmentResponse{
			ID:         result.CampaignAssignment.ID,
			Status:     string(result.CampaignAssignment.Status),
			AssignedAt: result.CampaignAssignment.AssignedAt,
			StartedAt:  result.CampaignAssignment.StartedAt,
		}
	}
	if result.Attempt != nil {
		resp.Attempt = newAttemptResponse(result.Attempt)
	}
	return resp
}

func newAttemptResponse(attempt *verificationmodels.Attempt) *attemptResponse {
	return &attemptResponse{
		ID:         attempt.ID,
		Status:     string(attempt.Status),
		Confidence: attempt.Confidence,
	}
}

type eligibilityResponse struct {
	CanJoin                  bool     `json:"can_join"`
	Reasons                  []string `json:"reasons"`
	CooldownRemainingSeconds int      `json:"cooldown_remaining_seconds,omitempty"`
	DistanceMeters           float64  `json:"distance_meters"`
}

func newEligibilityResponse(result *models.EligibilityResult) eligibilityResponse {
	reasons := result.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return eligibilityResponse{
		CanJoin:                  result.CanJoin,
		Reasons:                  reasons,
		CooldownRemainingSeconds: result.CooldownRemainingSeconds,
		DistanceMeters:           result.DistanceMeters,
	}
}

type queuedJoinResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type failureResponse struct {
	Success          bool    `json:"success"`
	Error            string  `json:"error"`
	Reason           string  `json:"reason,omitempty"`
	RemainingSeconds int     `json:"remaining_seconds,omitempty"`
	DistanceMeters   float64 `json:"distance_meters,omitempty"`
}

// failureStatus maps each rejection kind to its HTTP status. The mobile
// client branches on the error string, not the status, but proxies and
// dashboards still deserve honest codes.
func failureStatus(kind models.FailureKind) int {
	switch kind {
	case models.FailureZoneNotFound:
		return http.StatusNotFound
	case models.FailureCooldownActive:
		return http.StatusTooManyRequests
	case models.FailureOutOfBounds, models.FailureVerificationFailed:
		return http.StatusUnprocessableEntity
	case models.FailureZoneFull, models.FailureRiderUnavailable:
		return http.StatusConflict
	case models.FailureMalformedInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeFailureResponse(w http.ResponseWriter, failure *models.Failure) {
	shared.WriteJSON(w, failureStatus(failure.Kind), failureResponse{
		Error:            string(failure.Kind),
		Reason:           failure.Reason,
		RemainingSeconds: failure.RemainingSeconds,
		DistanceMeters:   failure.DistanceMeters,
	})
}

// writeFailure handles errors that may or may not be typed rejections.
func writeFailure(w http.ResponseWriter, err error) {
	if failure, ok := models.AsFailure(err); ok {
		writeFailureResponse(w, failure)
		return
	}
	shared.WriteError(w, err)
}
