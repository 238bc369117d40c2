package handler

import (
	"time"

	"github.com/google/uuid"

	"zonegate/internal/verification/models"
)

type attemptResponse struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	Status         string     `json:"status"`
	Confidence     float64    `json:"confidence"`
	ZoneID         *uuid.UUID `json:"zone_id,omitempty"`
	CapturedAt     time.Time  `json:"captured_at"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	ValidationType string     `json:"validation_type,omitempty"`
}

func newAttemptResponse(attempt *models.Attempt) attemptResponse {
	return attemptResponse{
		ID:             attempt.ID,
		Kind:           string(attempt.Kind),
		Status:         string(attempt.Status),
		Confidence:     attempt.Confidence,
		ZoneID:         attempt.ZoneID,
		CapturedAt:     attempt.CapturedAt,
		SubmittedAt:    attempt.SubmittedAt,
		FailureReason:  attempt.Diagnostics.FailureReason,
		ValidationType: attempt.Diagnostics.ValidationType,
	}
}

type historyResponse struct {
	Attempts []attemptResponse `json:"attempts"`
}

func newHistoryResponse(attempts []*models.Attempt) historyResponse {
	resp := historyResponse{Attempts: make([]attemptResponse, 0, len(attempts))}
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, newAttemptResponse(attempt))
	}
	return resp
}
