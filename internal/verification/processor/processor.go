// Package processor evaluates proof-of-presence images. The decision protocol
// is deliberately pluggable: the coordinator depends on the Processor
// interface so a model-backed validator can replace the basic checks without
// touching orchestration.
package processor

import (
	"bytes"
	"image"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"zonegate/internal/verification/models"
)

// Processor turns an image submission into a terminal verification outcome.
// Implementations must be deterministic on identical bytes: replaying the
// same attempt yields the same verdict, which is what makes retries safe.
type Processor interface {
	Evaluate(kind models.Kind, imageBytes []byte, submittedAt time.Time) models.Outcome
}

const (
	validationTypeBasic = "basic_image_check"

	maxImageBytes = 5 * 1024 * 1024
	minWidth      = 200
	minHeight     = 200

	joinConfidence   = 0.95
	randomConfidence = 0.90
)

var allowedFormats = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Basic performs format, size, and resolution checks only. Sticker content
// analysis is out of scope here; a valid image passes with a fixed
// placeholder confidence.
type Basic struct{}

// NewBasic constructs the basic image validator.
func NewBasic() *Basic {
	return &Basic{}
}

// Evaluate applies the checks in a fixed order; the first failing rule wins.
func (p *Basic) Evaluate(kind models.Kind, imageBytes []byte, submittedAt time.Time) models.Outcome {
	diag := models.Diagnostics{
		ValidationType: validationTypeBasic,
		ImageBytes:     len(imageBytes),
		ProcessedAt:    submittedAt,
	}

	if len(imageBytes) > maxImageBytes {
		return fail(diag, "too large")
	}

	contentType := http.DetectContentType(imageBytes)
	diag.ImageFormat = contentType
	if !allowedFormats[contentType] {
		return fail(diag, "invalid format")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		return fail(diag, "invalid image")
	}
	diag.ImageFormat = "image/" + format
	diag.Width = cfg.Width
	diag.Height = cfg.Height

	if cfg.Width < minWidth || cfg.Height < minHeight {
		return fail(diag, "resolution too low")
	}

	confidence := joinConfidence
	if kind == models.KindRandom {
		confidence = randomConfidence
	}
	return models.Outcome{
		Status:      models.StatusPassed,
		Confidence:  confidence,
		Diagnostics: diag,
	}
}

func fail(diag models.Diagnostics, reason string) models.Outcome {
	diag.FailureReason = reason
	return models.Outcome{
		Status:      models.StatusFailed,
		Confidence:  0,
		Diagnostics: diag,
	}
}
