package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zonegate/internal/join/models"
	"zonegate/internal/join/service"
	"zonegate/pkg/geo"
)

// maxUploadBytes caps the multipart body. Deliberately above the 5MB image
// rule so an oversized photo reaches the verification pipeline and comes
// back as a typed "too large" verdict instead of an opaque 413.
const maxUploadBytes = 12 * 1024 * 1024

type eligibilityRequest struct {
	ZoneID         uuid.UUID
	Location       geo.Point
	AccuracyMeters float64
}

func parseEligibilityRequest(r *http.Request) (eligibilityRequest, error) {
	var req eligibilityRequest

	zoneID, err := uuid.Parse(chi.URLParam(r, "zoneID"))
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid zone id"}
	}
	req.ZoneID = zoneID

	q := r.URL.Query()
	req.Location.Latitude, err = strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid latitude"}
	}
	req.Location.Longitude, err = strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid longitude"}
	}
	if accuracy := q.Get("accuracy"); accuracy != "" {
		req.AccuracyMeters, err = strconv.ParseFloat(accuracy, 64)
		if err != nil {
			return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid accuracy"}
		}
	}
	return req, nil
}

// parseJoinRequest reads the multipart join submission: the proof image plus
// location form fields.
func parseJoinRequest(r *http.Request, riderID string) (service.JoinRequest, error) {
	var req service.JoinRequest

	zoneID, err := uuid.Parse(chi.URLParam(r, "zoneID"))
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid zone id"}
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid multipart body"}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "proof image is required"}
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "failed to read proof image"}
	}

	latitude, err := strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid latitude"}
	}
	longitude, err := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid longitude"}
	}
	var accuracy float64
	if v := r.FormValue("accuracy"); v != "" {
		accuracy, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid accuracy"}
		}
	}
	capturedAt, err := time.Parse(time.RFC3339, r.FormValue("captured_at"))
	if err != nil {
		return req, &models.Failure{Kind: models.FailureMalformedInput, Reason: "invalid captured_at, want RFC3339"}
	}

	return service.JoinRequest{
		RiderID:          riderID,
		ZoneID:           zoneID,
		Location:         geo.Point{Latitude: latitude, Longitude: longitude},
		AccuracyMeters:   accuracy,
		CapturedAt:       capturedAt,
		Image:            image,
		ImageContentType: header.Header.Get("Content-Type"),
	}, nil
}
