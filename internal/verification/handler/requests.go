package handler

import (
	"encoding/json"
	"io"
	"net/http"

	dErrors "zonegate/pkg/domain-errors"
	"zonegate/pkg/geo"
)

// maxUploadBytes mirrors the join upload cap: above the 5MB image rule so an
// oversized photo is judged by the pipeline, not cut off at the transport.
const maxUploadBytes = 12 * 1024 * 1024

type createRandomRequest struct {
	Location       geo.Point
	AccuracyMeters float64
}

func parseCreateRandomRequest(r *http.Request) (createRandomRequest, error) {
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Accuracy  float64  `json:"accuracy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return createRandomRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if body.Latitude == nil || body.Longitude == nil {
		return createRandomRequest{}, dErrors.New(dErrors.CodeValidation, "latitude and longitude are required")
	}
	return createRandomRequest{
		Location:       geo.Point{Latitude: *body.Latitude, Longitude: *body.Longitude},
		AccuracyMeters: body.Accuracy,
	}, nil
}

func parseSubmitRequest(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "invalid multipart body")
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", dErrors.New(dErrors.CodeValidation, "proof image is required")
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		return nil, "", dErrors.New(dErrors.CodeBadRequest, "failed to read proof image")
	}
	return image, header.Header.Get("Content-Type"), nil
}
