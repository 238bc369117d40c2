// Package geo provides the single distance and containment implementation
// shared by every caller. Client and server must agree on the formula, so a
// boundary decision is always derivable from Distance alone:
//
//	Inside(p, c, r) == (Distance(p, c) <= r)
package geo

import (
	"math"

	dErrors "zonegate/pkg/domain-errors"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects NaN and out-of-range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return dErrors.New(dErrors.CodeValidation, "coordinates must be finite numbers")
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude must be within [-90, 90]")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude must be within [-180, 180]")
	}
	return nil
}

// Distance returns the haversine distance between two points in meters.
// Inputs are assumed validated; call Point.Validate at the boundary.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Inside reports whether p lies within radiusMeters of center.
func Inside(p, center Point, radiusMeters float64) bool {
	return Distance(p, center) <= radiusMeters
}
