package models

import (
	"time"

	"github.com/google/uuid"

	"zonegate/pkg/geo"
)

// Zone is a circular geofence tied to an advertising campaign. Occupancy is
// the number of riders holding a live assignment; it is mutated only inside
// the join transaction and must never exceed Capacity.
type Zone struct {
	ID           uuid.UUID `json:"id"`
	CampaignID   uuid.UUID `json:"campaign_id"`
	Name         string    `json:"name"`
	Center       geo.Point `json:"center"`
	RadiusMeters float64   `json:"radius_meters"`
	Capacity     int       `json:"capacity"`
	Occupancy    int       `json:"occupancy"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasCapacity reports whether a new rider could still join. This is a
// pre-check only; the authoritative guard is the conditional occupancy
// update inside the join transaction.
func (z *Zone) HasCapacity() bool {
	return z.Occupancy < z.Capacity
}

// Contains reports whether p lies inside the zone boundary, widened by the
// reported GPS accuracy. Accuracy is clamped to maxTolerance so a wildly
// imprecise fix cannot place a rider kilometers past the boundary.
func (z *Zone) Contains(p geo.Point, accuracyMeters, maxTolerance float64) bool {
	tolerance := accuracyMeters
	if tolerance < 0 {
		tolerance = 0
	}
	if tolerance > maxTolerance {
		tolerance = maxTolerance
	}
	return geo.Distance(p, z.Center) <= z.RadiusMeters+tolerance
}
