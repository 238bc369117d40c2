package models

import (
	"errors"
	"fmt"
)

// FailureKind tags the closed set of non-success join outcomes. Callers
// branch on the kind; the carried fields give the client actionable values
// (remaining wait, distance) instead of generic errors.
type FailureKind string

const (
	FailureZoneNotFound       FailureKind = "zone_not_found"
	FailureCooldownActive     FailureKind = "cooldown_active"
	FailureOutOfBounds        FailureKind = "out_of_bounds"
	FailureZoneFull           FailureKind = "zone_full"
	FailureVerificationFailed FailureKind = "verification_failed"
	FailureMalformedInput     FailureKind = "malformed_input"
	FailureRiderUnavailable   FailureKind = "rider_unavailable"
)

// Failure is a typed, expected rejection. It is returned as an error so it
// flows through ordinary error plumbing, but it is part of the contract, not
// an internal fault: handlers unwrap it with AsFailure.
type Failure struct {
	Kind             FailureKind `json:"kind"`
	Reason           string      `json:"reason,omitempty"`
	RemainingSeconds int         `json:"remaining_seconds,omitempty"`
	DistanceMeters   float64     `json:"distance_meters,omitempty"`
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureCooldownActive:
		return fmt.Sprintf("cooldown active: %ds remaining", f.RemainingSeconds)
	case FailureOutOfBounds:
		return fmt.Sprintf("out of bounds: %.0fm from zone center", f.DistanceMeters)
	case FailureVerificationFailed:
		return "verification failed: " + f.Reason
	}
	if f.Reason != "" {
		return string(f.Kind) + ": " + f.Reason
	}
	return string(f.Kind)
}

// AsFailure unwraps a typed join failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
