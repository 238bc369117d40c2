package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zonegate/pkg/domain-errors"
)

func TestPointValidate(t *testing.T) {
	tests := []struct {
		name    string
		point   Point
		wantErr bool
	}{
		{"valid", Point{Latitude: 6.5244, Longitude: 3.3792}, false},
		{"equator meridian", Point{}, false},
		{"extremes", Point{Latitude: 90, Longitude: -180}, false},
		{"latitude too high", Point{Latitude: 90.01}, true},
		{"latitude too low", Point{Latitude: -91}, true},
		{"longitude too high", Point{Longitude: 181}, true},
		{"nan latitude", Point{Latitude: math.NaN()}, true},
		{"inf longitude", Point{Longitude: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	t.Run("zero distance to self", func(t *testing.T) {
		p := Point{Latitude: 6.5244, Longitude: 3.3792}
		assert.Zero(t, Distance(p, p))
	})

	t.Run("symmetry", func(t *testing.T) {
		a := Point{Latitude: 6.5244, Longitude: 3.3792}
		b := Point{Latitude: 6.4654, Longitude: 3.4064}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	})

	t.Run("known distance", func(t *testing.T) {
		// One degree of latitude is roughly 111.2km on the sphere used here.
		a := Point{Latitude: 0, Longitude: 0}
		b := Point{Latitude: 1, Longitude: 0}
		assert.InDelta(t, 111195, Distance(a, b), 100)
	})

	t.Run("small offsets resolve to meters", func(t *testing.T) {
		// ~0.0009 degrees of latitude is ~100m.
		a := Point{Latitude: 6.5244, Longitude: 3.3792}
		b := Point{Latitude: 6.5253, Longitude: 3.3792}
		d := Distance(a, b)
		assert.Greater(t, d, 95.0)
		assert.Less(t, d, 105.0)
	})
}

// Inside must agree with Distance so client and server can never disagree on
// a boundary decision derived from the same inputs.
func TestInsideAgreesWithDistance(t *testing.T) {
	center := Point{Latitude: 6.5244, Longitude: 3.3792}
	radius := 100.0

	points := []Point{
		center,
		{Latitude: 6.5247, Longitude: 3.3792}, // ~33m
		{Latitude: 6.5253, Longitude: 3.3792}, // ~100m, on the boundary
		{Latitude: 6.5260, Longitude: 3.3792}, // ~178m
		{Latitude: 6.5244, Longitude: 3.3805}, // ~144m east
	}
	for _, p := range points {
		d := Distance(p, center)
		assert.Equal(t, d <= radius, Inside(p, center, radius), "point %+v distance %f", p, d)
	}
}
