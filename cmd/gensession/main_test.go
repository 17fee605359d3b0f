package main

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

var origin = domain.GeoPoint{Longitude: 13.1905, Latitude: 55.7047, Altitude: 12}

func TestMapping_ToLocal(t *testing.T) {
	m := mapping{Origin: origin}

	o := m.toLocal(origin)
	assert.InDelta(t, 0, o.X, 1e-9)
	assert.InDelta(t, cameraHeight, o.Y, 1e-9)
	assert.InDelta(t, 0, o.Z, 1e-9)

	east := m.toLocal(m.offset(origin, 10, 0))
	assert.InDelta(t, 10, east.X, 1e-6)
	assert.InDelta(t, 0, east.Z, 1e-6)

	north := m.toLocal(m.offset(origin, 0, 10))
	assert.InDelta(t, -10, north.Z, 1e-6)

	rotated := mapping{Origin: origin, Heading: math.Pi / 2}.toLocal(m.offset(origin, 10, 0))
	assert.InDelta(t, 0, rotated.X, 1e-6)
	assert.InDelta(t, -10, rotated.Z, 1e-6)
}

func TestGenerate(t *testing.T) {
	m := mapping{Origin: origin, Heading: 0.5}
	p := params{n: 50, seed: 7, noise: 0, poorEvery: 10, step: time.Second}

	obs := generate(m, p, clockwork.NewFakeClockAt(startTime))
	require.Len(t, obs, 50)

	for i, o := range obs {
		assert.Equal(t, startTime.Add(time.Duration(i+1)*time.Second), o.Timestamp)
		if (i+1)%10 == 0 {
			assert.InDelta(t, 25, o.GPS.Accuracy, 0, "poor fix %d", i)
		} else {
			assert.LessOrEqual(t, o.GPS.Accuracy, 10.0)
		}
		// Without noise the fix maps exactly onto the walked position.
		want := m.toLocal(o.GPS)
		assert.InDelta(t, want.X, o.Local.X, 1e-6)
		assert.InDelta(t, want.Z, o.Local.Z, 1e-6)
	}

	again := generate(m, p, clockwork.NewFakeClockAt(startTime))
	assert.Equal(t, obs, again, "same seed, same session")
}
