package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(x, z float64) CalibrationRecord {
	return CalibrationRecord{
		GPS:       GeoPoint{Longitude: 13.2 + x*1e-5, Latitude: 55.7 + z*1e-5, Accuracy: 3},
		Local:     LocalPoint{X: x, Z: z},
		Timestamp: time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestRecordSet_Add(t *testing.T) {
	t.Run("first record always accepted", func(t *testing.T) {
		s := NewRecordSet(10, 0.02)
		s, ok := s.Add(rec(0, 0))
		assert.True(t, ok)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("stationary dwelling keeps only the first record", func(t *testing.T) {
		s := NewRecordSet(10, 0.02)
		s, _ = s.Add(rec(0, 0))
		s, ok := s.Add(rec(0.01, 0.01))
		assert.False(t, ok)
		s, ok = s.Add(rec(0, 0))
		assert.False(t, ok)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("distance equal to threshold is rejected", func(t *testing.T) {
		s := NewRecordSet(10, 0.5)
		s, _ = s.Add(rec(0, 0))
		_, ok := s.Add(rec(0.5, 0))
		assert.False(t, ok)
	})

	t.Run("vertical movement alone is not novel", func(t *testing.T) {
		s := NewRecordSet(10, 0.02)
		s, _ = s.Add(rec(0, 0))
		r := rec(0, 0)
		r.Local.Y = 5
		_, ok := s.Add(r)
		assert.False(t, ok)
	})

	t.Run("identical position rejected even with zero threshold", func(t *testing.T) {
		s := NewRecordSet(10, 0)
		s, _ = s.Add(rec(1, 1))
		_, ok := s.Add(rec(1, 1))
		assert.False(t, ok)
	})

	t.Run("compares against most recent record only", func(t *testing.T) {
		s := NewRecordSet(10, 0.02)
		s, _ = s.Add(rec(0, 0))
		s, _ = s.Add(rec(1, 0))
		s, ok := s.Add(rec(0, 0))
		assert.True(t, ok)
		assert.Equal(t, 3, s.Len())
	})
}

func TestRecordSet_FIFOEviction(t *testing.T) {
	s := NewRecordSet(3, 0.02)
	for i := 0; i < 5; i++ {
		var ok bool
		s, ok = s.Add(rec(float64(i), 0))
		require.True(t, ok)
		assert.LessOrEqual(t, s.Len(), 3)
	}

	got := s.LocalPoints()
	require.Len(t, got, 3)
	assert.Equal(t, 2.0, got[0].X, "oldest records evicted first")
	assert.Equal(t, 3.0, got[1].X)
	assert.Equal(t, 4.0, got[2].X)
}

func TestRecordSet_AddDoesNotMutateReceiver(t *testing.T) {
	s1 := NewRecordSet(2, 0.02)
	s1, _ = s1.Add(rec(0, 0))
	s1, _ = s1.Add(rec(1, 0))
	before := s1.Records()

	s2, ok := s1.Add(rec(2, 0))
	require.True(t, ok)

	assert.Equal(t, before, s1.Records())
	assert.Equal(t, 2, s1.Len())
	assert.Equal(t, []LocalPoint{{X: 1}, {X: 2}}, s2.LocalPoints())
}

func TestRecordSet_Tail(t *testing.T) {
	s := NewRecordSet(10, 0.02)
	for i := 0; i < 4; i++ {
		s, _ = s.Add(rec(float64(i), 0))
	}

	assert.Nil(t, s.Tail(0))
	assert.Len(t, s.Tail(10), 4)

	tail := s.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, 2.0, tail[0].Local.X)
	assert.Equal(t, 3.0, tail[1].Local.X)
}

func TestTrackingState_InvalidatesCalibration(t *testing.T) {
	assert.False(t, TrackingStarted.InvalidatesCalibration())
	assert.True(t, TrackingLost.InvalidatesCalibration())
	assert.True(t, TrackingRestored.InvalidatesCalibration())
	assert.True(t, TrackingReset.InvalidatesCalibration())

	assert.False(t, TrackingLost.Tracking())
	assert.True(t, TrackingRestored.Tracking())
}

func TestDistances(t *testing.T) {
	a := GeoPoint{Longitude: 13.2, Latitude: 55.7, Altitude: 10}
	b := GeoPoint{Longitude: 13.2, Latitude: 55.7001, Altitude: 500}

	assert.InDelta(t, 11.13, GreatCircleDistance(a, b), 0.05, "altitude ignored")
	assert.Zero(t, GreatCircleDistance(a, a))

	p := LocalPoint{X: 0, Y: 0, Z: 0}
	q := LocalPoint{X: 3, Y: 12, Z: 4}
	assert.InDelta(t, 13.0, EuclideanDistance(p, q), 1e-12)
	assert.InDelta(t, 5.0, PlanarDistance(p, q), 1e-12)
}
