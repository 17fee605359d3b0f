package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCorpus = []FloodSample{
	{Longitude: 13.20000, Latitude: 55.70000, GroundHeight: 10, WaterHeight: 0.5, NearestNeighborGroundHeight: NoNeighborHeight},
	{Longitude: 13.20010, Latitude: 55.70000, GroundHeight: 11, WaterHeight: 2.5, NearestNeighborGroundHeight: NoNeighborHeight},
	{Longitude: 13.20000, Latitude: 55.70010, GroundHeight: 9, WaterHeight: 1.0, NearestNeighborGroundHeight: NoNeighborHeight},
	{Longitude: 13.20100, Latitude: 55.70100, GroundHeight: 12, WaterHeight: 0.0, NearestNeighborGroundHeight: NoNeighborHeight},
}

func TestPointsWithinRadius(t *testing.T) {
	center := GeoPoint{Longitude: 13.2, Latitude: 55.7}

	t.Run("zero radius returns only coincident samples", func(t *testing.T) {
		got := PointsWithinRadius(testCorpus, 0, center)
		require.Len(t, got, 1)
		assert.Equal(t, testCorpus[0], got[0])
	})

	t.Run("infinite radius returns whole corpus in order", func(t *testing.T) {
		got := PointsWithinRadius(testCorpus, math.Inf(1), center)
		assert.Equal(t, testCorpus, got)
	})

	t.Run("radius excludes far sample", func(t *testing.T) {
		got := PointsWithinRadius(testCorpus, 20, center)
		require.Len(t, got, 3)
		assert.NotContains(t, got, testCorpus[3])
	})

	t.Run("empty corpus", func(t *testing.T) {
		assert.Empty(t, PointsWithinRadius(nil, 100, center))
	})
}

func TestClosestPoint(t *testing.T) {
	t.Run("empty corpus is an error", func(t *testing.T) {
		_, err := ClosestPoint(nil, GeoPoint{})
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("single sample always wins", func(t *testing.T) {
		only := []FloodSample{{Longitude: -97, Latitude: 35}}
		got, err := ClosestPoint(only, GeoPoint{Longitude: 13.2, Latitude: 55.7})
		require.NoError(t, err)
		assert.Equal(t, only[0], got)
	})

	t.Run("picks nearest", func(t *testing.T) {
		device := GeoPoint{Longitude: 13.20007, Latitude: 55.70001}
		got, err := ClosestPoint(testCorpus, device)
		require.NoError(t, err)
		assert.Equal(t, testCorpus[1], got)
	})

	t.Run("ties go to first encountered", func(t *testing.T) {
		twins := []FloodSample{
			{Longitude: 13.2, Latitude: 55.7, GroundHeight: 1},
			{Longitude: 13.2, Latitude: 55.7, GroundHeight: 2},
		}
		got, err := ClosestPoint(twins, GeoPoint{Longitude: 13.2001, Latitude: 55.7})
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.GroundHeight)
	})
}

func TestHeightModel_HeightAt(t *testing.T) {
	outside := FloodSample{GroundHeight: 11, WaterHeight: 2.5, NearestNeighborGroundHeight: 7, NearestNeighborWaterHeight: 9}
	buildingWithNeighbor := FloodSample{IsInsideBuilding: true, GroundHeight: 50, WaterHeight: 50, NearestNeighborGroundHeight: 10.5, NearestNeighborWaterHeight: 1.25}
	buildingNoNeighbor := FloodSample{IsInsideBuilding: true, GroundHeight: 50, WaterHeight: 3, NearestNeighborGroundHeight: NoNeighborHeight, NearestNeighborWaterHeight: -99.99}

	cases := []struct {
		name     string
		model    HeightModel
		sample   FloodSample
		relative float64
		source   HeightSource
	}{
		{name: "outside uses own pair", model: HeightModel{}, sample: outside, relative: 11 - 10 + 2.5, source: HeightFromSample},
		{name: "offset is added", model: HeightModel{VerticalOffset: 0.5}, sample: outside, relative: 11 - 10 + 2.5 + 0.5, source: HeightFromSample},
		{name: "building uses neighbor pair", model: HeightModel{}, sample: buildingWithNeighbor, relative: 10.5 - 10 + 1.25, source: HeightFromNeighbor},
		{name: "building without neighbor falls back to zero", model: HeightModel{}, sample: buildingNoNeighbor, relative: 0, source: HeightFromFallback},
		{name: "explicit zero fallback ignores offset", model: HeightModel{Fallback: FallbackZero, VerticalOffset: 2}, sample: buildingNoNeighbor, relative: 0, source: HeightFromFallback},
		{name: "own fallback", model: HeightModel{Fallback: FallbackOwn}, sample: buildingNoNeighbor, relative: 50 - 10 + 3, source: HeightFromSample},
		{name: "exclude fallback", model: HeightModel{Fallback: FallbackExclude}, sample: buildingNoNeighbor, relative: 0, source: HeightExcluded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.model.HeightAt(tc.sample, 10)
			assert.InDelta(t, tc.relative, got.Relative, 1e-9)
			assert.Equal(t, tc.source, got.Source)
			assert.Equal(t, tc.source != HeightExcluded, got.Usable())
		})
	}
}

func TestFloodSample_WaterDepth(t *testing.T) {
	assert.Equal(t, 2.5, FloodSample{WaterHeight: 2.5, NearestNeighborWaterHeight: 1}.WaterDepth())
	assert.Equal(t, 1.0, FloodSample{IsInsideBuilding: true, WaterHeight: 2.5, NearestNeighborWaterHeight: 1}.WaterDepth())
}

func TestParseBuildingFallback(t *testing.T) {
	for _, s := range []string{"zero", "own", "exclude"} {
		p, err := ParseBuildingFallback(s)
		require.NoError(t, err)
		assert.Equal(t, BuildingFallback(s), p)
	}
	_, err := ParseBuildingFallback("nearest")
	assert.Error(t, err)
}

func TestEndToEnd_ClosestSampleWaterHeight(t *testing.T) {
	// Water heights as loaded from the survey (centimeters / 100).
	corpus := []FloodSample{
		{Longitude: 13.20000, Latitude: 55.70000, GroundHeight: 10, WaterHeight: 120.0 / 100, NearestNeighborGroundHeight: NoNeighborHeight},
		{Longitude: 13.20020, Latitude: 55.70000, GroundHeight: 10, WaterHeight: 250.0 / 100, NearestNeighborGroundHeight: NoNeighborHeight},
		{Longitude: 13.20000, Latitude: 55.70020, GroundHeight: 10, WaterHeight: 80.0 / 100, NearestNeighborGroundHeight: NoNeighborHeight},
		{Longitude: 13.20020, Latitude: 55.70020, GroundHeight: 10, WaterHeight: 10.0 / 100, NearestNeighborGroundHeight: NoNeighborHeight},
	}
	// Slightly nearer to the second sample than the first.
	device := GeoPoint{Longitude: 13.20011, Latitude: 55.70000}

	closest, err := ClosestPoint(corpus, device)
	require.NoError(t, err)
	assert.Equal(t, corpus[1], closest)

	h := HeightModel{}.HeightAt(closest, closest.GroundHeight)
	assert.InDelta(t, 2.50, h.Relative, 1e-9)
}
