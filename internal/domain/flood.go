package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// NoNeighborHeight marks a sample whose nearest-neighbor ground height was
// never recorded.
const NoNeighborHeight = -9999

// FloodSample is one pre-surveyed point of the flood model. Heights are in
// meters; water heights are stored already converted from centimeters.
type FloodSample struct {
	Longitude                   float64 `json:"lon"`
	Latitude                    float64 `json:"lat"`
	IsInsideBuilding            bool    `json:"inside_building"`
	GroundHeight                float64 `json:"ground_height"`
	WaterHeight                 float64 `json:"water_height"`
	NearestNeighborGroundHeight float64 `json:"nn_ground_height"`
	NearestNeighborWaterHeight  float64 `json:"nn_water_height"`
}

// Point returns the sample position as an orb point (longitude, latitude).
func (s FloodSample) Point() orb.Point {
	return orb.Point{s.Longitude, s.Latitude}
}

// GeoPoint returns the sample position as a GeoPoint at zero altitude.
func (s FloodSample) GeoPoint() GeoPoint {
	return GeoPoint{Longitude: s.Longitude, Latitude: s.Latitude}
}

// HasNeighborHeight reports whether a valid neighbor ground height exists.
func (s FloodSample) HasNeighborHeight() bool {
	return s.NearestNeighborGroundHeight != NoNeighborHeight
}

// WaterDepth returns the water height a measuring stick placed at the sample
// should show. Samples inside buildings report their neighbor's water.
func (s FloodSample) WaterDepth() float64 {
	if s.IsInsideBuilding {
		return s.NearestNeighborWaterHeight
	}
	return s.WaterHeight
}

// PointsWithinRadius returns, in input order, every sample whose great-circle
// distance to center is at most radius meters.
func PointsWithinRadius(samples []FloodSample, radius float64, center GeoPoint) []FloodSample {
	var out []FloodSample
	c := center.Point()
	for _, s := range samples {
		if distanceTo(s, c) <= radius {
			out = append(out, s)
		}
	}
	return out
}

// ClosestPoint returns the sample nearest to center. On ties the first
// sample in iteration order wins.
func ClosestPoint(samples []FloodSample, center GeoPoint) (FloodSample, error) {
	if len(samples) == 0 {
		return FloodSample{}, ErrEmptyCorpus
	}
	c := center.Point()
	best, bestDist := 0, math.Inf(1)
	for i, s := range samples {
		if d := distanceTo(s, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return samples[best], nil
}

func distanceTo(s FloodSample, c orb.Point) float64 {
	return geo.DistanceHaversine(s.Point(), c)
}

// BuildingFallback selects what HeightAt does for a sample inside a building
// that has no valid neighbor height.
type BuildingFallback string

const (
	// FallbackZero reports a relative height of zero.
	FallbackZero BuildingFallback = "zero"
	// FallbackOwn uses the sample's own ground and water heights.
	FallbackOwn BuildingFallback = "own"
	// FallbackExclude marks the sample as unusable.
	FallbackExclude BuildingFallback = "exclude"
)

// ParseBuildingFallback validates a fallback policy name.
func ParseBuildingFallback(s string) (BuildingFallback, error) {
	switch p := BuildingFallback(s); p {
	case FallbackZero, FallbackOwn, FallbackExclude:
		return p, nil
	default:
		return "", fmt.Errorf("unknown building fallback %q", s)
	}
}

// HeightSource records which pair of heights a HeightResult was derived from.
type HeightSource string

const (
	HeightFromSample   HeightSource = "sample"
	HeightFromNeighbor HeightSource = "neighbor"
	HeightFromFallback HeightSource = "fallback"
	HeightExcluded     HeightSource = "excluded"
)

// HeightResult is the relative flood height at a sample.
type HeightResult struct {
	Relative float64      `json:"relative"`
	Source   HeightSource `json:"source"`
}

// Usable reports whether the sample should take part in an overlay.
func (r HeightResult) Usable() bool { return r.Source != HeightExcluded }

// HeightModel turns flood samples into heights relative to the camera.
type HeightModel struct {
	// VerticalOffset is added to every relative height (exaggeration or
	// calibration term).
	VerticalOffset float64
	// Fallback applies to building samples without a neighbor height.
	Fallback BuildingFallback
}

// HeightAt returns the water surface height at sample relative to the ground
// height at the camera.
func (m HeightModel) HeightAt(sample FloodSample, cameraGroundHeight float64) HeightResult {
	switch {
	case !sample.IsInsideBuilding:
		return HeightResult{
			Relative: m.relative(cameraGroundHeight, sample.GroundHeight, sample.WaterHeight),
			Source:   HeightFromSample,
		}
	case sample.HasNeighborHeight():
		return HeightResult{
			Relative: m.relative(cameraGroundHeight, sample.NearestNeighborGroundHeight, sample.NearestNeighborWaterHeight),
			Source:   HeightFromNeighbor,
		}
	}

	switch m.Fallback {
	case FallbackOwn:
		return HeightResult{
			Relative: m.relative(cameraGroundHeight, sample.GroundHeight, sample.WaterHeight),
			Source:   HeightFromSample,
		}
	case FallbackExclude:
		return HeightResult{Source: HeightExcluded}
	default:
		return HeightResult{Source: HeightFromFallback}
	}
}

func (m HeightModel) relative(cameraGround, groundAtPoint, waterAtPoint float64) float64 {
	return groundAtPoint - cameraGround + waterAtPoint + m.VerticalOffset
}
