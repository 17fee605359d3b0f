// Package flood answers spatial questions over the static flood survey:
// which samples surround the device, which one is closest, and what water
// height each of them represents relative to the camera.
package flood

import (
	"log/slog"
	"math"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// Engine queries an immutable corpus of flood samples.
type Engine struct {
	samples []domain.FloodSample
	index   *index
	heights domain.HeightModel
	radius  float64
	logger  *slog.Logger
}

// NewEngine indexes samples. radius is the overlay radius in meters.
func NewEngine(samples []domain.FloodSample, heights domain.HeightModel, radius float64, logger *slog.Logger) *Engine {
	e := &Engine{
		samples: samples,
		index:   newIndex(samples),
		heights: heights,
		radius:  radius,
		logger:  logger,
	}
	logger.Info("flood corpus indexed", "samples", len(samples), "radius_m", radius, "building_fallback", heights.Fallback)
	return e
}

// Len returns the corpus size.
func (e *Engine) Len() int { return len(e.samples) }

// PointsWithinRadius returns the samples within radius meters of center in
// corpus order. It returns the same samples as domain.PointsWithinRadius.
func (e *Engine) PointsWithinRadius(radius float64, center domain.GeoPoint) []domain.FloodSample {
	if e.index == nil || math.IsInf(radius, 1) || radius > maxIndexedRadius {
		return domain.PointsWithinRadius(e.samples, radius, center)
	}
	return e.index.within(e.samples, radius, center)
}

// ClosestPoint returns the sample nearest to center; the first of equally
// near samples wins.
func (e *Engine) ClosestPoint(center domain.GeoPoint) (domain.FloodSample, error) {
	return domain.ClosestPoint(e.samples, center)
}

// HeightAt returns the height of sample relative to cameraGroundHeight.
func (e *Engine) HeightAt(sample domain.FloodSample, cameraGroundHeight float64) domain.HeightResult {
	return e.heights.HeightAt(sample, cameraGroundHeight)
}
