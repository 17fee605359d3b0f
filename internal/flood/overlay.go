package flood

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// ErrEmptyOverlay is returned when a water height is requested from an
// overlay without vertices.
var ErrEmptyOverlay = errors.New("overlay has no vertices")

// Transformer maps geodetic points into tracking space.
type Transformer interface {
	TransformGpsToWorldBatch(points []domain.GeoPoint) ([]domain.LocalPoint, error)
}

// Vertex is one flood sample placed in tracking space. Local.Y is the
// relative flood height at the sample.
type Vertex struct {
	Sample domain.FloodSample `json:"sample"`
	Local  domain.LocalPoint  `json:"local"`
	Height domain.HeightResult `json:"height"`
}

// Overlay is the set of flood samples around the device, ready to be
// triangulated by the renderer.
type Overlay struct {
	Device             domain.GeoPoint    `json:"device"`
	Reference          domain.FloodSample `json:"reference"`
	CameraGroundHeight float64            `json:"camera_ground_height"`
	Vertices           []Vertex           `json:"vertices"`
}

// BuildOverlay selects the samples within the engine radius of device, takes
// the ground height of the closest one as the camera reference, and places
// each usable sample in tracking space at its relative flood height.
// An overlay with no vertices is returned when no sample is in range.
func (e *Engine) BuildOverlay(device domain.GeoPoint, t Transformer) (Overlay, error) {
	ov := Overlay{Device: device}

	near := e.PointsWithinRadius(e.radius, device)
	if len(near) == 0 {
		e.logger.Debug("no flood samples in range", "lon", device.Longitude, "lat", device.Latitude, "radius_m", e.radius)
		return ov, nil
	}

	ref, err := domain.ClosestPoint(near, device)
	if err != nil {
		return ov, err
	}
	ov.Reference = ref
	ov.CameraGroundHeight = ref.GroundHeight

	usable := make([]domain.FloodSample, 0, len(near))
	heights := make([]domain.HeightResult, 0, len(near))
	for _, s := range near {
		h := e.heights.HeightAt(s, ref.GroundHeight)
		if !h.Usable() {
			continue
		}
		usable = append(usable, s)
		heights = append(heights, h)
	}
	if len(usable) == 0 {
		return ov, nil
	}

	geoPoints := make([]domain.GeoPoint, len(usable))
	for i, s := range usable {
		geoPoints[i] = s.GeoPoint()
	}
	local, err := t.TransformGpsToWorldBatch(geoPoints)
	if err != nil {
		return ov, fmt.Errorf("transform flood samples: %w", err)
	}

	ov.Vertices = make([]Vertex, len(usable))
	for i, s := range usable {
		lp := local[i]
		lp.Y = heights[i].Relative
		ov.Vertices[i] = Vertex{Sample: s, Local: lp, Height: heights[i]}
	}
	return ov, nil
}

// WaterHeightAt returns the water depth of the vertex nearest to p in
// tracking space. Building samples report their neighbor's water height.
func (o Overlay) WaterHeightAt(p domain.LocalPoint) (float64, error) {
	if len(o.Vertices) == 0 {
		return 0, ErrEmptyOverlay
	}
	best := 0
	bestDist := domain.EuclideanDistance(o.Vertices[0].Local, p)
	for i := 1; i < len(o.Vertices); i++ {
		if d := domain.EuclideanDistance(o.Vertices[i].Local, p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return o.Vertices[best].Sample.WaterDepth(), nil
}
