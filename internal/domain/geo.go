package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// GeoPoint is a geodetic position as reported by a satellite positioning
// sensor. Accuracy is the horizontal accuracy radius in meters.
type GeoPoint struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	Altitude  float64 `json:"alt"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Point returns the position as an orb point (longitude, latitude).
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// LocalPoint is a position in the device's tracking space. Y is vertical.
type LocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// GreatCircleDistance returns the haversine distance in meters between two
// geodetic points. Altitude is ignored.
func GreatCircleDistance(a, b GeoPoint) float64 {
	return geo.DistanceHaversine(a.Point(), b.Point())
}

// EuclideanDistance returns the 3-D distance between two local points.
func EuclideanDistance(a, b LocalPoint) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// PlanarDistance returns the horizontal (x/z) distance between two local points.
func PlanarDistance(a, b LocalPoint) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// samePlanarPosition reports whether two local points coincide on the
// horizontal plane.
func samePlanarPosition(a, b LocalPoint) bool {
	return a.X == b.X && a.Z == b.Z
}
