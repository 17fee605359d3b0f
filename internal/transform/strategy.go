// Package transform fits the geodetic→local mapping from calibration records.
//
// Three strategies exist and are selected by Kind:
//
//	linear-xz   X and Z linear in (lon, lat); Y is zero.
//	linear-xyz  X and Z linear in (lon, lat); Y linear in (lon, lat, alt).
//	kernel      X and Y from a polynomial (degree 2) kernel ridge regression
//	            on (lon, lat); Z is zero.
//
// Inputs are centered (and for the kernel, scaled) before fitting, because raw
// longitudes and latitudes differ by only 1e-5 degrees over the calibration
// area and the design matrix would otherwise be nearly singular.
package transform

import (
	"fmt"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// Kind names a fitting strategy.
type Kind string

const (
	LinearXZ  Kind = "linear-xz"
	LinearXYZ Kind = "linear-xyz"
	Kernel    Kind = "kernel"
)

// ParseKind validates a strategy name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case LinearXZ, LinearXYZ, Kernel:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transform strategy %q", s)
	}
}

// Strategy fits a Model from training records.
type Strategy interface {
	Kind() Kind
	Fit(records []domain.CalibrationRecord) (Model, error)
}

// Model maps geodetic points to local points. A Model never changes after
// Fit returns it.
type Model interface {
	Predict(points []domain.GeoPoint) ([]domain.LocalPoint, error)
}

// New returns the strategy for kind.
func New(kind Kind) (Strategy, error) {
	switch kind {
	case LinearXZ:
		return linearStrategy{withAltitude: false}, nil
	case LinearXYZ:
		return linearStrategy{withAltitude: true}, nil
	case Kernel:
		return kernelStrategy{degree: 2, complexity: 100}, nil
	default:
		return nil, fmt.Errorf("unknown transform strategy %q", kind)
	}
}

func planarInputs(points []domain.GeoPoint) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = []float64{p.Longitude, p.Latitude}
	}
	return out
}

func spatialInputs(points []domain.GeoPoint) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		out[i] = []float64{p.Longitude, p.Latitude, p.Altitude}
	}
	return out
}

func recordGeoPoints(records []domain.CalibrationRecord) []domain.GeoPoint {
	out := make([]domain.GeoPoint, len(records))
	for i, r := range records {
		out[i] = r.GPS
	}
	return out
}

func axis(records []domain.CalibrationRecord, pick func(domain.LocalPoint) float64) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = pick(r.Local)
	}
	return out
}

func localX(p domain.LocalPoint) float64 { return p.X }
func localY(p domain.LocalPoint) float64 { return p.Y }
func localZ(p domain.LocalPoint) float64 { return p.Z }
