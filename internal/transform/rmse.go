package transform

import (
	"math"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// HorizontalRMSE is sqrt(mean(dx²) + mean(dz²)) / 2 over paired points.
// Empty input yields 0.
func HorizontalRMSE(predicted, expected []domain.LocalPoint) (float64, error) {
	if len(predicted) != len(expected) {
		return 0, domain.ErrLengthMismatch
	}
	if len(predicted) == 0 {
		return 0, nil
	}
	var sx, sz float64
	for i := range predicted {
		dx := predicted[i].X - expected[i].X
		dz := predicted[i].Z - expected[i].Z
		sx += dx * dx
		sz += dz * dz
	}
	n := float64(len(predicted))
	return math.Sqrt(sx/n+sz/n) / 2, nil
}

// Evaluate predicts the geodetic side of records with m and returns the
// horizontal RMSE against their local side.
func Evaluate(m Model, records []domain.CalibrationRecord) (float64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	pred, err := m.Predict(recordGeoPoints(records))
	if err != nil {
		return 0, err
	}
	expected := make([]domain.LocalPoint, len(records))
	for i, r := range records {
		expected[i] = r.Local
	}
	return HorizontalRMSE(pred, expected)
}
