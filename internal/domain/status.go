package domain

import "time"

// CalibrationStatus is a point-in-time snapshot of the calibration session,
// shown to the user and published to status consumers.
type CalibrationStatus struct {
	SessionID               string    `json:"session_id"`
	Generation              uint64    `json:"generation"`
	Strategy                string    `json:"strategy"`
	TransformationAvailable bool      `json:"transformation_available"`
	Percentage              int       `json:"percentage"`
	TrainingRecords         int       `json:"training_records"`
	TestRecords             int       `json:"test_records"`
	ErrorHorizontal         float64   `json:"error_horizontal"`
	FittedAt                time.Time `json:"fitted_at,omitzero"`
	ObservedAt              time.Time `json:"observed_at"`
}
