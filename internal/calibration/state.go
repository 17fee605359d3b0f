// Package calibration decides which observations enter the calibration sets,
// when the geodetic→local model is refit, and serves transforms from the most
// recent fit.
package calibration

import "github.com/couchcryptid/flood-overlay/internal/domain"

// Config holds the record admission and refit thresholds.
type Config struct {
	MinAccuracy      float64 // fixes with a larger accuracy radius are dropped (meters)
	MinDistance      float64 // planar novelty threshold in local units
	MinPoints        int     // training records required before the first fit
	CalculationSteps int     // refit every N training records after the first fit
	MaxRecords       int
	MaxTestRecords   int
	TestStep         int // every Nth accepted record is held out for testing
	ComputeError     bool
}

// DefaultConfig returns the thresholds used by the device application.
func DefaultConfig() Config {
	return Config{
		MinAccuracy:      10,
		MinDistance:      0.02,
		MinPoints:        2,
		CalculationSteps: 10,
		MaxRecords:       200,
		MaxTestRecords:   50,
		TestStep:         5,
		ComputeError:     true,
	}
}

// Outcome classifies what happened to an observation.
type Outcome string

const (
	OutcomeRejectedAccuracy Outcome = "rejected_accuracy"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeTraining         Outcome = "training"
	OutcomeTest             Outcome = "test"
)

// Accepted reports whether the record was stored in either set.
func (o Outcome) Accepted() bool {
	return o == OutcomeTraining || o == OutcomeTest
}

// State is the pair of record sets. It is a value: Add returns the next state.
type State struct {
	Training domain.RecordSet
	Test     domain.RecordSet
	version  uint64
}

// NewState returns empty training and test sets sized from cfg.
func NewState(cfg Config) State {
	return State{
		Training: domain.NewRecordSet(cfg.MaxRecords, cfg.MinDistance),
		Test:     domain.NewRecordSet(cfg.MaxTestRecords, cfg.MinDistance),
	}
}

// Version counts the records accepted into the training set. Two states with
// the same version hold the same training records.
func (s State) Version() uint64 { return s.version }

// Add applies the admission rules to r and returns the resulting state.
//
// Fixes less accurate than cfg.MinAccuracy never enter either set. Once the
// training set holds a record, every cfg.TestStep-th record (counted over
// both sets) is routed to the test set. Both sets apply the novelty filter.
func (s State) Add(cfg Config, r domain.CalibrationRecord) (State, Outcome) {
	if r.GPS.Accuracy > cfg.MinAccuracy {
		return s, OutcomeRejectedAccuracy
	}

	train, test := s.Training.Len(), s.Test.Len()
	if cfg.TestStep > 0 && train > 0 && (train+test)%cfg.TestStep == 0 {
		next, ok := s.Test.Add(r)
		if !ok {
			return s, OutcomeDuplicate
		}
		s.Test = next
		return s, OutcomeTest
	}

	next, ok := s.Training.Add(r)
	if !ok {
		return s, OutcomeDuplicate
	}
	s.Training = next
	s.version++
	return s, OutcomeTraining
}

// refitDue reports whether the training count sits on a refit boundary.
func (s State) refitDue(cfg Config) bool {
	n := s.Training.Len()
	if n <= cfg.MinPoints {
		return false
	}
	if n == cfg.MinPoints+1 {
		return true
	}
	return cfg.CalculationSteps > 0 && n%cfg.CalculationSteps == 0
}
