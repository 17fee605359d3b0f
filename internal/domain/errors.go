package domain

import "errors"

var (
	// ErrTransformUnavailable is returned when a geodetic→local transform is
	// requested before a model has been fit.
	ErrTransformUnavailable = errors.New("transformation is not available yet")

	// ErrEmptyInput is returned when a transform is called with no locations.
	ErrEmptyInput = errors.New("the input array of locations is empty")

	// ErrLengthMismatch is returned when paired GPS and local arrays differ in length.
	ErrLengthMismatch = errors.New("number of GPS locations and local positions are not equal")

	// ErrEmptyCorpus is returned when a nearest-point query runs over no samples.
	ErrEmptyCorpus = errors.New("no flood samples to search")

	// ErrInsufficientRecords is returned when a strategy is asked to fit without data.
	ErrInsufficientRecords = errors.New("not enough calibration records to fit")

	// ErrFitDiscarded is returned when a refit completes after a restart.
	ErrFitDiscarded = errors.New("fit discarded: calibration was restarted")
)
