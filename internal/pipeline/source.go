package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// LocationSource yields location fixes. NextLocation blocks until a fix is
// available.
type LocationSource interface {
	NextLocation(ctx context.Context) (domain.LocationReading, error)
}

// PoseSource reports the tracking-space camera position at the moment it is
// asked.
type PoseSource interface {
	CurrentPose() (domain.LocalPoint, bool)
}

// PairedSource pairs every location fix with the camera pose current when the
// fix is processed. Fixes that arrive before any pose are skipped.
type PairedSource struct {
	locations LocationSource
	poses     PoseSource
	logger    *slog.Logger
}

// NewPairedSource creates an ObservationSource from a location provider and
// the tracking subsystem.
func NewPairedSource(locations LocationSource, poses PoseSource, logger *slog.Logger) *PairedSource {
	return &PairedSource{locations: locations, poses: poses, logger: logger}
}

// Next returns the next fix paired with the current pose.
func (s *PairedSource) Next(ctx context.Context) (domain.Observation, error) {
	for {
		reading, err := s.locations.NextLocation(ctx)
		if err != nil {
			return domain.Observation{}, err
		}
		pose, ok := s.poses.CurrentPose()
		if !ok {
			s.logger.Debug("location skipped, no camera pose yet")
			continue
		}
		return domain.Observation{GPS: reading.Position, Local: pose, Timestamp: reading.Timestamp}, nil
	}
}

// MultiPublisher fans a status out to several publishers and returns the
// first error.
type MultiPublisher []StatusPublisher

// PublishStatus publishes to every publisher.
func (m MultiPublisher) PublishStatus(ctx context.Context, status domain.CalibrationStatus) error {
	var first error
	for _, p := range m {
		if err := p.PublishStatus(ctx, status); err != nil && first == nil {
			first = err
		}
	}
	return first
}
