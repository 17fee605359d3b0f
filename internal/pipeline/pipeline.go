package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/observability"
)

// ObservationSource yields paired observations. Next blocks until one is
// available and returns io.EOF when the source is exhausted.
type ObservationSource interface {
	Next(ctx context.Context) (domain.Observation, error)
}

// StatusPublisher receives a calibration snapshot after every applied refit
// and every restart.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, status domain.CalibrationStatus) error
}

const (
	// OutcomeTrackingLost is reported for observations dropped while tracking is lost.
	OutcomeTrackingLost calibration.Outcome = "tracking_lost"
	// OutcomeStale is reported for observations paired before the latest restart.
	OutcomeStale calibration.Outcome = "stale"
)

// Pipeline feeds observations into the calibration controller and refits the
// transformation on a background worker.
type Pipeline struct {
	source    ObservationSource
	ctrl      *calibration.Controller
	publisher StatusPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	refit chan struct{}

	// mu orders observations against restarts.
	mu       sync.Mutex
	tracking bool
	epoch    uint64
}

// New creates a Pipeline. publisher may be nil.
func New(source ObservationSource, ctrl *calibration.Controller, publisher StatusPublisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	p := &Pipeline{
		source:    source,
		ctrl:      ctrl,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		refit:     make(chan struct{}, 1),
		tracking:  true,
	}
	return p
}

// CheckReadiness returns nil once geodetic→local transforms can be served.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ctrl.TransformationAvailable() {
		return errors.New("calibration in progress: keep walking to calibrate")
	}
	return nil
}

// Run reads observations until the context is cancelled or the source is
// exhausted. A refit that is still due when the source ends is completed
// before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "strategy", p.ctrl.Strategy())
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.refitLoop(ctx, done)
	}()
	defer wg.Wait()
	defer close(done)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		epoch := p.currentEpoch()
		obs, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.logger.Info("observation source exhausted",
					"training_records", p.ctrl.NumberOfRecords(),
					"test_records", p.ctrl.NumberOfTestRecords())
				return nil
			}
			p.logger.Error("read observation failed", "error", err)
			p.metrics.SourceErrors.Inc()
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff
		p.observe(epoch, obs)
	}
}

// Observe offers one observation to the controller and schedules a refit
// when one is due. Observations made while tracking is lost are dropped.
func (p *Pipeline) Observe(obs domain.Observation) calibration.Outcome {
	return p.observe(p.currentEpoch(), obs)
}

func (p *Pipeline) currentEpoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// observe records obs unless a restart happened after epoch was read, in
// which case the pose may belong to the previous tracking origin.
func (p *Pipeline) observe(epoch uint64, obs domain.Observation) calibration.Outcome {
	p.mu.Lock()
	var outcome calibration.Outcome
	switch {
	case !p.tracking:
		outcome = OutcomeTrackingLost
	case epoch != p.epoch:
		outcome = OutcomeStale
	default:
		outcome = p.ctrl.Observe(obs)
	}
	p.mu.Unlock()

	p.metrics.Observations.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeStale {
		p.logger.Debug("observation from before restart dropped", "timestamp", obs.Timestamp)
	}
	if outcome.Accepted() {
		p.metrics.TrainingRecords.Set(float64(p.ctrl.NumberOfRecords()))
		p.metrics.TestRecords.Set(float64(p.ctrl.NumberOfTestRecords()))
	}
	if p.ctrl.RefitDue() {
		select {
		case p.refit <- struct{}{}:
		default: // a refit is already scheduled
		}
	}
	return outcome
}

// HandleTracking reacts to a tracking state change. Any change that may have
// moved the tracking origin restarts the calibration.
func (p *Pipeline) HandleTracking(ctx context.Context, ev domain.TrackingEvent) {
	p.logger.Info("tracking state changed", "state", ev.State)
	restart := ev.State.InvalidatesCalibration()

	p.mu.Lock()
	p.tracking = ev.State.Tracking()
	if restart {
		p.restartLocked()
	}
	p.mu.Unlock()

	if restart {
		p.afterRestart(ctx)
	}
}

// Restart discards the calibration session and publishes the empty status.
func (p *Pipeline) Restart(ctx context.Context) domain.CalibrationStatus {
	p.mu.Lock()
	p.restartLocked()
	p.mu.Unlock()
	return p.afterRestart(ctx)
}

func (p *Pipeline) restartLocked() {
	p.epoch++
	p.ctrl.Restart()
}

func (p *Pipeline) afterRestart(ctx context.Context) domain.CalibrationStatus {
	p.metrics.Restarts.Inc()
	p.updateGauges()
	p.publish(ctx)
	return p.ctrl.Status()
}

// WatchTracking applies tracking events until ctx is cancelled or events is
// closed.
func (p *Pipeline) WatchTracking(ctx context.Context, events <-chan domain.TrackingEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.HandleTracking(ctx, ev)
		}
	}
}

func (p *Pipeline) refitLoop(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.refit:
			p.solve(ctx)
		case <-done:
			if p.ctrl.RefitDue() {
				p.solve(ctx)
			}
			return
		}
	}
}

func (p *Pipeline) solve(ctx context.Context) {
	start := time.Now()
	applied, err := p.ctrl.SolveTransformation(ctx)
	switch {
	case errors.Is(err, domain.ErrFitDiscarded):
		p.metrics.Refits.WithLabelValues("discarded").Inc()
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("solve transformation failed", "error", err)
		p.metrics.Refits.WithLabelValues("error").Inc()
		return
	case !applied:
		return
	}

	p.metrics.Refits.WithLabelValues("applied").Inc()
	p.metrics.RefitDuration.Observe(time.Since(start).Seconds())
	p.updateGauges()
	p.publish(ctx)
}

func (p *Pipeline) updateGauges() {
	st := p.ctrl.Status()
	p.metrics.TrainingRecords.Set(float64(st.TrainingRecords))
	p.metrics.TestRecords.Set(float64(st.TestRecords))
	p.metrics.HorizontalError.Set(st.ErrorHorizontal)
	if st.TransformationAvailable {
		p.metrics.TransformationAvailable.Set(1)
	} else {
		p.metrics.TransformationAvailable.Set(0)
	}
}

func (p *Pipeline) publish(ctx context.Context) {
	if p.publisher == nil {
		return
	}
	st := p.ctrl.Status()
	if err := p.publisher.PublishStatus(ctx, st); err != nil && ctx.Err() == nil {
		p.logger.Warn("publish calibration status failed", "error", err, "generation", st.Generation)
	}
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)
