package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/transform"
)

// Fitted is an immutable fitted model together with the session state it was
// built from. Readers holding a *Fitted keep using it even after a refit or a
// restart replaced it in the controller.
type Fitted struct {
	model           transform.Model
	generation      uint64
	version         uint64
	trainingRecords int
	errorHorizontal float64
	fittedAt        time.Time
}

// Generation is the restart generation the model belongs to.
func (f *Fitted) Generation() uint64 { return f.generation }

// Version is the training-set version the model was fit on.
func (f *Fitted) Version() uint64 { return f.version }

// TrainingRecords is the number of records the model was fit on.
func (f *Fitted) TrainingRecords() int { return f.trainingRecords }

// ErrorHorizontal is the test-set RMSE measured after the fit.
func (f *Fitted) ErrorHorizontal() float64 { return f.errorHorizontal }

// FittedAt is when the model was swapped in.
func (f *Fitted) FittedAt() time.Time { return f.fittedAt }

// TransformGpsToWorldBatch maps geodetic points into tracking space.
func (f *Fitted) TransformGpsToWorldBatch(points []domain.GeoPoint) ([]domain.LocalPoint, error) {
	if len(points) == 0 {
		return nil, domain.ErrEmptyInput
	}
	return f.model.Predict(points)
}

// Controller owns the calibration session: the record sets, the current fit
// and the restart generation.
//
// Observations are expected from a single driver goroutine. Refits may run on
// another goroutine; the fitted model is swapped in atomically and a fit that
// started before a Restart is discarded.
type Controller struct {
	cfg      Config
	strategy transform.Strategy
	clock    clockwork.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	sessionID  string
	pending    bool // a refit boundary was crossed and not yet fit

	current atomic.Pointer[Fitted]
}

// NewController creates a controller with empty record sets.
func NewController(cfg Config, strategy transform.Strategy, clock clockwork.Clock, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		strategy:  strategy,
		clock:     clock,
		logger:    logger,
		state:     NewState(cfg),
		sessionID: uuid.NewString(),
	}
}

// AddRecord offers one paired observation to the calibration sets.
func (c *Controller) AddRecord(gps domain.GeoPoint, local domain.LocalPoint, ts time.Time) Outcome {
	if ts.IsZero() {
		ts = c.clock.Now()
	}
	rec := domain.CalibrationRecord{GPS: gps, Local: local, Timestamp: ts}

	c.mu.Lock()
	next, outcome := c.state.Add(c.cfg, rec)
	c.state = next
	if outcome == OutcomeTraining && next.refitDue(c.cfg) {
		c.pending = true
	}
	train, test := next.Training.Len(), next.Test.Len()
	c.mu.Unlock()

	switch outcome {
	case OutcomeRejectedAccuracy:
		c.logger.Debug("location dropped, accuracy too low",
			"accuracy", gps.Accuracy, "min_accuracy", c.cfg.MinAccuracy)
	case OutcomeDuplicate:
		c.logger.Debug("location dropped, device has not moved")
	default:
		c.logger.Debug("calibration record added",
			"set", string(outcome), "training_records", train, "test_records", test)
	}
	return outcome
}

// Observe is AddRecord for an already paired observation.
func (c *Controller) Observe(obs domain.Observation) Outcome {
	return c.AddRecord(obs.GPS, obs.Local, obs.Timestamp)
}

// NumberOfRecords returns the training set size.
func (c *Controller) NumberOfRecords() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Training.Len()
}

// NumberOfTestRecords returns the test set size.
func (c *Controller) NumberOfTestRecords() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Test.Len()
}

// Percentage is trainingCount / MinPoints * 100. It is not clamped and
// exceeds 100 once more records than the minimum have been collected.
func (c *Controller) Percentage() int {
	return percentage(c.NumberOfRecords(), c.cfg.MinPoints)
}

func percentage(n, minPoints int) int {
	if minPoints <= 0 {
		return 100
	}
	return int(float64(n) / float64(minPoints) * 100)
}

// DisplayPercentage is Percentage clamped to 100.
func (c *Controller) DisplayPercentage() int {
	return min(100, c.Percentage())
}

// TransformationAvailable reports whether more than MinPoints training
// records exist and a model has been fit on them.
func (c *Controller) TransformationAvailable() bool {
	_, ok := c.Current()
	return ok
}

// Current returns the fitted model in use, if a transformation is available.
func (c *Controller) Current() (*Fitted, bool) {
	f := c.current.Load()
	if f == nil || c.NumberOfRecords() <= c.cfg.MinPoints {
		return nil, false
	}
	return f, true
}

// ErrorHorizontal returns the test-set RMSE of the current fit, or 0.
func (c *Controller) ErrorHorizontal() float64 {
	if f := c.current.Load(); f != nil {
		return f.errorHorizontal
	}
	return 0
}

// RefitDue reports whether SolveTransformation would fit now: a refit
// boundary was reached since the last fit (or the count sits on one) and the
// current model was not already fit on this exact training set.
func (c *Controller) RefitDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refitDueLocked()
}

func (c *Controller) refitDueLocked() bool {
	if !c.pending && !c.state.refitDue(c.cfg) {
		return false
	}
	f := c.current.Load()
	return f == nil || f.generation != c.generation || f.version != c.state.version
}

// SolveTransformation refits the model when a refit is due. It reports
// whether a new model was swapped in. A fit that completes after Restart is
// dropped and ErrFitDiscarded is returned.
func (c *Controller) SolveTransformation(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if !c.refitDueLocked() {
		c.mu.Unlock()
		return false, nil
	}
	snap, gen := c.state, c.generation
	c.pending = false
	c.mu.Unlock()

	training := snap.Training.Records()
	model, err := c.strategy.Fit(training)
	if err != nil {
		return false, fmt.Errorf("fit %s: %w", c.strategy.Kind(), err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	errH := c.ErrorHorizontal()
	if c.cfg.ComputeError && snap.Test.Len() > 0 {
		errH, err = transform.Evaluate(model, snap.Test.Records())
		if err != nil {
			return false, fmt.Errorf("evaluate test set: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.logger.Warn("discarding fit from previous session",
			"fit_generation", gen, "generation", c.generation)
		return false, domain.ErrFitDiscarded
	}
	c.current.Store(&Fitted{
		model:           model,
		generation:      gen,
		version:         snap.version,
		trainingRecords: len(training),
		errorHorizontal: errH,
		fittedAt:        c.clock.Now(),
	})
	c.logger.Info("transformation solved",
		"strategy", c.strategy.Kind(),
		"training_records", len(training),
		"test_records", snap.Test.Len(),
		"error_horizontal", errH,
	)
	return true, nil
}

// Restart discards every record and the current model, and starts a new
// session. Fits still running are discarded when they complete.
func (c *Controller) Restart() {
	c.mu.Lock()
	c.generation++
	c.state = NewState(c.cfg)
	c.sessionID = uuid.NewString()
	c.pending = false
	c.current.Store(nil)
	gen, id := c.generation, c.sessionID
	c.mu.Unlock()

	c.logger.Info("calibration restarted", "generation", gen, "session_id", id)
}

// TransformGpsToWorld maps one geodetic point into tracking space.
func (c *Controller) TransformGpsToWorld(p domain.GeoPoint) (domain.LocalPoint, error) {
	out, err := c.TransformGpsToWorldBatch([]domain.GeoPoint{p})
	if err != nil {
		return domain.LocalPoint{}, err
	}
	return out[0], nil
}

// TransformGpsToWorldBatch maps geodetic points into tracking space.
func (c *Controller) TransformGpsToWorldBatch(points []domain.GeoPoint) ([]domain.LocalPoint, error) {
	f, ok := c.Current()
	if !ok {
		return nil, domain.ErrTransformUnavailable
	}
	return f.TransformGpsToWorldBatch(points)
}

// Evaluate transforms gps and returns the predictions together with their
// horizontal RMSE against local.
func (c *Controller) Evaluate(gps []domain.GeoPoint, local []domain.LocalPoint) ([]domain.LocalPoint, float64, error) {
	if len(gps) != len(local) {
		return nil, 0, domain.ErrLengthMismatch
	}
	pred, err := c.TransformGpsToWorldBatch(gps)
	if err != nil {
		return nil, 0, err
	}
	rmse, err := transform.HorizontalRMSE(pred, local)
	if err != nil {
		return nil, 0, err
	}
	return pred, rmse, nil
}

// LastRecords returns up to n of the most recent training records.
func (c *Controller) LastRecords(n int) []domain.CalibrationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Training.Tail(n)
}

// Strategy returns the fitting strategy in use.
func (c *Controller) Strategy() transform.Kind { return c.strategy.Kind() }

// Status returns a snapshot of the session.
func (c *Controller) Status() domain.CalibrationStatus {
	c.mu.Lock()
	st := domain.CalibrationStatus{
		SessionID:       c.sessionID,
		Generation:      c.generation,
		Strategy:        string(c.strategy.Kind()),
		TrainingRecords: c.state.Training.Len(),
		TestRecords:     c.state.Test.Len(),
		ObservedAt:      c.clock.Now(),
	}
	c.mu.Unlock()

	st.Percentage = percentage(st.TrainingRecords, c.cfg.MinPoints)
	if f := c.current.Load(); f != nil && f.generation == st.Generation {
		st.TransformationAvailable = st.TrainingRecords > c.cfg.MinPoints
		st.ErrorHorizontal = f.errorHorizontal
		st.FittedAt = f.fittedAt
	}
	return st
}
