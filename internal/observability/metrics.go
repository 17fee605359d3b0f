package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_overlay"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// calibration pipeline and the overlay API.
type Metrics struct {
	Observations    *prometheus.CounterVec // labels: outcome={training,test,duplicate,rejected_accuracy}
	SourceErrors    prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Calibration metrics.
	Refits                  *prometheus.CounterVec // labels: result={applied,discarded,error}
	RefitDuration           prometheus.Histogram
	TrainingRecords         prometheus.Gauge
	TestRecords             prometheus.Gauge
	HorizontalError         prometheus.Gauge
	TransformationAvailable prometheus.Gauge
	Restarts                prometheus.Counter

	// Overlay metrics.
	OverlayRequests *prometheus.CounterVec // labels: cache={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations offered to the calibration sets, by outcome.",
		}, []string{"outcome"}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed reads from the observation source.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		Refits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refits_total",
			Help:      "Transformation refits by result.",
		}, []string{"result"}),
		RefitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refit_duration_seconds",
			Help:      "Duration of a transformation refit.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		TrainingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_records",
			Help:      "Records in the calibration training set.",
		}),
		TestRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_records",
			Help:      "Records in the held-out test set.",
		}),
		HorizontalError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "horizontal_error_meters",
			Help:      "Horizontal RMSE of the current fit on the test set.",
		}),
		TransformationAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transformation_available",
			Help:      "1 when geodetic to local transforms can be served.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Calibration restarts.",
		}),
		OverlayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_requests_total",
			Help:      "Overlay requests by cache result.",
		}, []string{"cache"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Observations,
		m.SourceErrors,
		m.PipelineRunning,
		m.Refits,
		m.RefitDuration,
		m.TrainingRecords,
		m.TestRecords,
		m.HorizontalError,
		m.TransformationAvailable,
		m.Restarts,
		m.OverlayRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
