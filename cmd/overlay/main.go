// Command overlay runs the flood overlay service: it calibrates the mapping
// from satellite positions to the device's tracking space from a live or
// recorded observation stream, and serves flood overlays and water heights
// placed in that space.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-overlay/internal/adapter/csvcorpus"
	httpadapter "github.com/couchcryptid/flood-overlay/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-overlay/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/flood-overlay/internal/adapter/mqtt"
	"github.com/couchcryptid/flood-overlay/internal/adapter/nmea"
	"github.com/couchcryptid/flood-overlay/internal/adapter/session"
	"github.com/couchcryptid/flood-overlay/internal/adapter/ws"
	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/config"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/flood"
	"github.com/couchcryptid/flood-overlay/internal/observability"
	"github.com/couchcryptid/flood-overlay/internal/pipeline"
	"github.com/couchcryptid/flood-overlay/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "flood-overlay")
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	samples, err := csvcorpus.LoadFile(cfg.FloodCSVPath)
	if err != nil {
		logger.Error("failed to load flood corpus", "error", err, "path", cfg.FloodCSVPath)
		os.Exit(1)
	}
	engine := flood.NewEngine(samples, domain.HeightModel{
		VerticalOffset: cfg.FloodVerticalOffset,
		Fallback:       cfg.BuildingFallback,
	}, cfg.FloodRadius, logger)
	logger.Info("flood corpus loaded", "samples", engine.Len(), "radius_m", cfg.FloodRadius,
		"building_fallback", cfg.BuildingFallback)

	strategy, err := transform.New(cfg.Strategy)
	if err != nil {
		logger.Error("invalid calibration strategy", "error", err)
		os.Exit(1)
	}
	ctrl := calibration.NewController(cfg.Calibration, strategy, clock, logger)

	// Calibration status goes to WebSocket clients and, when enabled, Kafka.
	hub := ws.NewHub(logger)
	publishers := pipeline.MultiPublisher{hub}
	var statusWriter *kafkaadapter.StatusWriter
	if cfg.KafkaStatusEnabled {
		statusWriter = kafkaadapter.NewStatusWriter(cfg, logger)
		publishers = append(publishers, statusWriter)
		logger.Info("kafka status publishing enabled", "topic", cfg.KafkaStatusTopic)
	}

	src, err := openSource(cfg, clock, logger)
	if err != nil {
		logger.Error("failed to open observation source", "error", err, "source", cfg.ObservationSource)
		os.Exit(1)
	}
	logger.Info("observation source opened", "source", cfg.ObservationSource)

	p := pipeline.New(src.observations, ctrl, publishers, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.API{
		Calibration: ctrl,
		Restarter:   p,
		Overlays:    flood.NewCachedEngine(engine, cfg.OverlayCacheSize),
		Status:      hub,
		Metrics:     metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if src.tracking != nil {
		go p.WatchTracking(ctx, src.tracking)
	}

	// Start calibration pipeline. A recorded source ends; the API keeps
	// serving the final calibration.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	hub.Close()
	src.close(logger)
	if statusWriter != nil {
		if err := statusWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

type source struct {
	observations pipeline.ObservationSource
	tracking     <-chan domain.TrackingEvent
	closers      []func() error
}

func (s source) close(logger *slog.Logger) {
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.Error("observation source close error", "error", err)
		}
	}
}

// openSource builds the configured observation source. Live sources pair
// location fixes with the most recent camera pose and also report tracking
// state changes; recorded sources are already paired.
func openSource(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (source, error) {
	switch cfg.ObservationSource {
	case config.SourceMQTT:
		sub, err := mqttadapter.Connect(cfg, clock, logger)
		if err != nil {
			return source{}, err
		}
		return source{
			observations: pipeline.NewPairedSource(sub, sub, logger),
			tracking:     sub.TrackingEvents(),
			closers:      []func() error{func() error { sub.Close(); return nil }},
		}, nil

	case config.SourceNMEA:
		port, err := nmea.OpenPort(cfg.NMEAPort, cfg.NMEABaud)
		if err != nil {
			return source{}, err
		}
		// Poses and tracking state still arrive over MQTT.
		sub, err := mqttadapter.Connect(cfg, clock, logger)
		if err != nil {
			port.Close()
			return source{}, err
		}
		logger.Info("nmea receiver opened", "port", cfg.NMEAPort, "baud", cfg.NMEABaud)
		fixes := nmea.NewReader(port, cfg.NMEAUERE, clock, logger)
		return source{
			observations: pipeline.NewPairedSource(fixes, sub, logger),
			tracking:     sub.TrackingEvents(),
			closers:      []func() error{fixes.Close, port.Close, func() error { sub.Close(); return nil }},
		}, nil

	case config.SourceKafka:
		r := kafkaadapter.NewReader(cfg, logger)
		return source{observations: r, closers: []func() error{r.Close}}, nil

	case config.SourceFile:
		r, err := session.Open(cfg.SessionFile)
		if err != nil {
			return source{}, err
		}
		return source{observations: r, closers: []func() error{r.Close}}, nil
	}
	return source{}, fmt.Errorf("unknown observation source %q", cfg.ObservationSource)
}
