// Command nmea-bridge reads GGA fixes from a serial GNSS receiver and
// publishes them to the MQTT location topic consumed by the overlay service.
//
// Usage:
//
//	NMEA_PORT=/dev/ttyUSB0 MQTT_BROKER=tcp://localhost:1883 go run ./cmd/nmea-bridge
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	mqttadapter "github.com/couchcryptid/flood-overlay/internal/adapter/mqtt"
	"github.com/couchcryptid/flood-overlay/internal/adapter/nmea"
	"github.com/couchcryptid/flood-overlay/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "flood-overlay", "component", "nmea-bridge")

	if err := run(cfg, logger); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	port, err := nmea.OpenPort(cfg.NMEAPort, cfg.NMEABaud)
	if err != nil {
		return err
	}
	defer port.Close()
	logger.Info("gps serial port opened", "port", cfg.NMEAPort, "baud", cfg.NMEABaud)

	client, err := mqttadapter.Dial(cfg.MQTTBroker, cfg.MQTTClientID+"-nmea-bridge", logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	pub := mqttadapter.NewPublisher(client, cfg.MQTTTopicLocation)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := nmea.NewReader(port, cfg.NMEAUERE, clockwork.NewRealClock(), logger)
	defer reader.Close()
	var published int
	for {
		r, err := reader.NextLocation(ctx)
		switch {
		case ctx.Err() != nil:
			logger.Info("shutting down", "published", published)
			return nil
		case errors.Is(err, io.EOF):
			logger.Info("serial stream ended", "published", published)
			return nil
		case err != nil:
			return err
		}

		if err := pub.PublishLocation(r); err != nil {
			logger.Warn("publish location failed", "error", err)
			continue
		}
		published++
		logger.Debug("location published",
			"lon", r.Position.Longitude, "lat", r.Position.Latitude, "accuracy", r.Position.Accuracy)
	}
}
