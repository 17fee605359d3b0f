package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-overlay/internal/config"
	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// StatusWriter publishes calibration status snapshots.
// It implements pipeline.StatusPublisher.
type StatusWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewStatusWriter creates a Kafka producer for the configured status topic.
func NewStatusWriter(cfg *config.Config, logger *slog.Logger) *StatusWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaStatusTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &StatusWriter{writer: w, logger: logger}
}

// PublishStatus writes one status message keyed by session.
func (w *StatusWriter) PublishStatus(ctx context.Context, st domain.CalibrationStatus) error {
	msg, err := serializeStatus(st)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *StatusWriter) Close() error {
	return w.writer.Close()
}

// serializeStatus marshals a CalibrationStatus into a Kafka message.
func serializeStatus(st domain.CalibrationStatus) (kafkago.Message, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize calibration status: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(st.SessionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "generation", Value: []byte(strconv.FormatUint(st.Generation, 10))},
			{Key: "strategy", Value: []byte(st.Strategy)},
			{Key: "observed_at", Value: []byte(st.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}

// ObservationWriter produces recorded observations, for session replay.
type ObservationWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewObservationWriter creates a Kafka producer for the configured source topic.
func NewObservationWriter(cfg *config.Config, logger *slog.Logger) *ObservationWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSourceTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &ObservationWriter{writer: w, logger: logger}
}

// WriteObservations publishes observations in order in a single call.
func (w *ObservationWriter) WriteObservations(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeObservation(obs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *ObservationWriter) Close() error {
	return w.writer.Close()
}

func serializeObservation(obs domain.Observation) (kafkago.Message, error) {
	data, err := json.Marshal(obs)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{Value: data, Time: obs.Timestamp}, nil
}
