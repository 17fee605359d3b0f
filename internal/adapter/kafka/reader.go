package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-overlay/internal/config"
	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// Reader consumes recorded calibration observations from a Kafka topic.
// It implements pipeline.ObservationSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// Next returns the next decodable observation. Messages that do not decode
// are committed and skipped.
func (r *Reader) Next(ctx context.Context) (domain.Observation, error) {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("fetch observation: %w", err)
		}
		obs, decodeErr := mapMessageToObservation(msg)
		if err := r.reader.CommitMessages(ctx, msg); err != nil {
			r.logger.Warn("commit offset failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
		if decodeErr != nil {
			r.logger.Warn("skipping undecodable observation", "error", decodeErr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		return obs, nil
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToObservation decodes a message value. The message time stands in
// for a missing observation timestamp.
func mapMessageToObservation(msg kafkago.Message) (domain.Observation, error) {
	var obs domain.Observation
	if err := json.Unmarshal(msg.Value, &obs); err != nil {
		return obs, fmt.Errorf("decode observation: %w", err)
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = msg.Time
	}
	return obs, nil
}
