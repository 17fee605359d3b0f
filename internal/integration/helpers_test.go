//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("flood-overlay-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

var walkStart = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// walk returns n observations whose local positions follow
// x = 1e4*(lon-13.2), z = -1e4*(lat-55.7).
func walk(n int) []domain.Observation {
	out := make([]domain.Observation, n)
	for i := range out {
		lon := 13.2 + float64(i)*1e-4
		lat := 55.7 + float64(i*i%11)*1e-4
		out[i] = domain.Observation{
			GPS:       domain.GeoPoint{Longitude: lon, Latitude: lat, Altitude: 10, Accuracy: 3},
			Local:     domain.LocalPoint{X: 1e4 * (lon - 13.2), Y: 1.5, Z: -1e4 * (lat - 55.7)},
			Timestamp: walkStart.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}
