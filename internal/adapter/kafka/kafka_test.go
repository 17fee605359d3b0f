package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

func TestMapMessageToObservation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	msg := kafkago.Message{
		Value: []byte(`{"gps":{"lon":13.2,"lat":55.7,"alt":10,"accuracy":3},"local":{"x":1,"y":0,"z":2},"timestamp":"2026-03-14T08:59:00Z"}`),
		Topic: "calibration-observations",
		Time:  now,
	}

	obs, err := mapMessageToObservation(msg)
	require.NoError(t, err)
	assert.Equal(t, domain.GeoPoint{Longitude: 13.2, Latitude: 55.7, Altitude: 10, Accuracy: 3}, obs.GPS)
	assert.Equal(t, domain.LocalPoint{X: 1, Z: 2}, obs.Local)
	assert.Equal(t, now.Add(-time.Minute), obs.Timestamp.UTC())
}

func TestMapMessageToObservation_MessageTimeFallback(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	obs, err := mapMessageToObservation(kafkago.Message{
		Value: []byte(`{"gps":{"lon":13.2,"lat":55.7},"local":{"x":1,"y":0,"z":2}}`),
		Time:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, now, obs.Timestamp)
}

func TestMapMessageToObservation_Invalid(t *testing.T) {
	_, err := mapMessageToObservation(kafkago.Message{Value: []byte(`{"gps":`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode observation")
}

func TestSerializeStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	st := domain.CalibrationStatus{
		SessionID:               "a1b2",
		Generation:              4,
		Strategy:                "linear-xyz",
		TransformationAvailable: true,
		Percentage:              150,
		TrainingRecords:         3,
		ObservedAt:              now,
	}

	msg, err := serializeStatus(st)
	require.NoError(t, err)

	assert.Equal(t, []byte("a1b2"), msg.Key)
	assert.Contains(t, string(msg.Value), `"transformation_available":true`)
	assert.NotContains(t, string(msg.Value), "fitted_at", "zero fit time is omitted")
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "generation", msg.Headers[0].Key)
	assert.Equal(t, []byte("4"), msg.Headers[0].Value)
	assert.Equal(t, "strategy", msg.Headers[1].Key)
	assert.Equal(t, []byte("linear-xyz"), msg.Headers[1].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeObservation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	obs := domain.Observation{
		GPS:       domain.GeoPoint{Longitude: 13.2, Latitude: 55.7, Accuracy: 2},
		Local:     domain.LocalPoint{X: 1},
		Timestamp: now,
	}
	msg, err := serializeObservation(obs)
	require.NoError(t, err)
	assert.Equal(t, now, msg.Time)

	back, err := mapMessageToObservation(msg)
	require.NoError(t, err)
	assert.Equal(t, obs.GPS, back.GPS)
	assert.Equal(t, obs.Local, back.Local)
}
