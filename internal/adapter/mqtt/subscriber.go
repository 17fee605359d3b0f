// Package mqtt connects the calibration pipeline to the device over an MQTT
// broker. The device publishes location fixes, its camera pose and tracking
// state changes as JSON:
//
//	location  {"lon":13.2,"lat":55.7,"alt":12.1,"accuracy":4.5,"timestamp":"2026-03-14T09:00:00Z"}
//	pose      {"x":0.12,"y":1.51,"z":-3.02}
//	tracking  {"state":"lost","timestamp":"2026-03-14T09:00:03Z"}
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-overlay/internal/config"
	"github.com/couchcryptid/flood-overlay/internal/domain"
)

const (
	qos            = 0
	locationBuffer = 64
	trackingBuffer = 8
)

// Topics names the topics the device publishes on.
type Topics struct {
	Location string
	Pose     string
	Tracking string
}

type locationMessage struct {
	domain.GeoPoint
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber receives device messages. It implements pipeline.LocationSource
// and pipeline.PoseSource and exposes tracking events as a channel.
type Subscriber struct {
	client    paho.Client
	topics    Topics
	clock     clockwork.Clock
	logger    *slog.Logger
	locations chan domain.LocationReading
	tracking  chan domain.TrackingEvent
	pose      atomic.Pointer[domain.LocalPoint]
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber creates a subscriber on an existing client. Call Subscribe to
// start receiving.
func NewSubscriber(client paho.Client, topics Topics, clock clockwork.Clock, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:    client,
		topics:    topics,
		clock:     clock,
		logger:    logger,
		locations: make(chan domain.LocationReading, locationBuffer),
		tracking:  make(chan domain.TrackingEvent, trackingBuffer),
		done:      make(chan struct{}),
	}
}

// Dial connects a client to broker. The client reconnects on its own after
// the first connection succeeds.
func Dial(broker, clientID string, logger *slog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}
	logger.Info("connected to mqtt broker", "broker", broker, "client_id", clientID)
	return client, nil
}

// Connect dials the configured broker and subscribes to the device topics.
func Connect(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*Subscriber, error) {
	client, err := Dial(cfg.MQTTBroker, cfg.MQTTClientID, logger)
	if err != nil {
		return nil, err
	}

	s := NewSubscriber(client, Topics{
		Location: cfg.MQTTTopicLocation,
		Pose:     cfg.MQTTTopicPose,
		Tracking: cfg.MQTTTopicTracking,
	}, clock, logger)
	if err := s.Subscribe(); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return s, nil
}

// Subscribe registers the message handlers.
func (s *Subscriber) Subscribe() error {
	handlers := map[string]paho.MessageHandler{
		s.topics.Location: s.handleLocation,
		s.topics.Pose:     s.handlePose,
		s.topics.Tracking: s.handleTracking,
	}
	for topic, h := range handlers {
		token := s.client.Subscribe(topic, qos, h)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		s.logger.Info("subscribed", "topic", topic)
	}
	return nil
}

func (s *Subscriber) handleLocation(_ paho.Client, msg paho.Message) {
	var m locationMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.logger.Warn("location unmarshal error", "error", err, "topic", msg.Topic())
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.clock.Now()
	}
	select {
	case s.locations <- domain.LocationReading{Position: m.GeoPoint, Timestamp: m.Timestamp}:
	default:
		s.logger.Warn("location dropped, consumer is behind", "topic", msg.Topic())
	}
}

func (s *Subscriber) handlePose(_ paho.Client, msg paho.Message) {
	var p domain.LocalPoint
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		s.logger.Warn("pose unmarshal error", "error", err, "topic", msg.Topic())
		return
	}
	s.pose.Store(&p)
}

func (s *Subscriber) handleTracking(_ paho.Client, msg paho.Message) {
	var ev domain.TrackingEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		s.logger.Warn("tracking unmarshal error", "error", err, "topic", msg.Topic())
		return
	}
	switch ev.State {
	case domain.TrackingStarted, domain.TrackingLost, domain.TrackingRestored, domain.TrackingReset:
	default:
		s.logger.Warn("unknown tracking state", "state", ev.State)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	if ev.State.InvalidatesCalibration() {
		// The pose belongs to the old origin.
		s.pose.Store(nil)
	}
	// Tracking events must not be lost; block the client goroutine until
	// the subscriber is closed.
	select {
	case s.tracking <- ev:
	case <-s.done:
		s.logger.Debug("tracking event after close dropped", "state", ev.State)
	}
}

// NextLocation returns the next location fix.
func (s *Subscriber) NextLocation(ctx context.Context) (domain.LocationReading, error) {
	select {
	case <-ctx.Done():
		return domain.LocationReading{}, ctx.Err()
	case r := <-s.locations:
		return r, nil
	}
}

// CurrentPose returns the latest camera position.
func (s *Subscriber) CurrentPose() (domain.LocalPoint, bool) {
	p := s.pose.Load()
	if p == nil {
		return domain.LocalPoint{}, false
	}
	return *p, true
}

// TrackingEvents returns the tracking state changes in arrival order.
func (s *Subscriber) TrackingEvents() <-chan domain.TrackingEvent {
	return s.tracking
}

// Close releases blocked handlers and disconnects from the broker.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.client.Disconnect(250)
}
