package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// Publisher publishes location fixes in the format Subscriber consumes. It
// is used by the NMEA bridge.
type Publisher struct {
	client paho.Client
	topic  string
}

// NewPublisher creates a publisher for topic on a connected client.
func NewPublisher(client paho.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// PublishLocation publishes one fix.
func (p *Publisher) PublishLocation(r domain.LocationReading) error {
	payload, err := json.Marshal(locationMessage{GeoPoint: r.Position, Timestamp: r.Timestamp})
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	token := p.client.Publish(p.topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}
