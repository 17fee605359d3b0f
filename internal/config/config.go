package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/transform"
)

// Observation sources.
const (
	SourceMQTT  = "mqtt"
	SourceNMEA  = "nmea"
	SourceKafka = "kafka"
	SourceFile  = "file"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ObservationSource string
	Strategy          transform.Kind
	Calibration       calibration.Config

	FloodCSVPath        string
	FloodRadius         float64
	FloodVerticalOffset float64
	BuildingFallback    domain.BuildingFallback
	OverlayCacheSize    int

	MQTTBroker        string
	MQTTClientID      string
	MQTTTopicLocation string
	MQTTTopicPose     string
	MQTTTopicTracking string

	NMEAPort string
	NMEABaud int
	NMEAUERE float64

	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaGroupID       string
	KafkaStatusTopic   string
	KafkaStatusEnabled bool

	SessionFile string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	strategy, err := transform.ParseKind(sharedcfg.EnvOrDefault("CALIBRATION_STRATEGY", string(transform.LinearXYZ)))
	if err != nil {
		return nil, fmt.Errorf("invalid CALIBRATION_STRATEGY: %w", err)
	}
	fallback, err := domain.ParseBuildingFallback(sharedcfg.EnvOrDefault("FLOOD_BUILDING_FALLBACK", string(domain.FallbackZero)))
	if err != nil {
		return nil, fmt.Errorf("invalid FLOOD_BUILDING_FALLBACK: %w", err)
	}

	cal, err := loadCalibration()
	if err != nil {
		return nil, err
	}

	p := parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ObservationSource: sharedcfg.EnvOrDefault("OBSERVATION_SOURCE", SourceMQTT),
		Strategy:          strategy,
		Calibration:       cal,

		FloodCSVPath:        sharedcfg.EnvOrDefault("FLOOD_CSV_PATH", "data/flood.csv"),
		FloodRadius:         p.parseFloat("FLOOD_RADIUS", 20),
		FloodVerticalOffset: p.parseFloat("FLOOD_VERTICAL_OFFSET", 0),
		BuildingFallback:    fallback,
		OverlayCacheSize:    p.parseInt("OVERLAY_CACHE_SIZE", 64),

		MQTTBroker:        sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:      sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "flood-overlay"),
		MQTTTopicLocation: sharedcfg.EnvOrDefault("MQTT_TOPIC_LOCATION", "flood/location"),
		MQTTTopicPose:     sharedcfg.EnvOrDefault("MQTT_TOPIC_POSE", "flood/pose"),
		MQTTTopicTracking: sharedcfg.EnvOrDefault("MQTT_TOPIC_TRACKING", "flood/tracking"),

		NMEAPort: sharedcfg.EnvOrDefault("NMEA_PORT", "/dev/serial0"),
		NMEABaud: p.parseInt("NMEA_BAUD", 9600),
		NMEAUERE: p.parseFloat("NMEA_UERE", 5),

		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "calibration-observations"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "flood-overlay"),
		KafkaStatusTopic:   sharedcfg.EnvOrDefault("KAFKA_STATUS_TOPIC", "calibration-status"),
		KafkaStatusEnabled: p.parseBool("KAFKA_STATUS_ENABLED", false),

		SessionFile: os.Getenv("SESSION_FILE"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCalibration() (calibration.Config, error) {
	d := calibration.DefaultConfig()
	p := parser{}
	cal := calibration.Config{
		MinAccuracy:      p.parseFloat("CALIBRATION_MIN_ACCURACY", d.MinAccuracy),
		MinDistance:      p.parseFloat("CALIBRATION_MIN_DISTANCE", d.MinDistance),
		MinPoints:        p.parseInt("CALIBRATION_MIN_POINTS", d.MinPoints),
		CalculationSteps: p.parseInt("CALIBRATION_STEPS", d.CalculationSteps),
		MaxRecords:       p.parseInt("CALIBRATION_MAX_RECORDS", d.MaxRecords),
		MaxTestRecords:   p.parseInt("CALIBRATION_MAX_TEST_RECORDS", d.MaxTestRecords),
		TestStep:         p.parseInt("CALIBRATION_TEST_STEP", d.TestStep),
		ComputeError:     p.parseBool("CALIBRATION_COMPUTE_ERROR", d.ComputeError),
	}
	if p.err != nil {
		return cal, p.err
	}

	switch {
	case cal.MinPoints < 1:
		return cal, errors.New("CALIBRATION_MIN_POINTS must be at least 1")
	case cal.CalculationSteps < 1:
		return cal, errors.New("CALIBRATION_STEPS must be at least 1")
	case cal.MaxRecords <= cal.MinPoints:
		return cal, errors.New("CALIBRATION_MAX_RECORDS must exceed CALIBRATION_MIN_POINTS")
	case cal.MaxTestRecords < 0:
		return cal, errors.New("CALIBRATION_MAX_TEST_RECORDS must not be negative")
	case cal.MinAccuracy <= 0:
		return cal, errors.New("CALIBRATION_MIN_ACCURACY must be positive")
	case cal.MinDistance < 0:
		return cal, errors.New("CALIBRATION_MIN_DISTANCE must not be negative")
	}
	return cal, nil
}

func (c *Config) validate() error {
	switch c.ObservationSource {
	case SourceMQTT, SourceNMEA, SourceKafka, SourceFile:
	default:
		return fmt.Errorf("invalid OBSERVATION_SOURCE %q", c.ObservationSource)
	}
	if c.ObservationSource == SourceFile && c.SessionFile == "" {
		return errors.New("SESSION_FILE is required when OBSERVATION_SOURCE is file")
	}
	if c.FloodCSVPath == "" {
		return errors.New("FLOOD_CSV_PATH is required")
	}
	if c.FloodRadius <= 0 {
		return errors.New("FLOOD_RADIUS must be positive")
	}
	if c.OverlayCacheSize < 0 {
		return errors.New("OVERLAY_CACHE_SIZE must not be negative")
	}
	if c.NMEABaud <= 0 {
		return errors.New("NMEA_BAUD must be positive")
	}
	if c.NMEAUERE <= 0 {
		return errors.New("NMEA_UERE must be positive")
	}
	if (c.ObservationSource == SourceKafka || c.KafkaStatusEnabled) && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.ObservationSource == SourceKafka && c.KafkaSourceTopic == "" {
		return errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if c.KafkaStatusEnabled && c.KafkaStatusTopic == "" {
		return errors.New("KAFKA_STATUS_TOPIC is required")
	}
	return nil
}

// parser reads typed variables and keeps the first error, which names the
// offending variable.
type parser struct {
	err error
}

func (p *parser) parseFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return def
	}
	return v
}

func (p *parser) parseInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return def
	}
	return v
}

func (p *parser) parseBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return def
	}
	return v
}
