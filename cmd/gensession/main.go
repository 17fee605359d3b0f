// Command gensession generates a synthetic calibration session: a walk
// through tracking space paired with noisy satellite fixes produced by a
// known rigid mapping. The output is a JSON-lines session file that the
// overlay service (OBSERVATION_SOURCE=file) and cmd/replay consume, and that
// can be published to the Kafka source topic.
//
// Usage:
//
//	go run ./cmd/gensession -out data/session.jsonl -n 300 -noise 1.5
//	go run ./cmd/gensession -out data/session.jsonl -kafka localhost:9092
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/flood-overlay/internal/adapter/kafka"
	"github.com/couchcryptid/flood-overlay/internal/adapter/session"
	"github.com/couchcryptid/flood-overlay/internal/config"
	"github.com/couchcryptid/flood-overlay/internal/domain"
)

var startTime = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

const (
	metersPerDegreeLat = 110540.0
	metersPerDegreeLon = 111320.0
	cameraHeight       = 1.5
)

// mapping places tracking space relative to the geodetic frame: the tracking
// origin sits at Origin and its axes are rotated by Heading radians.
type mapping struct {
	Origin  domain.GeoPoint
	Heading float64
}

// toLocal maps a geodetic point into tracking space. X points east and Z
// south when Heading is zero; Y is height above the origin.
func (m mapping) toLocal(p domain.GeoPoint) domain.LocalPoint {
	east := (p.Longitude - m.Origin.Longitude) * metersPerDegreeLon * math.Cos(m.Origin.Latitude*math.Pi/180)
	north := (p.Latitude - m.Origin.Latitude) * metersPerDegreeLat
	sin, cos := math.Sincos(m.Heading)
	return domain.LocalPoint{
		X: cos*east - sin*north,
		Y: p.Altitude - m.Origin.Altitude + cameraHeight,
		Z: -(sin*east + cos*north),
	}
}

// offset moves p by east/north meters.
func (m mapping) offset(p domain.GeoPoint, east, north float64) domain.GeoPoint {
	p.Longitude += east / (metersPerDegreeLon * math.Cos(m.Origin.Latitude*math.Pi/180))
	p.Latitude += north / metersPerDegreeLat
	return p
}

type params struct {
	n         int
	seed      uint64
	noise     float64 // meters, standard deviation of the horizontal fix error
	poorEvery int     // every poorEvery-th fix reports a low accuracy
	step      time.Duration
}

// generate walks n steps of roughly a meter along a slowly turning path.
func generate(m mapping, p params, clock *clockwork.FakeClock) []domain.Observation {
	rng := rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15))
	truth := m.Origin
	heading := rng.Float64() * 2 * math.Pi

	out := make([]domain.Observation, 0, p.n)
	for i := range p.n {
		heading += rng.NormFloat64() * 0.2
		stride := 0.8 + rng.Float64()*0.6
		truth = m.offset(truth, stride*math.Sin(heading), stride*math.Cos(heading))
		truth.Altitude = m.Origin.Altitude + 0.5*math.Sin(float64(i)/25)

		fix := m.offset(truth, rng.NormFloat64()*p.noise, rng.NormFloat64()*p.noise)
		fix.Altitude += rng.NormFloat64() * p.noise * 2
		fix.Accuracy = math.Max(1, math.Abs(p.noise*2+rng.NormFloat64()))
		if p.poorEvery > 0 && (i+1)%p.poorEvery == 0 {
			fix.Accuracy = 25
		}

		clock.Advance(p.step)
		out = append(out, domain.Observation{GPS: fix, Local: m.toLocal(truth), Timestamp: clock.Now()})
	}
	return out
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the JSON-lines session")
	n := flag.Int("n", 300, "number of observations")
	seed := flag.Uint64("seed", 1, "random seed")
	noise := flag.Float64("noise", 1.5, "horizontal fix noise in meters")
	poorEvery := flag.Int("poor-every", 17, "mark every n-th fix as low accuracy (0 disables)")
	lon := flag.Float64("lon", 13.1905, "origin longitude")
	lat := flag.Float64("lat", 55.7047, "origin latitude")
	alt := flag.Float64("alt", 12, "origin altitude")
	heading := flag.Float64("heading", 30, "tracking space yaw in degrees")
	brokers := flag.String("kafka", "", "also publish to the source topic on these brokers")
	topic := flag.String("topic", "calibration-observations", "kafka source topic")
	flag.Parse()

	if *out == "" && *brokers == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out or -kafka")
	}

	m := mapping{
		Origin:  domain.GeoPoint{Longitude: *lon, Latitude: *lat, Altitude: *alt},
		Heading: *heading * math.Pi / 180,
	}
	obs := generate(m, params{n: *n, seed: *seed, noise: *noise, poorEvery: *poorEvery, step: time.Second},
		clockwork.NewFakeClockAt(startTime))
	log.Printf("generated %d observations (noise %.2f m, heading %.0f°)", len(obs), *noise, *heading)

	if *out != "" {
		if err := writeSession(*out, obs); err != nil {
			return fmt.Errorf("writing session: %w", err)
		}
		log.Printf("wrote session: %s", *out)
	}

	if *brokers != "" {
		cfg := &config.Config{KafkaBrokers: []string{*brokers}, KafkaSourceTopic: *topic}
		w := kafkaadapter.NewObservationWriter(cfg, slog.Default())
		defer w.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.WriteObservations(ctx, obs); err != nil {
			return fmt.Errorf("publishing session: %w", err)
		}
		log.Printf("published %d observations to %s", len(obs), *topic)
	}
	return nil
}

func writeSession(path string, obs []domain.Observation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := session.NewWriter(f)
	for _, o := range obs {
		if err := w.Write(o); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
