// Package nmea turns NMEA 0183 GGA sentences from a satellite receiver into
// location readings.
//
// GGA carries no accuracy radius. The horizontal accuracy is estimated as
// HDOP × UERE (user equivalent range error, meters), so that the same
// accuracy threshold applies as for platform location providers.
package nmea

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// ParseGGA parses one sentence. ok is false for other sentence types and for
// GGA sentences without a position fix.
func ParseGGA(line string, uere float64) (p domain.GeoPoint, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return p, false, nil
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return p, false, fmt.Errorf("parse nmea: %w", err)
	}
	if s.DataType() != nmea.TypeGGA {
		return p, false, nil
	}
	gga := s.(nmea.GGA)
	if gga.FixQuality == nmea.Invalid {
		return p, false, nil
	}
	return domain.GeoPoint{
		Longitude: gga.Longitude,
		Latitude:  gga.Latitude,
		Altitude:  gga.Altitude,
		Accuracy:  gga.HDOP * uere,
	}, true, nil
}

type result struct {
	reading domain.LocationReading
	err     error
}

// Reader yields location readings parsed from a stream of NMEA sentences,
// typically a serial port. It implements pipeline.LocationSource.
type Reader struct {
	readings  chan result
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewReader starts reading sentences from r. Readings are stamped with the
// clock time at which they were parsed. Call Close to stop the reader.
func NewReader(r io.Reader, uere float64, clock clockwork.Clock, logger *slog.Logger) *Reader {
	rd := &Reader{readings: make(chan result), done: make(chan struct{}), logger: logger}
	go rd.loop(r, uere, clock)
	return rd
}

func (r *Reader) loop(src io.Reader, uere float64, clock clockwork.Clock) {
	defer close(r.readings)
	br := bufio.NewReader(src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p, ok, perr := ParseGGA(line, uere)
			switch {
			case perr != nil:
				// Partial sentences are common right after the port opens.
				r.logger.Debug("nmea sentence skipped", "error", perr)
			case ok:
				if !r.send(result{reading: domain.LocationReading{Position: p, Timestamp: clock.Now()}}) {
					return
				}
			}
		}
		if err != nil {
			r.send(result{err: err})
			return
		}
	}
}

func (r *Reader) send(res result) bool {
	select {
	case r.readings <- res:
		return true
	case <-r.done:
		return false
	}
}

// NextLocation returns the next GGA fix. It returns io.EOF once the stream
// ends or the reader is closed.
func (r *Reader) NextLocation(ctx context.Context) (domain.LocationReading, error) {
	select {
	case <-ctx.Done():
		return domain.LocationReading{}, ctx.Err()
	case <-r.done:
		return domain.LocationReading{}, io.EOF
	case res, ok := <-r.readings:
		if !ok {
			return domain.LocationReading{}, io.EOF
		}
		return res.reading, res.err
	}
}

// Close stops delivering readings. The underlying stream is not closed; a
// read already in progress ends when its owner closes it.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}
