// Package session reads and writes recorded calibration sessions as JSON
// lines, one domain.Observation per line.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// Reader replays observations from a JSON-lines stream.
// It implements pipeline.ObservationSource.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewReader reads observations from r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: sc}
}

// Open opens a session file for replay.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next observation, skipping blank lines. It returns io.EOF
// at the end of the stream.
func (r *Reader) Next(ctx context.Context) (domain.Observation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Observation{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return domain.Observation{}, fmt.Errorf("read session line %d: %w", r.line+1, err)
			}
			return domain.Observation{}, io.EOF
		}
		r.line++
		b := r.scanner.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var obs domain.Observation
		if err := json.Unmarshal(b, &obs); err != nil {
			return domain.Observation{}, fmt.Errorf("decode session line %d: %w", r.line, err)
		}
		return obs, nil
	}
}

// ReadAll drains the reader.
func (r *Reader) ReadAll(ctx context.Context) ([]domain.Observation, error) {
	var out []domain.Observation
	for {
		obs, err := r.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, obs)
	}
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Writer appends observations as JSON lines.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write encodes one observation followed by a newline.
func (w *Writer) Write(obs domain.Observation) error {
	if err := w.enc.Encode(obs); err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	return nil
}
