// Package csvcorpus loads the flood survey from comma-separated text.
//
// Each row is:
//
//	lon,lat,building,ground_m,water_cm,nn_ground_m,nn_water_cm
//
// building is "1" for samples inside a building. Water heights are converted
// from centimeters to meters. A leading header row is skipped.
package csvcorpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

const fieldsPerRow = 7

// LoadFile reads the survey at path.
func LoadFile(path string) ([]domain.FloodSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flood corpus: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	samples, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Load reads a survey from r.
func Load(r io.Reader) ([]domain.FloodSample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var samples []domain.FloodSample
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if blank(rec) {
			continue
		}
		s, err := parseRow(rec)
		if err != nil {
			if row == 1 && isHeader(rec) {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		samples = append(samples, s)
	}
}

func parseRow(rec []string) (domain.FloodSample, error) {
	if len(rec) != fieldsPerRow {
		return domain.FloodSample{}, fmt.Errorf("expected %d fields, got %d", fieldsPerRow, len(rec))
	}
	var v [fieldsPerRow]float64
	for i, field := range rec {
		if i == 2 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return domain.FloodSample{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = f
	}
	return domain.FloodSample{
		Longitude:                   v[0],
		Latitude:                    v[1],
		IsInsideBuilding:            strings.TrimSpace(rec[2]) == "1",
		GroundHeight:                v[3],
		WaterHeight:                 v[4] / 100,
		NearestNeighborGroundHeight: v[5],
		NearestNeighborWaterHeight:  v[6] / 100,
	}, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isHeader(rec []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
	return err != nil
}
