// Command replay feeds a recorded calibration session through every fitting
// strategy and reports how quickly each became ready and how well it fits.
// With -corpus it also builds a flood overlay at the final position.
//
// Usage:
//
//	go run ./cmd/replay -session data/session.jsonl -max-error 3
//	go run ./cmd/replay -session data/session.jsonl -corpus data/flood.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-overlay/internal/adapter/csvcorpus"
	"github.com/couchcryptid/flood-overlay/internal/adapter/session"
	"github.com/couchcryptid/flood-overlay/internal/calibration"
	"github.com/couchcryptid/flood-overlay/internal/domain"
	"github.com/couchcryptid/flood-overlay/internal/flood"
	"github.com/couchcryptid/flood-overlay/internal/transform"
)

var replayStart = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

var strategies = []transform.Kind{transform.LinearXZ, transform.LinearXYZ, transform.Kernel}

// phase tracks pass/fail for a replay phase.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	sessionPath := flag.String("session", "", "path to a JSON-lines calibration session")
	corpusPath := flag.String("corpus", "", "optional flood corpus CSV for the overlay phase")
	maxError := flag.Float64("max-error", 5, "maximum acceptable horizontal error in meters")
	radius := flag.Float64("radius", 20, "overlay radius in meters")
	verbose := flag.Bool("v", false, "log calibration progress")
	flag.Parse()

	if *sessionPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	os.Exit(run(*sessionPath, *corpusPath, *maxError, *radius, logger))
}

func run(sessionPath, corpusPath string, maxError, radius float64, logger *slog.Logger) int {
	fmt.Println("=== Calibration Session Replay ===")
	fmt.Println()

	obs, err := loadSession(sessionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load session: %v\n", err)
		return 1
	}
	if len(obs) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: session is empty")
		return 1
	}

	cfg := calibration.DefaultConfig()
	phases := make([]*phase, 0, len(strategies)+1)
	var last *calibration.Controller
	for _, kind := range strategies {
		p, ctrl := replayStrategy(kind, cfg, obs, maxError, logger)
		phases = append(phases, p)
		if ctrl.TransformationAvailable() {
			last = ctrl
		}
	}
	if corpusPath != "" {
		phases = append(phases, overlayPhase(corpusPath, radius, last, obs[len(obs)-1].GPS, logger))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Printf("      %s\n", n)
		}
	}

	fmt.Println()
	fmt.Printf("Observations: %d\n", len(obs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll strategies passed.")
		return 0
	}
	fmt.Println("\nReplay FAILED.")
	return 1
}

func loadSession(path string) ([]domain.Observation, error) {
	r, err := session.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll(context.Background())
}

// replayStrategy drives a controller synchronously: every due refit runs
// before the next observation is offered.
func replayStrategy(kind transform.Kind, cfg calibration.Config, obs []domain.Observation, maxError float64, logger *slog.Logger) (*phase, *calibration.Controller) {
	p := &phase{name: fmt.Sprintf("Strategy: %s", kind)}
	ctrl := calibration.NewController(cfg, mustStrategy(kind), clockwork.NewFakeClockAt(replayStart), logger)
	ctx := context.Background()

	outcomes := map[calibration.Outcome]int{}
	readyAt, refits := -1, 0
	var fitTime time.Duration
	for i, o := range obs {
		outcomes[ctrl.Observe(o)]++
		if ctrl.RefitDue() {
			start := time.Now()
			applied, err := ctrl.SolveTransformation(ctx)
			fitTime += time.Since(start)
			if err != nil {
				p.errorf("observation %d: refit failed: %v", i+1, err)
				continue
			}
			if applied {
				refits++
			}
		}
		if readyAt < 0 && ctrl.TransformationAvailable() {
			readyAt = i + 1
		}
	}

	p.notef("records: %d training, %d test, %d rejected, %d duplicate",
		outcomes[calibration.OutcomeTraining], outcomes[calibration.OutcomeTest],
		outcomes[calibration.OutcomeRejectedAccuracy], outcomes[calibration.OutcomeDuplicate])

	if readyAt < 0 {
		p.errorf("transformation never became available (%d training records)", ctrl.NumberOfRecords())
		return p, ctrl
	}
	p.notef("ready after %d observations, %d refits in %s", readyAt, refits, fitTime.Round(time.Microsecond))

	testErr := ctrl.ErrorHorizontal()
	p.notef("test-set horizontal error: %.3f m", testErr)
	if ctrl.NumberOfTestRecords() > 0 && testErr > maxError {
		p.errorf("test-set horizontal error %.3f m exceeds %.3f m", testErr, maxError)
	}

	gps := make([]domain.GeoPoint, len(obs))
	local := make([]domain.LocalPoint, len(obs))
	for i, o := range obs {
		gps[i], local[i] = o.GPS, o.Local
	}
	pred, all, err := ctrl.Evaluate(gps, local)
	if err != nil {
		p.errorf("evaluate session: %v", err)
		return p, ctrl
	}
	p.notef("whole-session horizontal error: %.3f m", all)
	for i, lp := range pred {
		if math.IsNaN(lp.X) || math.IsNaN(lp.Y) || math.IsNaN(lp.Z) {
			p.errorf("observation %d: prediction is NaN", i+1)
			break
		}
	}
	return p, ctrl
}

func overlayPhase(corpusPath string, radius float64, ctrl *calibration.Controller, device domain.GeoPoint, logger *slog.Logger) *phase {
	p := &phase{name: "Flood overlay at final position"}
	if ctrl == nil {
		p.errorf("no strategy produced a transformation")
		return p
	}
	samples, err := csvcorpus.LoadFile(corpusPath)
	if err != nil {
		p.errorf("load corpus: %v", err)
		return p
	}
	fitted, _ := ctrl.Current()
	engine := flood.NewEngine(samples, domain.HeightModel{Fallback: domain.FallbackZero}, radius, logger)
	ov, err := engine.BuildOverlay(device, fitted)
	if err != nil {
		p.errorf("build overlay: %v", err)
		return p
	}
	p.notef("%d of %d samples within %.0f m, camera ground %.2f m (%s)",
		len(ov.Vertices), engine.Len(), radius, ov.CameraGroundHeight, ctrl.Strategy())
	if len(ov.Vertices) == 0 {
		p.errorf("no flood samples within %.0f m of %.6f, %.6f", radius, device.Longitude, device.Latitude)
		return p
	}
	if h, err := ov.WaterHeightAt(ov.Vertices[0].Local); err == nil {
		p.notef("water height at reference vertex: %.2f m", h)
	}
	return p
}

func mustStrategy(kind transform.Kind) transform.Strategy {
	s, err := transform.New(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	return s
}
