// Package pipeline runs a calibration end to end: hit chunks are binned
// into the histogram and rollover-corrected cubes, every pixel is fitted
// and the parameter maps are written as one artifact.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/pixelcal/internal/config"
	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/histogram"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
	"github.com/banshee-data/pixelcal/internal/pixel/paramap"
	"github.com/banshee-data/pixelcal/internal/pixel/rollover"
	"github.com/banshee-data/pixelcal/internal/timeutil"
	"github.com/banshee-data/pixelcal/internal/version"
)

// Options are the collaborators of a run. The zero value uses the wall
// clock, random run ids and the OS filesystem, and writes nothing.
type Options struct {
	// OutputPath is where the artifact is written; empty skips writing.
	OutputPath string
	Clock      timeutil.Clock
	Writer     paramap.Writer
	NewRunID   func() string
}

// Result summarises a run.
type Result struct {
	RunID        string
	Artifact     *paramap.Artifact
	Calibrations []fit.Calibration
	Ledger       fit.Ledger
	Events       uint64
	Chunks       int
	Laps         []timeutil.Lap
}

// Shape returns the cube binning configured by cfg.
func Shape(cfg *config.CalibrationConfig) histogram.Shape {
	return histogram.Shape{
		Rows:         cfg.GetRows(),
		Cols:         cfg.GetCols(),
		MinInjection: cfg.GetInjectionMin(),
		MaxInjection: cfg.GetInjectionMax(),
	}
}

// Axis returns the scanned injection levels configured by cfg.
func Axis(cfg *config.CalibrationConfig) (hits.Axis, error) {
	if len(cfg.InjectionList) > 0 {
		return hits.ParseAxis(cfg.InjectionList)
	}
	return hits.RangeAxis(cfg.GetInjectionMin(), cfg.GetInjectionMax(), cfg.GetInjectionStep())
}

// Cut returns the rollover discriminator configured by cfg.
func Cut(cfg *config.CalibrationConfig) rollover.Cut {
	return rollover.Cut{
		Slope:      cfg.GetRolloverSlope(),
		Intercept:  cfg.GetRolloverIntercept(),
		StartIndex: cfg.GetRolloverStartIndex(),
	}
}

// FitOptions returns the fit engine settings configured by cfg.
func FitOptions(cfg *config.CalibrationConfig) fit.Options {
	return fit.Options{
		SCurveGuess:   cfg.GetSCurveGuess(),
		ResponseMax:   cfg.GetResponseMax(),
		MaxIterations: cfg.GetMaxIterations(),
		Workers:       cfg.GetWorkers(),
	}
}

// Run calibrates from src. If the fit pass is cancelled the partial
// result is returned with the error and no artifact is written.
func Run(ctx context.Context, src hits.Source, cfg *config.CalibrationConfig, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}

	shape := Shape(cfg)
	axis, err := Axis(cfg)
	if err != nil {
		return nil, err
	}
	cut := Cut(cfg)
	if clamped := cut.Clamp(shape); clamped != cut {
		monitoring.Logf("[rollover] start index %d is past the last of %d levels; cut disabled", cut.StartIndex, shape.Levels())
		cut = clamped
	}
	engine, err := fit.NewEngine(shape, axis, FitOptions(cfg))
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: opts.NewRunID()}
	createdAt := opts.Clock.Now()
	sw := timeutil.NewStopwatch(opts.Clock)
	monitoring.Logf("[pipeline] run %s: %dx%d pixels, injection %d..%d (%d levels scanned), cut from level %d",
		res.RunID, shape.Rows, shape.Cols, shape.MinInjection, shape.MaxInjection, axis.Len(), cut.StartIndex)

	base, corrected, dropped, err := accumulate(ctx, src, shape, cut, cfg.GetMaxCubeCells(), opts.Clock, res)
	if err != nil {
		return nil, err
	}
	monitoring.Throughput("histogram", res.Events, "events", sw.Lap("histogram"))
	if dropped.Total() > 0 {
		monitoring.Logf("[histogram] dropped %d events: %d outside matrix, %d outside injection range, %d bad response",
			dropped.Total(), dropped.OutOfMatrix, dropped.OutOfInjection, dropped.BadResponse)
	}

	cals, ledger, err := engine.FitAll(ctx, base, corrected)
	res.Calibrations, res.Ledger = cals, ledger
	monitoring.Throughput("fit", uint64(ledger.Pixels), "pixels", sw.Lap("fit"))
	if err != nil {
		res.Laps = sw.Laps()
		return res, fmt.Errorf("fit pass stopped after %d of %d pixels: %w", ledger.Pixels, shape.Pixels(), err)
	}
	logLedger(ledger)

	maps, err := paramap.Build(shape.Rows, shape.Cols, cals)
	if err != nil {
		return nil, err
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	res.Artifact = &paramap.Artifact{
		RunID:        res.RunID,
		CreatedAt:    createdAt,
		Version:      version.String(),
		Shape:        shape,
		Cut:          cut,
		Config:       configJSON,
		Dropped:      dropped,
		Counts:       base,
		CutCorrected: corrected,
		Maps:         maps,
		Ledger:       ledger,
	}

	if opts.OutputPath != "" {
		if err := opts.Writer.Write(ctx, opts.OutputPath, res.Artifact); err != nil {
			return nil, fmt.Errorf("failed to write artifact: %w", err)
		}
		sw.Lap("write")
	}
	res.Laps = sw.Laps()
	monitoring.Logf("[pipeline] run %s finished in %s", res.RunID, sw.Elapsed())
	return res, nil
}

// accumulate feeds every chunk of src to the histogram builder and the
// rollover corrector.
func accumulate(ctx context.Context, src hits.Source, shape histogram.Shape, cut rollover.Cut, maxCells int, clock timeutil.Clock, res *Result) (*histogram.Cube, *histogram.Cube, histogram.DropStats, error) {
	builder, err := histogram.NewBuilder(shape, maxCells)
	if err != nil {
		return nil, nil, histogram.DropStats{}, err
	}
	corrector, err := rollover.NewCorrector(shape, cut, maxCells)
	if err != nil {
		return nil, nil, histogram.DropStats{}, err
	}

	start := clock.Now()
	for {
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, histogram.DropStats{}, fmt.Errorf("failed to read chunk %d: %w", res.Chunks+1, err)
		}
		builder.Add(chunk)
		corrector.Add(chunk)
		res.Chunks++
		res.Events += uint64(len(chunk))
		monitoring.Logf("[histogram] chunk %d: %d events (%d total, %s elapsed)",
			res.Chunks, len(chunk), res.Events, clock.Since(start))
	}
	if corrector.Removed() > 0 {
		monitoring.Logf("[rollover] removed %d hits below the discriminator", corrector.Removed())
	}

	base := builder.Cube()
	corrected, err := corrector.Apply(base)
	if err != nil {
		return nil, nil, histogram.DropStats{}, err
	}
	return base, corrected, builder.Dropped(), nil
}

func logLedger(l fit.Ledger) {
	monitoring.Logf("[fit] %s", l)
	if len(l.LinePixels) > 0 {
		monitoring.Logf("[fit] line fit failed at %s", formatPixels(l.LinePixels))
	}
	if len(l.QuadraticPixels) > 0 {
		monitoring.Logf("[fit] quadratic fit failed at %s", formatPixels(l.QuadraticPixels))
	}
}

// formatPixels lists up to 20 coordinates.
func formatPixels(ps []hits.Pixel) string {
	const limit = 20
	parts := make([]string, 0, limit+1)
	for i, p := range ps {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... and %d more", len(ps)-limit))
			break
		}
		parts = append(parts, p.String())
	}
	return strings.Join(parts, " ")
}
