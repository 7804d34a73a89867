package fit

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/histogram"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
	"github.com/banshee-data/pixelcal/internal/pixel/response"
)

// Options configures the per-pixel fits.
type Options struct {
	// SCurveGuess seeds the s-curve solver: amplitude, mean, sigma.
	SCurveGuess [3]float64
	// ResponseMax is the highest ToT code; the calibrated range maps
	// codes 0 and ResponseMax back to injection.
	ResponseMax float64
	// MaxIterations bounds the Levenberg-Marquardt iterations.
	MaxIterations int
	// Workers is the number of goroutines of FitAll; <= 0 uses NumCPU.
	Workers int
}

// DefaultOptions returns the reference settings.
func DefaultOptions() Options {
	return Options{
		SCurveGuess:   [3]float64{100, 15, 3},
		ResponseMax:   63,
		MaxIterations: 1000,
	}
}

// Calibration is the full fit outcome of one pixel. Range is the
// injection interval that maps to ToT codes 0 and ResponseMax through the
// inverse of the line fit; it is zero when the line fit failed.
type Calibration struct {
	Pixel     hits.Pixel
	SCurve    Result
	Line      Result
	Line1P    Result
	Quadratic Result
	Range     [2]float64
}

// Result returns the fit of kind.
func (c Calibration) Result(kind Kind) Result {
	switch kind {
	case SCurve:
		return c.SCurve
	case Line:
		return c.Line
	case Line1P:
		return c.Line1P
	case Quadratic:
		return c.Quadratic
	}
	return Failed(kind, fmt.Errorf("fit: unknown kind %d", int(kind)))
}

func unfitted(p hits.Pixel) Calibration {
	return Calibration{
		Pixel:     p,
		SCurve:    Failed(SCurve, ErrNotFitted),
		Line:      Failed(Line, ErrNotFitted),
		Line1P:    Failed(Line1P, ErrNotFitted),
		Quadratic: Failed(Quadratic, ErrNotFitted),
	}
}

// Engine fits pixels of cubes with a fixed shape and scan axis.
type Engine struct {
	opts  Options
	shape histogram.Shape
	// scan holds the cube bins that were actually injected, xs their DAC
	// codes.
	scan []int
	xs   []float64
}

// NewEngine prepares an engine for cubes of shape scanned over axis.
// Every axis level must lie inside the shape's injection range.
func NewEngine(shape histogram.Shape, axis hits.Axis, opts Options) (*Engine, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if axis.Len() == 0 {
		return nil, hits.ErrEmptyAxis
	}
	e := &Engine{opts: opts, shape: shape}
	for _, inj := range axis.Levels() {
		level, ok := shape.LevelIndex(inj)
		if !ok {
			return nil, fmt.Errorf("fit: injection %d outside cube range [%d, %d]", inj, shape.MinInjection, shape.MaxInjection)
		}
		e.scan = append(e.scan, level)
		e.xs = append(e.xs, float64(inj))
	}
	if e.opts.MaxIterations <= 0 {
		e.opts.MaxIterations = DefaultOptions().MaxIterations
	}
	return e, nil
}

// FitPixel runs the four fits of one pixel. counts is the pixel's uncut
// count slice; cutMean its cut-corrected mean response slice. Both are
// indexed by cube bin.
func (e *Engine) FitPixel(p hits.Pixel, counts []uint32, cutMean []float64) Calibration {
	c := Calibration{Pixel: p}
	c.SCurve = e.fitSCurve(counts)

	xs, ys := e.responseSamples(cutMean)
	c.Line = e.fitLinear(Line, response.LineFunc, lineBasis, xs, ys)
	c.Quadratic = e.fitLinear(Quadratic, response.QuadraticFunc, quadraticBasis, xs, ys)
	c.Line1P = e.fitLineThroughThreshold(xs, ys, c.SCurve)

	if c.Line.OK() {
		slope, intercept := c.Line.Params[0], c.Line.Params[1]
		c.Range = [2]float64{
			response.InverseLine(0, slope, intercept),
			response.InverseLine(e.opts.ResponseMax, slope, intercept),
		}
	}
	return c
}

func (e *Engine) fitSCurve(counts []uint32) Result {
	ys := make([]float64, len(e.scan))
	var total uint64
	for i, level := range e.scan {
		ys[i] = float64(counts[level])
		total += uint64(counts[level])
	}
	if total == 0 {
		return Failed(SCurve, fmt.Errorf("%w: no hits", ErrEmptyDataset))
	}
	params, stderr, err := CurveFit(response.SCurveFunc, e.xs, ys, e.opts.SCurveGuess[:], e.opts.MaxIterations)
	if err != nil {
		return Failed(SCurve, err)
	}
	return NewResult(SCurve, params, stderr)
}

// responseSamples picks the bins with a positive cut-corrected mean,
// skipping bin 0 which the scan reserves.
func (e *Engine) responseSamples(cutMean []float64) ([]float64, []float64) {
	var xs, ys []float64
	for i, level := range e.scan {
		if level == 0 || cutMean[level] <= 0 {
			continue
		}
		xs = append(xs, e.xs[i])
		ys = append(ys, cutMean[level])
	}
	return xs, ys
}

func (e *Engine) fitLinear(kind Kind, f response.Func, basis []func(float64) float64, xs, ys []float64) Result {
	params, stderr, err := LinearFit(f, basis, xs, ys)
	if err != nil {
		return Failed(kind, err)
	}
	return NewResult(kind, params, stderr)
}

// fitLineThroughThreshold fits response = slope*(injection - threshold)
// with the threshold taken from the pixel's s-curve.
func (e *Engine) fitLineThroughThreshold(xs, ys []float64, scurve Result) Result {
	if !scurve.OK() {
		// No fallback to a zero threshold: the pixel counts as a Line1P
		// failure instead.
		return Failed(Line1P, ErrNoThreshold)
	}
	threshold := scurve.Params[1]
	shifted := make([]float64, len(xs))
	for i, x := range xs {
		shifted[i] = x - threshold
	}
	return e.fitLinear(Line1P, response.LineThroughOriginFunc, line1PBasis, shifted, ys)
}

// FitAll fits every pixel of the cubes. counts supplies the s-curve data
// and cut the response data; both must have the engine's shape.
//
// Rows are split into contiguous blocks, one per worker. Each worker
// writes only its own slots and keeps its own ledger; the ledgers are
// merged in block order. If ctx is cancelled the pass stops early and
// returns ctx's error: slots already fitted are valid, the others carry
// ErrNotFitted and are absent from the ledger.
func (e *Engine) FitAll(ctx context.Context, counts, cut *histogram.Cube) ([]Calibration, Ledger, error) {
	if counts.Shape != e.shape || cut.Shape != e.shape {
		return nil, Ledger{}, fmt.Errorf("fit: cube shapes %+v / %+v do not match engine %+v", counts.Shape, cut.Shape, e.shape)
	}
	rows, cols := e.shape.Rows, e.shape.Cols
	cals := make([]Calibration, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cals[r*cols+c] = unfitted(hits.Pixel{Row: r, Col: c})
		}
	}

	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > rows {
		workers = rows
	}
	ledgers := make([]Ledger, workers)

	var done atomic.Int64
	step := int64(rows / 10)
	if step == 0 {
		step = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*rows/workers, (w+1)*rows/workers
		g.Go(func() error {
			for r := lo; r < hi; r++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				for c := 0; c < cols; c++ {
					p := hits.Pixel{Row: r, Col: c}
					cal := e.FitPixel(p, counts.PixelCounts(r, c), cut.PixelMean(r, c))
					cals[r*cols+c] = cal
					ledgers[w].Record(cal)
				}
				if n := done.Add(1); n%step == 0 || n == int64(rows) {
					monitoring.Logf("[fit] %d/%d rows fitted", n, rows)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var ledger Ledger
	for _, l := range ledgers {
		ledger.Merge(l)
	}
	return cals, ledger, err
}
