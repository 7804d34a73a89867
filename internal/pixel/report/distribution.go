// Package report summarises a calibration across the matrix: the
// threshold and noise distributions of the s-curve fits, their Gaussian
// fits, PNG histograms and an HTML threshold map.
package report

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pixelcal/internal/config"
	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/response"
)

// Options control how distributions are binned and split.
type Options struct {
	Bins           int
	ThresholdRange [2]float64
	NoiseRange     [2]float64
	// SplitRow divides the matrix into a bottom (row < SplitRow) and a top
	// half. Zero, negative or >= rows disables the split.
	SplitRow      int
	MaxIterations int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Bins:           50,
		ThresholdRange: [2]float64{10, 30},
		NoiseRange:     [2]float64{0, 2},
		MaxIterations:  1000,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Bins <= 0 {
		o.Bins = def.Bins
	}
	if o.ThresholdRange[0] >= o.ThresholdRange[1] {
		o.ThresholdRange = def.ThresholdRange
	}
	if o.NoiseRange[0] >= o.NoiseRange[1] {
		o.NoiseRange = def.NoiseRange
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	return o
}

// OptionsFromConfig reads the report settings from cfg.
func OptionsFromConfig(cfg *config.CalibrationConfig) Options {
	return Options{
		Bins:           cfg.GetHistogramBins(),
		ThresholdRange: cfg.GetThresholdRange(),
		NoiseRange:     cfg.GetNoiseRange(),
		SplitRow:       cfg.GetSplitRow(),
		MaxIterations:  cfg.GetMaxIterations(),
	}
}

// Distribution is one quantity over one region of the matrix.
type Distribution struct {
	Quantity string `json:"quantity"`
	Region   string `json:"region"`

	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`

	// Edges has len(Counts)+1 entries. Values outside [Edges[0],
	// Edges[last]) are tallied in Underflow and Overflow.
	Edges     []float64 `json:"edges"`
	Counts    []float64 `json:"counts"`
	Underflow int       `json:"underflow"`
	Overflow  int       `json:"overflow"`

	// Gauss holds norm, mean and sigma of the histogram fit.
	Gauss       []float64 `json:"gauss,omitempty"`
	GaussStdErr []float64 `json:"gauss_stderr,omitempty"`
	FitError    string    `json:"fit_error,omitempty"`
	Err         error     `json:"-"`
}

// Name identifies the distribution in file names and logs.
func (d Distribution) Name() string { return d.Quantity + "_" + d.Region }

// BinWidth is the width of one histogram bin.
func (d Distribution) BinWidth() float64 {
	if len(d.Counts) == 0 {
		return 0
	}
	return (d.Edges[len(d.Edges)-1] - d.Edges[0]) / float64(len(d.Counts))
}

// Centers returns the bin centres.
func (d Distribution) Centers() []float64 {
	out := make([]float64, len(d.Counts))
	for i := range out {
		out[i] = (d.Edges[i] + d.Edges[i+1]) / 2
	}
	return out
}

// NewDistribution computes the statistics of values, bins them over rng
// and fits a Gaussian to the histogram.
func NewDistribution(quantity, region string, values []float64, bins int, rng [2]float64, maxIterations int) Distribution {
	d := Distribution{
		Quantity: quantity,
		Region:   region,
		Count:    len(values),
		Edges:    floats.Span(make([]float64, bins+1), rng[0], rng[1]),
		Counts:   make([]float64, bins),
	}
	if len(values) > 0 {
		d.Mean, d.Std = stat.PopMeanStdDev(values, nil)
	}

	inRange := make([]float64, 0, len(values))
	for _, v := range values {
		switch {
		case v < rng[0]:
			d.Underflow++
		case v >= rng[1]:
			d.Overflow++
		default:
			inRange = append(inRange, v)
		}
	}
	if len(inRange) > 0 {
		sort.Float64s(inRange)
		stat.Histogram(d.Counts, d.Edges, inRange, nil)
	}

	d.Err = d.fitGauss(inRange, maxIterations)
	if d.Err != nil {
		d.FitError = d.Err.Error()
	}
	return d
}

// fitGauss seeds the fit from the binned values only; under- and overflow
// would drag the guess off the histogram.
func (d *Distribution) fitGauss(inRange []float64, maxIterations int) error {
	if len(inRange) == 0 {
		return fit.ErrEmptyDataset
	}
	width := d.BinWidth()
	mean, sigma := stat.PopMeanStdDev(inRange, nil)
	if sigma == 0 || math.IsNaN(sigma) {
		sigma = width
	}
	guess := []float64{float64(len(inRange)) * width, mean, sigma}
	params, stderr, err := fit.CurveFit(response.GaussFunc, d.Centers(), d.Counts, guess, maxIterations)
	if err != nil {
		return err
	}
	if params, err = checkGauss(params); err != nil {
		return err
	}
	d.Gauss = params
	// JSON has no Inf; undetermined errors are left out.
	for _, e := range stderr {
		if math.IsInf(e, 0) {
			return nil
		}
	}
	d.GaussStdErr = stderr
	return nil
}

// checkGauss rejects fits that cannot describe a histogram and folds the
// sign of sigma.
func checkGauss(params []float64) ([]float64, error) {
	if params[0] <= 0 {
		return nil, fmt.Errorf("%w: gaussian norm %g is not positive", fit.ErrNonConvergence, params[0])
	}
	if params[2] == 0 {
		return nil, errors.New("gaussian fit collapsed to zero width")
	}
	params[2] = math.Abs(params[2])
	return params, nil
}

// Summary collects the distributions of a run.
type Summary struct {
	Pixels    int            `json:"pixels"`
	Fitted    int            `json:"fitted"`
	Threshold []Distribution `json:"threshold"`
	Noise     []Distribution `json:"noise"`
}

type region struct {
	name string
	keep func(row int) bool
}

func regions(rows, split int) []region {
	out := []region{{name: "all", keep: func(int) bool { return true }}}
	if split > 0 && split < rows {
		out = append(out,
			region{name: "bottom", keep: func(r int) bool { return r < split }},
			region{name: "top", keep: func(r int) bool { return r >= split }},
		)
	}
	return out
}

// Summarize builds the threshold (s-curve mean) and noise (s-curve
// sigma) distributions over pixels with a successful s-curve fit.
func Summarize(cals []fit.Calibration, rows int, opts Options) Summary {
	opts = opts.withDefaults()
	s := Summary{Pixels: len(cals)}
	for _, c := range cals {
		if c.SCurve.OK() {
			s.Fitted++
		}
	}
	for _, reg := range regions(rows, opts.SplitRow) {
		var thresholds, noise []float64
		for _, c := range cals {
			if !c.SCurve.OK() || !reg.keep(c.Pixel.Row) {
				continue
			}
			thresholds = append(thresholds, c.SCurve.Params[1])
			noise = append(noise, math.Abs(c.SCurve.Params[2]))
		}
		s.Threshold = append(s.Threshold, NewDistribution("threshold", reg.name, thresholds, opts.Bins, opts.ThresholdRange, opts.MaxIterations))
		s.Noise = append(s.Noise, NewDistribution("noise", reg.name, noise, opts.Bins, opts.NoiseRange, opts.MaxIterations))
	}
	return s
}
