package report

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pixelcal/internal/config"
	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

// calibrations returns rows x cols calibrations whose s-curve mean is
// drawn from N(20, 1.5) and sigma from N(1, 0.1). Pixels on the last
// column have no s-curve.
func calibrations(rows, cols int, seed int64) []fit.Calibration {
	rng := rand.New(rand.NewSource(seed))
	out := make([]fit.Calibration, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cal := fit.Calibration{Pixel: hits.Pixel{Row: r, Col: c}}
			if c == cols-1 {
				cal.SCurve = fit.Failed(fit.SCurve, fit.ErrEmptyDataset)
			} else {
				mean := 20 + 1.5*rng.NormFloat64()
				if r >= rows/2 {
					mean += 2
				}
				cal.SCurve = fit.NewResult(fit.SCurve, []float64{100, mean, -(1 + 0.1*rng.NormFloat64())}, []float64{1, 0.1, 0.1})
			}
			out = append(out, cal)
		}
	}
	return out
}

func TestNewDistribution(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 2, 3, 3, 3, 4, 4, 5, -1, 12}
	d := NewDistribution("threshold", "all", values, 10, [2]float64{0, 10}, 1000)

	assert.Equal(t, "threshold_all", d.Name())
	assert.Equal(t, len(values), d.Count)
	assert.Equal(t, 1, d.Underflow)
	assert.Equal(t, 1, d.Overflow)
	assert.Len(t, d.Edges, 11)
	assert.InDelta(t, 1.0, d.BinWidth(), 1e-12)
	assert.Equal(t, []float64{0, 1, 2, 3, 2, 1, 0, 0, 0, 0}, d.Counts)
	assert.InDelta(t, 0.5, d.Centers()[0], 1e-12)

	var sum float64
	for _, v := range values {
		sum += v
	}
	assert.InDelta(t, sum/float64(len(values)), d.Mean, 1e-12)
}

func TestNewDistributionEmpty(t *testing.T) {
	t.Parallel()

	d := NewDistribution("noise", "top", nil, 5, [2]float64{0, 2}, 1000)
	assert.Zero(t, d.Count)
	assert.ErrorIs(t, d.Err, fit.ErrEmptyDataset)
	assert.NotEmpty(t, d.FitError)
	assert.Equal(t, make([]float64, 5), d.Counts)
}

func TestGaussFitRecoversDistribution(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 5000)
	for i := range values {
		values[i] = 20 + 2*rng.NormFloat64()
	}
	d := NewDistribution("threshold", "all", values, 50, [2]float64{10, 30}, 1000)
	require.NoError(t, d.Err)
	require.Len(t, d.Gauss, 3)
	assert.InDelta(t, 20, d.Gauss[1], 0.2)
	assert.InDelta(t, 2, d.Gauss[2], 0.2)
	// norm is the histogram area.
	assert.InDelta(t, float64(len(values)-d.Underflow-d.Overflow)*d.BinWidth(), d.Gauss[0], 0.05*d.Gauss[0])
	assert.InDelta(t, 20, d.Mean, 0.1)
	assert.InDelta(t, 2, d.Std, 0.1)
}

func TestGaussFitMostlyOverflow(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	values := make([]float64, 0, 100)
	for i := 0; i < 95; i++ {
		values = append(values, 50+rng.Float64())
	}
	for i := 0; i < 5; i++ {
		values = append(values, 20+0.1*rng.NormFloat64())
	}
	d := NewDistribution("threshold", "all", values, 50, [2]float64{10, 30}, 1000)
	assert.Equal(t, 95, d.Overflow)
	if d.Err == nil {
		require.Len(t, d.Gauss, 3)
		assert.Greater(t, d.Gauss[0], 0.0)
	} else {
		assert.Nil(t, d.Gauss)
		assert.NotEmpty(t, d.FitError)
	}
}

func TestCheckGauss(t *testing.T) {
	t.Parallel()

	_, err := checkGauss([]float64{-4.03, 20.01, 0.10})
	assert.ErrorIs(t, err, fit.ErrNonConvergence)

	_, err = checkGauss([]float64{0, 20, 1})
	assert.ErrorIs(t, err, fit.ErrNonConvergence)

	_, err = checkGauss([]float64{10, 20, 0})
	assert.Error(t, err)

	params, err := checkGauss([]float64{10, 20, -1.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 1.5}, params)
}

func TestSummarizeSplitsRows(t *testing.T) {
	t.Parallel()

	cals := calibrations(8, 5, 1)
	opts := DefaultOptions()
	opts.SplitRow = 4
	s := Summarize(cals, 8, opts)

	assert.Equal(t, 40, s.Pixels)
	assert.Equal(t, 32, s.Fitted)
	require.Len(t, s.Threshold, 3)
	require.Len(t, s.Noise, 3)

	regions := []string{s.Threshold[0].Region, s.Threshold[1].Region, s.Threshold[2].Region}
	assert.Equal(t, []string{"all", "bottom", "top"}, regions)
	assert.Equal(t, 32, s.Threshold[0].Count)
	assert.Equal(t, 16, s.Threshold[1].Count)
	assert.Equal(t, 16, s.Threshold[2].Count)
	assert.Greater(t, s.Threshold[2].Mean, s.Threshold[1].Mean)

	// Noise is the magnitude of sigma.
	for _, d := range s.Noise {
		assert.Greater(t, d.Mean, 0.0)
	}
}

func TestSummarizeWithoutSplit(t *testing.T) {
	t.Parallel()

	for _, split := range []int{0, -1, 8, 20} {
		opts := DefaultOptions()
		opts.SplitRow = split
		s := Summarize(calibrations(8, 3, 2), 8, opts)
		assert.Len(t, s.Threshold, 1, "split %d", split)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	o := OptionsFromConfig(config.EmptyCalibrationConfig())
	assert.Equal(t, 50, o.Bins)
	assert.Equal(t, [2]float64{10, 30}, o.ThresholdRange)
	assert.Equal(t, [2]float64{0, 2}, o.NoiseRange)
	assert.Equal(t, 112, o.SplitRow)

	assert.Equal(t, DefaultOptions(), Options{}.withDefaults())
}

func TestPNG(t *testing.T) {
	t.Parallel()

	s := Summarize(calibrations(6, 6, 3), 6, DefaultOptions())
	png, err := s.Threshold[0].PNG()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	empty := NewDistribution("noise", "all", nil, 10, [2]float64{0, 2}, 100)
	png, err = empty.PNG()
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestThresholdMap(t *testing.T) {
	t.Parallel()

	html, err := ThresholdMap(calibrations(4, 4, 4), 4, 4, [2]float64{10, 30}, "run-1")
	require.NoError(t, err)
	assert.Contains(t, string(html), "Threshold map")
	assert.Contains(t, string(html), "fitted=12/16")
}

func TestWriterWrite(t *testing.T) {
	monitoring.SetLogger(nil)

	dir := filepath.Join(t.TempDir(), "report")
	opts := DefaultOptions()
	opts.SplitRow = 4
	s, written, err := Writer{}.Write(dir, "run-1", calibrations(8, 5, 5), 8, 5, opts)
	require.NoError(t, err)

	var names []string
	for _, p := range written {
		assert.Equal(t, dir, filepath.Dir(p))
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"summary.json",
		"threshold_all.png", "threshold_bottom.png", "threshold_top.png",
		"noise_all.png", "noise_bottom.png", "noise_top.png",
		"threshold_map.html",
	}, names)

	raw, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var got Summary
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, s.Fitted, got.Fitted)
	require.Len(t, got.Threshold, 3)
	assert.False(t, math.IsNaN(got.Threshold[0].Mean))
	assert.Equal(t, s.Threshold[0].Counts, got.Threshold[0].Counts)
}
