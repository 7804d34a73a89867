package paramap

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

func okCalibration(p hits.Pixel) fit.Calibration {
	return fit.Calibration{
		Pixel:     p,
		SCurve:    fit.NewResult(fit.SCurve, []float64{100, 15 + float64(p.Col), 3}, []float64{0.5, 0.01, 0.02}),
		Line:      fit.NewResult(fit.Line, []float64{0.8, -40}, []float64{0.001, 0.1}),
		Line1P:    fit.NewResult(fit.Line1P, []float64{0.7}, []float64{math.Inf(1)}),
		Quadratic: fit.NewResult(fit.Quadratic, []float64{1e-4, 0.79, -39}, []float64{1e-6, 1e-3, 0.2}),
		Range:     [2]float64{50, 128.75},
	}
}

func failedCalibration(p hits.Pixel) fit.Calibration {
	return fit.Calibration{
		Pixel:     p,
		SCurve:    fit.Failed(fit.SCurve, fit.ErrEmptyDataset),
		Line:      fit.Failed(fit.Line, fit.ErrEmptyDataset),
		Line1P:    fit.Failed(fit.Line1P, fit.ErrNoThreshold),
		Quadratic: fit.Failed(fit.Quadratic, fit.ErrEmptyDataset),
	}
}

func TestBuildPlacesByPixel(t *testing.T) {
	t.Parallel()

	// Deliberately out of row-major order.
	cals := []fit.Calibration{
		okCalibration(hits.Pixel{Row: 1, Col: 1}),
		okCalibration(hits.Pixel{Row: 0, Col: 0}),
		failedCalibration(hits.Pixel{Row: 0, Col: 1}),
		okCalibration(hits.Pixel{Row: 1, Col: 0}),
	}
	m, err := Build(2, 2, cals)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, []int{2, 2, 3}, m.Params[fit.SCurve].Dims)
	assert.Equal(t, []int{2, 2, 2}, m.Params[fit.Line].Dims)
	assert.Equal(t, []int{2, 2, 1}, m.Errors[fit.Line1P].Dims)
	assert.Equal(t, []float64{100, 16, 3}, m.Params[fit.SCurve].Vector(1, 1))
	assert.Equal(t, []float64{50, 128.75}, m.Range.Vector(1, 0))

	got, err := m.Calibration(1, 1)
	require.NoError(t, err)
	assert.Equal(t, okCalibration(hits.Pixel{Row: 1, Col: 1}), got)
}

func TestBuildSentinelOnFailure(t *testing.T) {
	t.Parallel()

	m, err := Build(1, 1, []fit.Calibration{failedCalibration(hits.Pixel{})})
	require.NoError(t, err)
	for _, k := range fit.Kinds {
		assert.Equal(t, make([]float64, k.NumParams()), m.Params[k].Data, k.String())
		assert.Equal(t, make([]float64, k.NumParams()), m.Errors[k].Data, k.String())
	}
	assert.Equal(t, []float64{0, 0}, m.Range.Data)

	c, err := m.Calibration(0, 0)
	require.NoError(t, err)
	for _, k := range fit.Kinds {
		assert.ErrorIs(t, c.Result(k).Err, ErrNoFit, k.String())
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := Build(2, 2, []fit.Calibration{okCalibration(hits.Pixel{})})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Build(1, 2, []fit.Calibration{okCalibration(hits.Pixel{}), okCalibration(hits.Pixel{})})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Build(1, 1, []fit.Calibration{okCalibration(hits.Pixel{Row: 3})})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Build(0, 0, nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestCalibrationOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewMaps(2, 3)
	_, err := m.Calibration(2, 0)
	assert.True(t, errors.Is(err, ErrShape))
	_, err = m.Calibration(0, -1)
	assert.True(t, errors.Is(err, ErrShape))
}

func TestMapsValidate(t *testing.T) {
	t.Parallel()

	m := NewMaps(2, 3)
	require.NoError(t, m.Validate())

	m.Range = NewFloatArray(2, 3, 3)
	assert.ErrorIs(t, m.Validate(), ErrShape)

	m = NewMaps(2, 3)
	arr := m.Params[fit.Line]
	arr.Data = arr.Data[:5]
	m.Params[fit.Line] = arr
	assert.ErrorIs(t, m.Validate(), ErrShape)
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	floats := []float64{0, -0.5, math.Inf(1), math.SmallestNonzeroFloat64, math.MaxFloat64, 1.0 / 3}
	gotFloats, err := decodeFloats(encodeFloats(floats), len(floats))
	require.NoError(t, err)
	for i := range floats {
		assert.Equal(t, math.Float64bits(floats[i]), math.Float64bits(gotFloats[i]))
	}

	counts := []uint32{0, 1, math.MaxUint32, 42}
	gotCounts, err := decodeCounts(encodeCounts(counts), len(counts))
	require.NoError(t, err)
	assert.Equal(t, counts, gotCounts)

	_, err = decodeCounts(encodeCounts(counts), len(counts)+1)
	assert.ErrorIs(t, err, ErrShape)
	_, err = decodeFloats([]byte("not zstd"), 1)
	assert.Error(t, err)
}
