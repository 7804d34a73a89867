// Package paramap packs per-pixel calibrations into dense (row, col, k)
// arrays and persists them, together with the histogram cubes and the
// failure ledger, as a single SQLite artifact.
package paramap

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

var (
	// ErrShape reports arrays inconsistent with their declared dims.
	ErrShape = errors.New("paramap: shape mismatch")
	// ErrNoFit marks a result read back from an all-zero slot.
	ErrNoFit = errors.New("paramap: no fit stored")
)

// FloatArray is a dense row-major float64 array.
type FloatArray struct {
	Dims []int
	Data []float64
}

// NewFloatArray allocates a zeroed array.
func NewFloatArray(dims ...int) FloatArray {
	return FloatArray{Dims: append([]int(nil), dims...), Data: make([]float64, product(dims))}
}

// Validate checks that Data holds exactly the product of Dims values.
func (a FloatArray) Validate() error {
	if len(a.Dims) == 0 || product(a.Dims) != len(a.Data) {
		return fmt.Errorf("%w: dims %v for %d values", ErrShape, a.Dims, len(a.Data))
	}
	return nil
}

// Vector returns the innermost vector at (row, col) of a 3-D array.
func (a FloatArray) Vector(row, col int) []float64 {
	k := a.Dims[2]
	off := (row*a.Dims[1] + col) * k
	return a.Data[off : off+k]
}

// CountArray is a dense row-major uint32 array.
type CountArray struct {
	Dims []int
	Data []uint32
}

// Validate checks that Data holds exactly the product of Dims values.
func (a CountArray) Validate() error {
	if len(a.Dims) == 0 || product(a.Dims) != len(a.Data) {
		return fmt.Errorf("%w: dims %v for %d values", ErrShape, a.Dims, len(a.Data))
	}
	return nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// Maps holds the parameter maps of one run. Params and Errors have one
// (Rows, Cols, k) array per fit kind, k being the kind's parameter count;
// Range is (Rows, Cols, 2). A failed fit is stored as zeros.
type Maps struct {
	Rows, Cols int
	Params     map[fit.Kind]FloatArray
	Errors     map[fit.Kind]FloatArray
	Range      FloatArray
}

// NewMaps allocates zeroed maps.
func NewMaps(rows, cols int) *Maps {
	m := &Maps{
		Rows:   rows,
		Cols:   cols,
		Params: make(map[fit.Kind]FloatArray, len(fit.Kinds)),
		Errors: make(map[fit.Kind]FloatArray, len(fit.Kinds)),
		Range:  NewFloatArray(rows, cols, 2),
	}
	for _, k := range fit.Kinds {
		m.Params[k] = NewFloatArray(rows, cols, k.NumParams())
		m.Errors[k] = NewFloatArray(rows, cols, k.NumParams())
	}
	return m
}

// Build packs cals into maps. Each calibration lands at its own pixel;
// there must be exactly one per pixel of a rows x cols matrix.
func Build(rows, cols int, cals []fit.Calibration) (*Maps, error) {
	if rows <= 0 || cols <= 0 || len(cals) != rows*cols {
		return nil, fmt.Errorf("%w: %d calibrations for %dx%d pixels", ErrShape, len(cals), rows, cols)
	}
	m := NewMaps(rows, cols)
	seen := make([]bool, rows*cols)
	for _, c := range cals {
		p := c.Pixel
		if p.Row < 0 || p.Row >= rows || p.Col < 0 || p.Col >= cols {
			return nil, fmt.Errorf("%w: pixel %v outside %dx%d", ErrShape, p, rows, cols)
		}
		i := p.Row*cols + p.Col
		if seen[i] {
			return nil, fmt.Errorf("%w: pixel %v calibrated twice", ErrShape, p)
		}
		seen[i] = true
		for _, k := range fit.Kinds {
			r := c.Result(k)
			if !r.OK() {
				continue
			}
			copy(m.Params[k].Vector(p.Row, p.Col), r.Params[:k.NumParams()])
			copy(m.Errors[k].Vector(p.Row, p.Col), r.StdErr[:k.NumParams()])
		}
		if c.Line.OK() {
			copy(m.Range.Vector(p.Row, p.Col), c.Range[:])
		}
	}
	return m, nil
}

// Validate checks every array against Rows and Cols.
func (m *Maps) Validate() error {
	check := func(name string, a FloatArray, k int) error {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if len(a.Dims) != 3 || a.Dims[0] != m.Rows || a.Dims[1] != m.Cols || a.Dims[2] != k {
			return fmt.Errorf("%w: %s dims %v, want [%d %d %d]", ErrShape, name, a.Dims, m.Rows, m.Cols, k)
		}
		return nil
	}
	for _, k := range fit.Kinds {
		if err := check(paramName(k), m.Params[k], k.NumParams()); err != nil {
			return err
		}
		if err := check(errorName(k), m.Errors[k], k.NumParams()); err != nil {
			return err
		}
	}
	return check(rangeName, m.Range, 2)
}

// Calibration re-derives the record of one pixel. A slot whose values
// and errors are all zero reads back as a failed result with ErrNoFit.
func (m *Maps) Calibration(row, col int) (fit.Calibration, error) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return fit.Calibration{}, fmt.Errorf("%w: pixel (%d, %d) outside %dx%d", ErrShape, row, col, m.Rows, m.Cols)
	}
	c := fit.Calibration{Pixel: hits.Pixel{Row: row, Col: col}}
	results := make(map[fit.Kind]fit.Result, len(fit.Kinds))
	for _, k := range fit.Kinds {
		params := m.Params[k].Vector(row, col)
		errs := m.Errors[k].Vector(row, col)
		if allZero(params) && allZero(errs) {
			results[k] = fit.Failed(k, ErrNoFit)
			continue
		}
		results[k] = fit.NewResult(k, params, errs)
	}
	c.SCurve, c.Line, c.Line1P, c.Quadratic = results[fit.SCurve], results[fit.Line], results[fit.Line1P], results[fit.Quadratic]
	copy(c.Range[:], m.Range.Vector(row, col))
	return c, nil
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
