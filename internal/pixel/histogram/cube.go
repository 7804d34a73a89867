// Package histogram accumulates hit chunks into dense (row, col, injection)
// count and mean-response cubes.
//
// Accumulation keeps integer totals, so the resulting cube is identical
// for any partition of the same events into chunks.
package histogram

import (
	"errors"
	"fmt"
)

// ResponseCodes is the number of encodable time-over-threshold codes.
// Valid responses are in [0, ResponseCodes).
const ResponseCodes = 64

// ErrCubeTooLarge is returned when a shape would need more cells than the
// configured allocation limit.
var ErrCubeTooLarge = errors.New("histogram: cube exceeds cell limit")

// Shape is the binning of a cube: Rows x Cols pixels by one bin per
// integer injection level in [MinInjection, MaxInjection].
type Shape struct {
	Rows         int `json:"rows"`
	Cols         int `json:"cols"`
	MinInjection int `json:"inj_min"`
	MaxInjection int `json:"inj_max"`
}

// Validate reports whether the shape describes a non-empty cube.
func (s Shape) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("histogram: matrix must be non-empty, got %dx%d", s.Rows, s.Cols)
	}
	if s.MaxInjection < s.MinInjection {
		return fmt.Errorf("histogram: injection max %d below min %d", s.MaxInjection, s.MinInjection)
	}
	return nil
}

// Levels is the number of injection bins.
func (s Shape) Levels() int { return s.MaxInjection - s.MinInjection + 1 }

// Pixels is Rows*Cols.
func (s Shape) Pixels() int { return s.Rows * s.Cols }

// Cells is the total number of bins in the cube.
func (s Shape) Cells() int { return s.Pixels() * s.Levels() }

// Index returns the flat offset of (row, col, level).
func (s Shape) Index(row, col, level int) int {
	return (row*s.Cols+col)*s.Levels() + level
}

// LevelIndex maps an injection DAC code to its bin.
func (s Shape) LevelIndex(injection int) (int, bool) {
	if injection < s.MinInjection || injection > s.MaxInjection {
		return 0, false
	}
	return injection - s.MinInjection, true
}

// Injection is the DAC code of bin level.
func (s Shape) Injection(level int) int { return s.MinInjection + level }

// Contains reports whether (row, col) lies on the matrix.
func (s Shape) Contains(row, col int) bool {
	return row >= 0 && row < s.Rows && col >= 0 && col < s.Cols
}

// Cube is the dense result of a histogram pass. Counts and Mean are laid
// out row-major by (row, col, level). Mean is exactly 0 wherever the
// count is 0.
type Cube struct {
	Shape
	Counts []uint32
	Mean   []float64
}

// NewCube allocates a zeroed cube.
func NewCube(shape Shape) *Cube {
	return &Cube{
		Shape:  shape,
		Counts: make([]uint32, shape.Cells()),
		Mean:   make([]float64, shape.Cells()),
	}
}

func (c *Cube) pixelSpan(row, col int) (int, int) {
	start := c.Index(row, col, 0)
	return start, start + c.Levels()
}

// PixelCounts returns the count slice of one pixel. The slice aliases the
// cube.
func (c *Cube) PixelCounts(row, col int) []uint32 {
	lo, hi := c.pixelSpan(row, col)
	return c.Counts[lo:hi:hi]
}

// PixelMean returns the mean-response slice of one pixel. The slice
// aliases the cube.
func (c *Cube) PixelMean(row, col int) []float64 {
	lo, hi := c.pixelSpan(row, col)
	return c.Mean[lo:hi:hi]
}

// Total is the number of events binned into the cube.
func (c *Cube) Total() uint64 {
	var n uint64
	for _, v := range c.Counts {
		n += uint64(v)
	}
	return n
}

// Clone returns a deep copy.
func (c *Cube) Clone() *Cube {
	return &Cube{
		Shape:  c.Shape,
		Counts: append([]uint32(nil), c.Counts...),
		Mean:   append([]float64(nil), c.Mean...),
	}
}
