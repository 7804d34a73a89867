// Package rollover removes time-over-threshold rollover hits before the
// charge-response fit.
//
// At high injected charge the ToT counter wraps past its last code and
// reports spuriously low values. Those hits fall below a straight line in
// (injection, response) space and are cut event by event; the mean of the
// surviving hits is re-accumulated for every injection bin at or above
// the cut start. Bins below the start are taken unchanged from the uncut
// cube.
package rollover

import (
	"fmt"

	"github.com/banshee-data/pixelcal/internal/pixel/histogram"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

// Default discriminator for the reference sensor.
const (
	DefaultSlope      = 0.833
	DefaultIntercept  = -43.0
	DefaultStartIndex = 80
)

// Cut is the rollover discriminator. Hits at injection bins >= StartIndex
// are kept only when response > Slope*injection + Intercept.
type Cut struct {
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	StartIndex int     `json:"start_index"`
}

// DefaultCut returns the empirical discriminator of the reference sensor.
func DefaultCut() Cut {
	return Cut{Slope: DefaultSlope, Intercept: DefaultIntercept, StartIndex: DefaultStartIndex}
}

// Validate checks the cut against a cube shape. A start index past the
// last level is allowed; see Clamp.
func (c Cut) Validate(shape histogram.Shape) error {
	if c.StartIndex < 0 {
		return fmt.Errorf("rollover: negative start index %d", c.StartIndex)
	}
	return nil
}

// Clamp limits StartIndex to the number of levels in shape. A scan that
// ends below the start index has no bins to correct.
func (c Cut) Clamp(shape histogram.Shape) Cut {
	c.StartIndex = min(c.StartIndex, shape.Levels())
	return c
}

// Keep reports whether a hit lies above the discriminator line.
func (c Cut) Keep(ev hits.Event) bool {
	return float64(ev.Response) > c.Slope*float64(ev.Injection)+c.Intercept
}

// Corrector accumulates the cut subset of every chunk it is fed. It must
// see the same chunks as the histogram.Builder whose cube it corrects.
type Corrector struct {
	cut     Cut
	builder *histogram.Builder
	removed uint64
}

// NewCorrector allocates the cut-subset totals for shape.
func NewCorrector(shape histogram.Shape, cut Cut, maxCells int) (*Corrector, error) {
	if err := cut.Validate(shape); err != nil {
		return nil, err
	}
	b, err := histogram.NewBuilder(shape, maxCells)
	if err != nil {
		return nil, err
	}
	return &Corrector{cut: cut.Clamp(shape), builder: b}, nil
}

// Cut returns the discriminator in use, clamped to the corrector's shape.
func (c *Corrector) Cut() Cut { return c.cut }

// Add applies the discriminator to the high-injection hits of chunk.
func (c *Corrector) Add(chunk []hits.Event) {
	c.builder.AddIf(chunk, func(ev hits.Event, level int) bool {
		if level < c.cut.StartIndex {
			return false
		}
		if c.cut.Keep(ev) {
			return true
		}
		c.removed++
		return false
	})
}

// Removed is the number of hits rejected as rollover so far.
func (c *Corrector) Removed() uint64 { return c.removed }

// Apply returns the cut-corrected cube: bins below the start index copied
// from base, bins at or above it from the cut subset. base must have the
// corrector's shape.
func (c *Corrector) Apply(base *histogram.Cube) (*histogram.Cube, error) {
	if base.Shape != c.builder.Shape() {
		return nil, fmt.Errorf("rollover: base cube shape %+v does not match %+v", base.Shape, c.builder.Shape())
	}
	out := c.builder.Cube()
	start := c.cut.StartIndex
	for r := 0; r < base.Rows; r++ {
		for col := 0; col < base.Cols; col++ {
			copy(out.PixelCounts(r, col)[:start], base.PixelCounts(r, col)[:start])
			copy(out.PixelMean(r, col)[:start], base.PixelMean(r, col)[:start])
		}
	}
	return out, nil
}
