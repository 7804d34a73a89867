package fit

import (
	"fmt"

	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

// Ledger tallies fit failures over a pass. Partial ledgers built by
// independent workers are combined with Merge.
type Ledger struct {
	Pixels            int          `json:"pixels"`
	SCurveFailures    int          `json:"scurve_failures"`
	LineFailures      int          `json:"line_failures"`
	Line1PFailures    int          `json:"line1p_failures"`
	QuadraticFailures int          `json:"quad_failures"`
	LinePixels        []hits.Pixel `json:"line_pixels"`
	QuadraticPixels   []hits.Pixel `json:"quad_pixels"`
}

// Record adds one pixel's outcome.
func (l *Ledger) Record(c Calibration) {
	l.Pixels++
	if !c.SCurve.OK() {
		l.SCurveFailures++
	}
	if !c.Line.OK() {
		l.LineFailures++
		l.LinePixels = append(l.LinePixels, c.Pixel)
	}
	if !c.Line1P.OK() {
		l.Line1PFailures++
	}
	if !c.Quadratic.OK() {
		l.QuadraticFailures++
		l.QuadraticPixels = append(l.QuadraticPixels, c.Pixel)
	}
}

// Merge appends o. Merging partial ledgers in pixel order keeps the
// coordinate lists in pixel order.
func (l *Ledger) Merge(o Ledger) {
	l.Pixels += o.Pixels
	l.SCurveFailures += o.SCurveFailures
	l.LineFailures += o.LineFailures
	l.Line1PFailures += o.Line1PFailures
	l.QuadraticFailures += o.QuadraticFailures
	l.LinePixels = append(l.LinePixels, o.LinePixels...)
	l.QuadraticPixels = append(l.QuadraticPixels, o.QuadraticPixels...)
}

// Failures returns the failure count of kind.
func (l Ledger) Failures(kind Kind) int {
	switch kind {
	case SCurve:
		return l.SCurveFailures
	case Line:
		return l.LineFailures
	case Line1P:
		return l.Line1PFailures
	case Quadratic:
		return l.QuadraticFailures
	}
	return 0
}

// SetFailures overwrites the failure count of kind.
func (l *Ledger) SetFailures(kind Kind, n int) {
	switch kind {
	case SCurve:
		l.SCurveFailures = n
	case Line:
		l.LineFailures = n
	case Line1P:
		l.Line1PFailures = n
	case Quadratic:
		l.QuadraticFailures = n
	}
}

func (l Ledger) String() string {
	return fmt.Sprintf("%d pixels, failed fits: scurve=%d line=%d line1p=%d quad=%d",
		l.Pixels, l.SCurveFailures, l.LineFailures, l.Line1PFailures, l.QuadraticFailures)
}
