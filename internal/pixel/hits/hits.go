// Package hits defines the decoded hit stream consumed by the calibration
// pipeline and the injection axis of a charge scan.
//
// Hits arrive in bounded chunks through a Source so that memory stays
// proportional to the chunk size, not to the size of the scan.
package hits

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Event is one decoded hit: the pixel that fired, the injection DAC code
// that was applied and the time-over-threshold response code.
type Event struct {
	Row       int
	Col       int
	Injection int
	Response  int
}

// Pixel addresses one cell of the matrix.
type Pixel struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Pixel) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// Source yields hit chunks in order. Next returns io.EOF once the stream
// is exhausted. The returned slice is only valid until the next call.
type Source interface {
	Next(ctx context.Context) ([]Event, error)
}

// ErrEmptyAxis is returned when an injection axis would have no levels.
var ErrEmptyAxis = errors.New("hits: empty injection axis")

// Axis is the ordered, duplicate-free list of injection levels of a scan.
type Axis struct {
	levels []int
}

// NewAxis builds an axis from arbitrary levels, sorting and removing
// duplicates.
func NewAxis(levels []int) (Axis, error) {
	if len(levels) == 0 {
		return Axis{}, ErrEmptyAxis
	}
	sorted := append([]int(nil), levels...)
	sort.Ints(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return Axis{levels: out}, nil
}

// RangeAxis builds min, min+step, ... up to and including max when it is
// reached by the step.
func RangeAxis(min, max, step int) (Axis, error) {
	if step <= 0 {
		return Axis{}, fmt.Errorf("hits: injection step must be positive, got %d", step)
	}
	if max < min {
		return Axis{}, fmt.Errorf("hits: injection max %d below min %d", max, min)
	}
	levels := make([]int, 0, (max-min)/step+1)
	for v := min; v <= max; v += step {
		levels = append(levels, v)
	}
	return Axis{levels: levels}, nil
}

// ParseAxis interprets a command-line style list: one value is a single
// level, two values are an inclusive range, more values are taken as the
// explicit list of levels.
func ParseAxis(values []int) (Axis, error) {
	switch len(values) {
	case 0:
		return Axis{}, ErrEmptyAxis
	case 1:
		return NewAxis(values)
	case 2:
		return RangeAxis(values[0], values[1], 1)
	default:
		return NewAxis(values)
	}
}

// Levels returns a copy of the injection levels.
func (a Axis) Levels() []int {
	return append([]int(nil), a.levels...)
}

// Len is the number of levels on the axis.
func (a Axis) Len() int { return len(a.levels) }

// Min is the lowest level. It panics on a zero Axis.
func (a Axis) Min() int { return a.levels[0] }

// Max is the highest level. It panics on a zero Axis.
func (a Axis) Max() int { return a.levels[len(a.levels)-1] }

// Span is the number of dense integer bins between Min and Max inclusive.
func (a Axis) Span() int {
	if len(a.levels) == 0 {
		return 0
	}
	return a.Max() - a.Min() + 1
}
