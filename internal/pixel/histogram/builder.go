package histogram

import (
	"fmt"

	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

// DropStats counts events that could not be binned.
type DropStats struct {
	OutOfMatrix    uint64 `json:"out_of_matrix"`
	OutOfInjection uint64 `json:"out_of_injection"`
	BadResponse    uint64 `json:"bad_response"`
}

// Total is the number of dropped events.
func (d DropStats) Total() uint64 {
	return d.OutOfMatrix + d.OutOfInjection + d.BadResponse
}

// Add returns the element-wise sum.
func (d DropStats) Add(o DropStats) DropStats {
	return DropStats{
		OutOfMatrix:    d.OutOfMatrix + o.OutOfMatrix,
		OutOfInjection: d.OutOfInjection + o.OutOfInjection,
		BadResponse:    d.BadResponse + o.BadResponse,
	}
}

// Builder accumulates running count and response-sum totals across
// chunks. It is not safe for concurrent use.
type Builder struct {
	shape    Shape
	counts   []uint32
	sums     []uint64
	dropped  DropStats
	accepted uint64
}

// NewBuilder allocates the running totals for shape. maxCells bounds the
// allocation; zero disables the check.
func NewBuilder(shape Shape, maxCells int) (*Builder, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if maxCells > 0 && shape.Cells() > maxCells {
		return nil, fmt.Errorf("%w: %d cells for %dx%dx%d, limit %d",
			ErrCubeTooLarge, shape.Cells(), shape.Rows, shape.Cols, shape.Levels(), maxCells)
	}
	return &Builder{
		shape:  shape,
		counts: make([]uint32, shape.Cells()),
		sums:   make([]uint64, shape.Cells()),
	}, nil
}

// Shape returns the builder's binning.
func (b *Builder) Shape() Shape { return b.shape }

// Add bins every event of chunk. Events off the matrix, outside the
// injection range or with a response outside [0, ResponseCodes) are
// dropped and counted.
func (b *Builder) Add(chunk []hits.Event) {
	b.AddIf(chunk, nil)
}

// AddIf bins the events of chunk for which keep returns true. keep sees
// only events that passed range validation, together with their
// injection bin. A nil keep accepts everything.
func (b *Builder) AddIf(chunk []hits.Event, keep func(ev hits.Event, level int) bool) {
	for _, ev := range chunk {
		if !b.shape.Contains(ev.Row, ev.Col) {
			b.dropped.OutOfMatrix++
			continue
		}
		level, ok := b.shape.LevelIndex(ev.Injection)
		if !ok {
			b.dropped.OutOfInjection++
			continue
		}
		if ev.Response < 0 || ev.Response >= ResponseCodes {
			b.dropped.BadResponse++
			continue
		}
		if keep != nil && !keep(ev, level) {
			continue
		}
		i := b.shape.Index(ev.Row, ev.Col, level)
		b.counts[i]++
		b.sums[i] += uint64(ev.Response)
		b.accepted++
	}
}

// Dropped returns the drop counters so far.
func (b *Builder) Dropped() DropStats { return b.dropped }

// Accepted is the number of events binned so far.
func (b *Builder) Accepted() uint64 { return b.accepted }

// Cube materialises the current totals. The mean of an empty bin is 0.
func (b *Builder) Cube() *Cube {
	c := NewCube(b.shape)
	copy(c.Counts, b.counts)
	for i, n := range b.counts {
		if n == 0 {
			continue
		}
		c.Mean[i] = float64(b.sums[i]) / float64(n)
	}
	return c
}
