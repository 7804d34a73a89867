// Package testutil provides shared test utilities and fixtures.
//
// The hit generators build deterministic synthetic scans so that tests in
// different packages exercise the pipeline with the same shapes of data.
package testutil

import (
	"math"
	"math/rand"

	"github.com/banshee-data/pixelcal/internal/pixel/hits"
	"github.com/banshee-data/pixelcal/internal/pixel/response"
)

// Levels returns min..max inclusive.
func Levels(min, max int) []int {
	out := make([]int, 0, max-min+1)
	for v := min; v <= max; v++ {
		out = append(out, v)
	}
	return out
}

// SCurveEvents emits, for every level, round(SCurve(level)) hits on p. Each
// hit carries response(level).
func SCurveEvents(p hits.Pixel, levels []int, amplitude, mean, sigma float64, respond func(injection int) int) []hits.Event {
	var out []hits.Event
	for _, inj := range levels {
		n := int(math.Round(response.SCurve(float64(inj), amplitude, mean, sigma)))
		for k := 0; k < n; k++ {
			out = append(out, hits.Event{Row: p.Row, Col: p.Col, Injection: inj, Response: respond(inj)})
		}
	}
	return out
}

// LinearResponse returns a response function clamped to [0, 63] that
// follows slope*injection + intercept rounded to the nearest code.
func LinearResponse(slope, intercept float64) func(int) int {
	return func(inj int) int {
		v := int(math.Round(response.Line(float64(inj), slope, intercept)))
		switch {
		case v < 0:
			return 0
		case v > 63:
			return 63
		}
		return v
	}
}

// RandomEvents returns n events drawn uniformly over a slightly enlarged
// box around rows x cols x [injMin, injMax] x [0, 64), so that a fraction
// of them fall out of range.
func RandomEvents(rng *rand.Rand, n, rows, cols, injMin, injMax int) []hits.Event {
	out := make([]hits.Event, n)
	for i := range out {
		out[i] = hits.Event{
			Row:       rng.Intn(rows+2) - 1,
			Col:       rng.Intn(cols+2) - 1,
			Injection: injMin - 1 + rng.Intn(injMax-injMin+3),
			Response:  rng.Intn(66) - 1,
		}
	}
	return out
}
