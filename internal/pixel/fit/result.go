// Package fit runs the per-pixel calibration fits.
//
// For every pixel the engine fits an s-curve to counts versus injection
// and three models to the cut-corrected mean response versus injection:
// a line, a line through the pixel's own threshold and a quadratic. Each
// fit yields a Result that either carries parameters with standard errors
// or the reason it failed. A failed fit never stops the pass.
package fit

import (
	"errors"
	"fmt"
	"math"
)

// Fit failure reasons.
var (
	// ErrEmptyDataset means fewer usable samples than model parameters.
	ErrEmptyDataset = errors.New("fit: not enough samples")
	// ErrNonConvergence means the solver did not reach a finite,
	// well-determined optimum.
	ErrNonConvergence = errors.New("fit: solver did not converge")
	// ErrNoThreshold means the threshold-anchored line was requested for
	// a pixel whose s-curve fit failed.
	ErrNoThreshold = errors.New("fit: no s-curve threshold")
	// ErrNotFitted marks slots the fit pass never reached.
	ErrNotFitted = errors.New("fit: pixel not fitted")
)

// Kind identifies a fitted model.
type Kind int

const (
	SCurve Kind = iota
	Line
	Line1P
	Quadratic
)

// Kinds lists every model in artifact order.
var Kinds = []Kind{SCurve, Line, Line1P, Quadratic}

func (k Kind) String() string {
	switch k {
	case SCurve:
		return "scurve"
	case Line:
		return "line"
	case Line1P:
		return "line1p"
	case Quadratic:
		return "quad"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// NumParams is the length of the kind's parameter vector.
func (k Kind) NumParams() int {
	switch k {
	case SCurve, Quadratic:
		return 3
	case Line:
		return 2
	case Line1P:
		return 1
	}
	return 0
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("fit: unknown model %q", s)
}

// Result is the outcome of one model fit. When Err is nil the first
// Kind.NumParams() entries of Params and StdErr are meaningful:
//
//	SCurve:    amplitude, mean (threshold), sigma (noise)
//	Line:      slope, intercept
//	Line1P:    slope
//	Quadratic: a, b, c of a*x² + b*x + c
type Result struct {
	Kind   Kind
	Params [3]float64
	StdErr [3]float64
	Err    error
}

// OK reports whether the fit succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Values returns the parameter vector, nil for a failed fit.
func (r Result) Values() []float64 {
	if !r.OK() {
		return nil
	}
	return append([]float64(nil), r.Params[:r.Kind.NumParams()]...)
}

// Errors returns the standard errors, nil for a failed fit.
func (r Result) Errors() []float64 {
	if !r.OK() {
		return nil
	}
	return append([]float64(nil), r.StdErr[:r.Kind.NumParams()]...)
}

// Failed returns a failed result of kind.
func Failed(kind Kind, err error) Result {
	return Result{Kind: kind, Err: err}
}

// NewResult validates a solver output. Parameters must be finite and
// match the kind's length; standard errors must be non-negative and not
// NaN (+Inf marks an undetermined error with zero degrees of freedom).
func NewResult(kind Kind, params, stderr []float64) Result {
	n := kind.NumParams()
	if n == 0 || len(params) != n || len(stderr) != n {
		return Failed(kind, fmt.Errorf("%w: %s got %d params, %d errors", ErrNonConvergence, kind, len(params), len(stderr)))
	}
	r := Result{Kind: kind}
	for i := 0; i < n; i++ {
		if math.IsNaN(params[i]) || math.IsInf(params[i], 0) {
			return Failed(kind, fmt.Errorf("%w: %s parameter %d is %v", ErrNonConvergence, kind, i, params[i]))
		}
		if math.IsNaN(stderr[i]) || stderr[i] < 0 {
			return Failed(kind, fmt.Errorf("%w: %s error %d is %v", ErrNonConvergence, kind, i, stderr[i]))
		}
		r.Params[i] = params[i]
		r.StdErr[i] = stderr[i]
	}
	return r
}
