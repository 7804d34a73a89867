// Package response holds the model functions fitted per pixel.
//
// Every function is pure and defined for any finite input. The slice
// variants evaluate a model over an injection axis and write into dst,
// allocating only when dst is too short.
package response

import "math"

// Line returns slope*x + intercept.
func Line(x, slope, intercept float64) float64 {
	return slope*x + intercept
}

// LineThroughOrigin returns slope*x. Callers shift x by the pixel's
// fitted threshold before evaluating.
func LineThroughOrigin(x, slope float64) float64 {
	return slope * x
}

// Quadratic returns a*x² + b*x + c.
func Quadratic(x, a, b, c float64) float64 {
	return a*x*x + b*x + c
}

// SCurve is the cumulative Gaussian used for the hit efficiency:
// amplitude * 0.5 * (1 + erf((x-mean) / (sigma*√2))).
//
// sigma == 0 degenerates to a step at mean (half amplitude exactly at
// mean) rather than producing NaN.
func SCurve(x, amplitude, mean, sigma float64) float64 {
	if sigma == 0 {
		switch {
		case x > mean:
			return amplitude
		case x < mean:
			return 0
		default:
			return amplitude * 0.5
		}
	}
	return amplitude * 0.5 * (1 + math.Erf((x-mean)/(sigma*math.Sqrt2)))
}

// Gauss is a normalised Gaussian scaled by norm, used to fit the
// threshold and noise distributions across the matrix.
func Gauss(x, norm, mean, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	z := (x - mean) / sigma
	return norm / (sigma * math.Sqrt(2*math.Pi)) * math.Exp(-0.5*z*z)
}

// Func is a model evaluated at x with a parameter vector.
type Func func(x float64, p []float64) float64

// Model adapters with a uniform signature for the solvers.
var (
	LineFunc              Func = func(x float64, p []float64) float64 { return Line(x, p[0], p[1]) }
	LineThroughOriginFunc Func = func(x float64, p []float64) float64 { return LineThroughOrigin(x, p[0]) }
	QuadraticFunc         Func = func(x float64, p []float64) float64 { return Quadratic(x, p[0], p[1], p[2]) }
	SCurveFunc            Func = func(x float64, p []float64) float64 { return SCurve(x, p[0], p[1], p[2]) }
	GaussFunc             Func = func(x float64, p []float64) float64 { return Gauss(x, p[0], p[1], p[2]) }
)

// Eval evaluates f at every x into dst and returns dst[:len(xs)].
func Eval(dst []float64, f Func, xs []float64, p []float64) []float64 {
	if cap(dst) < len(xs) {
		dst = make([]float64, len(xs))
	}
	dst = dst[:len(xs)]
	for i, x := range xs {
		dst[i] = f(x, p)
	}
	return dst
}

// InverseLine returns the x at which Line(x, slope, intercept) == y.
// A zero slope yields ±Inf (or NaN when y == intercept).
func InverseLine(y, slope, intercept float64) float64 {
	return (y - intercept) / slope
}
