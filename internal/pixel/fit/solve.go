package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/pixelcal/internal/pixel/response"
)

// Solver settings for the Levenberg-Marquardt iterations.
const (
	lmTau          = 1e-6
	lmEps1         = 1e-8
	lmEps2         = 1e-8
	lmObjectiveTol = 1e-16
)

// normalSystem is the column-scaled JᵀJ of a design or Jacobian matrix.
// Scaling each column to unit norm keeps the Cholesky factorisation
// accurate for polynomial designs with widely different column sizes.
type normalSystem struct {
	scaled *mat.Dense
	scale  []float64
	chol   mat.Cholesky
}

func newNormalSystem(j *mat.Dense) (*normalSystem, error) {
	n, p := j.Dims()
	ns := &normalSystem{scaled: mat.NewDense(n, p, nil), scale: make([]float64, p)}
	ns.scaled.Copy(j)
	for c := 0; c < p; c++ {
		norm := mat.Norm(ns.scaled.ColView(c), 2)
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			return nil, fmt.Errorf("%w: degenerate column %d", ErrNonConvergence, c)
		}
		ns.scale[c] = norm
		for r := 0; r < n; r++ {
			ns.scaled.Set(r, c, ns.scaled.At(r, c)/norm)
		}
	}
	var jtj mat.SymDense
	jtj.SymOuterK(1, ns.scaled.T())
	if ok := ns.chol.Factorize(&jtj); !ok {
		return nil, fmt.Errorf("%w: singular normal matrix", ErrNonConvergence)
	}
	return ns, nil
}

// solve returns the least-squares β of scaled·β' = y, unscaled.
func (ns *normalSystem) solve(y []float64) ([]float64, error) {
	n, p := ns.scaled.Dims()
	var jty mat.VecDense
	jty.MulVec(ns.scaled.T(), mat.NewVecDense(n, y))
	var beta mat.VecDense
	if err := ns.chol.SolveVecTo(&beta, &jty); err != nil && !isCondition(err) {
		return nil, fmt.Errorf("%w: %v", ErrNonConvergence, err)
	}
	out := make([]float64, p)
	for c := range out {
		out[c] = beta.AtVec(c) / ns.scale[c]
	}
	return out, nil
}

// stderr returns sqrt(diag(s²·(JᵀJ)⁻¹)) with s² = ssr/(n-p). With no
// degrees of freedom left the errors are +Inf.
func (ns *normalSystem) stderr(ssr float64) ([]float64, error) {
	n, p := ns.scaled.Dims()
	var inv mat.SymDense
	if err := ns.chol.InverseTo(&inv); err != nil && !isCondition(err) {
		return nil, fmt.Errorf("%w: %v", ErrNonConvergence, err)
	}
	s2 := math.Inf(1)
	if n > p {
		s2 = ssr / float64(n-p)
	}
	out := make([]float64, p)
	for c := range out {
		v := inv.At(c, c)
		if s2 == 0 {
			out[c] = 0
			continue
		}
		out[c] = math.Sqrt(v*s2) / ns.scale[c]
	}
	return out, nil
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}

func sumSquaredResiduals(f response.Func, xs, ys, p []float64) float64 {
	var ssr float64
	for i, x := range xs {
		d := f(x, p) - ys[i]
		ssr += d * d
	}
	return ssr
}

// LinearFit fits y ≈ Σ βⱼ·basisⱼ(x) by linear least squares. f must be the
// model the basis spans; it is used for the residuals.
func LinearFit(f response.Func, basis []func(float64) float64, xs, ys []float64) ([]float64, []float64, error) {
	n, p := len(xs), len(basis)
	if n != len(ys) {
		return nil, nil, fmt.Errorf("fit: %d x values for %d y values", n, len(ys))
	}
	if n < p {
		return nil, nil, fmt.Errorf("%w: %d samples for %d parameters", ErrEmptyDataset, n, p)
	}
	design := mat.NewDense(n, p, nil)
	for r, x := range xs {
		for c, b := range basis {
			design.Set(r, c, b(x))
		}
	}
	ns, err := newNormalSystem(design)
	if err != nil {
		return nil, nil, err
	}
	params, err := ns.solve(ys)
	if err != nil {
		return nil, nil, err
	}
	stderr, err := ns.stderr(sumSquaredResiduals(f, xs, ys, params))
	if err != nil {
		return nil, nil, err
	}
	return params, stderr, nil
}

// CurveFit fits the non-linear model f to (xs, ys) with Levenberg-Marquardt
// starting from guess, and estimates standard errors from the Jacobian at
// the optimum.
func CurveFit(f response.Func, xs, ys, guess []float64, maxIterations int) ([]float64, []float64, error) {
	n, p := len(xs), len(guess)
	if n != len(ys) {
		return nil, nil, fmt.Errorf("fit: %d x values for %d y values", n, len(ys))
	}
	if n < p {
		return nil, nil, fmt.Errorf("%w: %d samples for %d parameters", ErrEmptyDataset, n, p)
	}

	residuals := func(dst, q []float64) {
		for i, x := range xs {
			dst[i] = f(x, q) - ys[i]
		}
	}
	jac := lm.NumJac{Func: residuals}
	problem := lm.LMProblem{
		Dim:        p,
		Size:       n,
		Func:       residuals,
		Jac:        jac.Jac,
		InitParams: append([]float64(nil), guess...),
		Tau:        lmTau,
		Eps1:       lmEps1,
		Eps2:       lmEps2,
	}
	res, err := solveLM(problem, maxIterations)
	if err != nil {
		return nil, nil, err
	}
	if res.Status != optimize.StepConvergence {
		return nil, nil, fmt.Errorf("%w: %v after %d iterations", ErrNonConvergence, res.Status, maxIterations)
	}
	if len(res.X) != p {
		return nil, nil, fmt.Errorf("%w: solver returned no solution", ErrNonConvergence)
	}
	params := append([]float64(nil), res.X...)
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: parameter %d is %v", ErrNonConvergence, i, v)
		}
	}
	ssr := sumSquaredResiduals(f, xs, ys, params)
	if math.IsNaN(ssr) || math.IsInf(ssr, 0) {
		return nil, nil, fmt.Errorf("%w: residual sum is %v", ErrNonConvergence, ssr)
	}

	ns, err := newNormalSystem(jacobian(f, xs, params))
	if err != nil {
		return nil, nil, err
	}
	stderr, err := ns.stderr(ssr)
	if err != nil {
		return nil, nil, err
	}
	return params, stderr, nil
}

// solveLM runs the solver and turns its panics on a singular damped
// system into ErrNonConvergence so one pixel cannot take down a run.
func solveLM(problem lm.LMProblem, maxIterations int) (res *lm.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: solver panic: %v", ErrNonConvergence, r)
		}
	}()
	res, err = lm.LM(problem, &lm.Settings{Iterations: maxIterations, ObjectiveTol: lmObjectiveTol})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonConvergence, err)
	}
	return res, nil
}

// jacobian is the central-difference Jacobian of f over xs at p.
func jacobian(f response.Func, xs, p []float64) *mat.Dense {
	j := mat.NewDense(len(xs), len(p), nil)
	q := append([]float64(nil), p...)
	for c := range p {
		h := 1e-6 * math.Max(math.Abs(p[c]), 1)
		q[c] = p[c] + h
		for r, x := range xs {
			j.Set(r, c, f(x, q))
		}
		q[c] = p[c] - h
		for r, x := range xs {
			j.Set(r, c, (j.At(r, c)-f(x, q))/(2*h))
		}
		q[c] = p[c]
	}
	return j
}

// Basis functions of the linear models.
var (
	lineBasis      = []func(float64) float64{func(x float64) float64 { return x }, func(float64) float64 { return 1 }}
	line1PBasis    = []func(float64) float64{func(x float64) float64 { return x }}
	quadraticBasis = []func(float64) float64{func(x float64) float64 { return x * x }, func(x float64) float64 { return x }, func(float64) float64 { return 1 }}
)
