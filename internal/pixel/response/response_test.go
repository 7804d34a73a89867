package response

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineFamilies(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.8*60-40, Line(60, 0.8, -40))
	assert.Equal(t, 2.5*4, LineThroughOrigin(4, 2.5))
	assert.Equal(t, 2.0*9+3*3+1, Quadratic(3, 2, 3, 1))
}

func TestSCurve(t *testing.T) {
	t.Parallel()

	t.Run("half amplitude at mean", func(t *testing.T) {
		assert.InDelta(t, 50, SCurve(15, 100, 15, 3), 1e-12)
	})

	t.Run("saturates", func(t *testing.T) {
		assert.InDelta(t, 100, SCurve(1e6, 100, 15, 3), 1e-9)
		assert.InDelta(t, 0, SCurve(-1e6, 100, 15, 3), 1e-9)
	})

	t.Run("one sigma", func(t *testing.T) {
		// Φ(1) ≈ 0.841344746
		assert.InDelta(t, 84.1344746, SCurve(18, 100, 15, 3), 1e-6)
	})

	t.Run("zero sigma is a step", func(t *testing.T) {
		assert.Equal(t, 0.0, SCurve(14, 100, 15, 0))
		assert.Equal(t, 50.0, SCurve(15, 100, 15, 0))
		assert.Equal(t, 100.0, SCurve(16, 100, 15, 0))
	})
}

func TestGauss(t *testing.T) {
	t.Parallel()

	peak := Gauss(20, 1, 20, 2)
	assert.InDelta(t, 1/(2*math.Sqrt(2*math.Pi)), peak, 1e-12)
	assert.InDelta(t, Gauss(18, 1, 20, 2), Gauss(22, 1, 20, 2), 1e-15)
	assert.Equal(t, 0.0, Gauss(1, 1, 0, 0))
}

func TestEval(t *testing.T) {
	t.Parallel()

	xs := []float64{1, 2, 3}
	got := Eval(nil, LineFunc, xs, []float64{2, 1})
	assert.Equal(t, []float64{3, 5, 7}, got)

	buf := make([]float64, 0, 8)
	got = Eval(buf, QuadraticFunc, xs, []float64{1, 0, 0})
	assert.Equal(t, []float64{1, 4, 9}, got)
	assert.Equal(t, 8, cap(got))
}

func TestInverseLine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 50, InverseLine(0, 0.8, -40), 1e-12)
	assert.InDelta(t, 128.75, InverseLine(63, 0.8, -40), 1e-12)
	assert.True(t, math.IsInf(InverseLine(1, 0, 0), 1))
}
