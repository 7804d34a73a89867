package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNames(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("cubic")
	assert.Error(t, err)

	assert.Equal(t, 3, SCurve.NumParams())
	assert.Equal(t, 2, Line.NumParams())
	assert.Equal(t, 1, Line1P.NumParams())
	assert.Equal(t, 3, Quadratic.NumParams())
}

func TestNewResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   Kind
		params []float64
		stderr []float64
		ok     bool
	}{
		{"line", Line, []float64{0.8, -40}, []float64{0.01, 0.5}, true},
		{"infinite error allowed", Line, []float64{0.8, -40}, []float64{math.Inf(1), math.Inf(1)}, true},
		{"wrong length", Line, []float64{0.8}, []float64{0.01}, false},
		{"nan parameter", SCurve, []float64{100, math.NaN(), 3}, []float64{1, 1, 1}, false},
		{"infinite parameter", Line1P, []float64{math.Inf(-1)}, []float64{1}, false},
		{"nan error", Quadratic, []float64{1, 2, 3}, []float64{1, math.NaN(), 1}, false},
		{"negative error", Line1P, []float64{1}, []float64{-1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResult(tt.kind, tt.params, tt.stderr)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.ok, r.OK())
			if tt.ok {
				assert.Equal(t, tt.params, r.Values())
				assert.Equal(t, tt.stderr, r.Errors())
			} else {
				assert.ErrorIs(t, r.Err, ErrNonConvergence)
				assert.Nil(t, r.Values())
				assert.Nil(t, r.Errors())
			}
		})
	}
}

func TestFailedKeepsReason(t *testing.T) {
	t.Parallel()

	reason := errors.New("boom")
	r := Failed(Quadratic, reason)
	assert.False(t, r.OK())
	assert.Equal(t, Quadratic, r.Kind)
	assert.ErrorIs(t, r.Err, reason)
	assert.Equal(t, [3]float64{}, r.Params)
}
