package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationsRegisterAndLookup(t *testing.T) {
	a := NewActivations()
	require.NoError(t, a.Register("quad", func(x float64) float64 { return x * x }))
	fn, err := a.Lookup("quad")
	require.NoError(t, err)
	assert.Equal(t, 9.0, fn(3))

	_, err = NewActivations().Lookup("quad")
	assert.ErrorIs(t, err, ErrActivationNotFound, "sets are independent")
}

func TestActivationsRegisterValidation(t *testing.T) {
	a := NewActivations()
	assert.ErrorIs(t, a.Register("", func(x float64) float64 { return x }), ErrActivationInvalid)
	assert.ErrorIs(t, a.Register("nil", nil), ErrActivationInvalid)
	assert.ErrorIs(t, a.Register("sigmoid", Sigmoid), ErrActivationExists)
}

func TestActivationNamesSorted(t *testing.T) {
	a := NewActivations()
	require.NoError(t, a.Register("b0", func(x float64) float64 { return x }))
	require.NoError(t, a.Register("a0", func(x float64) float64 { return x }))

	names := a.Names()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "a0")
	assert.Contains(t, names, "sigmoid")
}

func TestDefaultActivations(t *testing.T) {
	_, err := GetActivation("missing")
	assert.ErrorIs(t, err, ErrActivationNotFound)
	assert.Contains(t, ListActivations(), "tanh")

	name := "test_cube"
	MustRegisterActivation(name, func(x float64) float64 { return x * x * x })
	fn, err := GetActivation(name)
	require.NoError(t, err)
	assert.Equal(t, 8.0, fn(2))
	assert.Panics(t, func() { MustRegisterActivation(name, Sigmoid) })
}

func TestBuiltinActivations(t *testing.T) {
	cases := map[string]struct{ in, want float64 }{
		"identity": {in: -2, want: -2},
		"relu":     {in: -2, want: 0},
		"tanh":     {in: 0.5, want: math.Tanh(0.5)},
		"sigmoid":  {in: 0, want: 0.5},
		"gauss":    {in: 0, want: 1},
		"sin":      {in: 0, want: 0},
		"abs":      {in: -3, want: 3},
		"clamped":  {in: 5, want: 1},
	}
	a := NewActivations()
	for name, tc := range cases {
		fn, err := a.Lookup(name)
		require.NoError(t, err, name)
		assert.InDelta(t, tc.want, fn(tc.in), 1e-12, name)
	}
	assert.Equal(t, -1.0, Sat(-4, 1, -1))
}
