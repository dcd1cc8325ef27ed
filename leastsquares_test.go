package unmix_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"unmix"
)

// testRef is the 3-band, 2-endmember reference used across solver tests.
func testRef() *mat.Dense {
	return mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0.5, 0.5,
	})
}

// The image spans [0,1] so the required global min-max normalization is
// the identity and the result must match the closed-form solution
// (EᵀE)⁻¹Eᵀy computed by hand.
func TestLeastSquares_MatchesClosedForm(t *testing.T) {
	e := testRef()
	// two pixels: [1, 0, 0.5] and [0.3, 0.7, 0.5]
	img := unmix.NewTensorFrom([]float64{
		1, 0.3,
		0, 0.7,
		0.5, 0.5,
	}, 3, 1, 2)

	a, err := unmix.NewLeastSquares().Solve(img, e)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 2}, a.Shape)

	// closed form: pixel 0 -> [1, 0], pixel 1 -> [0.3, 0.7]
	assert.InDelta(t, 1.0, a.Data[0], 1e-10)
	assert.InDelta(t, 0.0, a.Data[2], 1e-10)
	assert.InDelta(t, 0.3, a.Data[1], 1e-10)
	assert.InDelta(t, 0.7, a.Data[3], 1e-10)
}

// The unconstrained fit is free to go negative and to ignore the
// sum-to-one constraint.
func TestLeastSquares_Unconstrained(t *testing.T) {
	e := testRef()
	// pixel outside the simplex cone spanned by the endmembers
	img := unmix.NewTensorFrom([]float64{
		1, 0,
		0, 0.2,
		0, 1,
	}, 3, 1, 2)

	a, err := unmix.NewLeastSquares().Solve(img, e)
	require.NoError(t, err)

	negative, offSimplex := false, false
	for i := range a.Pixels() {
		s := a.Data[i] + a.Data[a.Pixels()+i]
		if math.Abs(s-1) > 1e-6 {
			offSimplex = true
		}
		if a.Data[i] < 0 || a.Data[a.Pixels()+i] < 0 {
			negative = true
		}
	}
	assert.True(t, negative || offSimplex, "unconstrained fit should not accidentally enforce constraints here")
}

func TestLeastSquares_3D(t *testing.T) {
	e := testRef()
	// same two pixels as the 2-D test, laid out as a (1,1,2) volume
	img := unmix.NewTensorFrom([]float64{
		1, 0.3,
		0, 0.7,
		0.5, 0.5,
	}, 3, 1, 1, 2)

	a, err := unmix.NewLeastSquares().Solve(img, e)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 1, 2}, a.Shape)
	assert.InDelta(t, 1.0, a.Data[0], 1e-10)
	assert.InDelta(t, 0.7, a.Data[3], 1e-10)
}

func TestLeastSquares_ShapeMismatch(t *testing.T) {
	img := unmix.NewTensor(4, 2, 2) // 4 bands vs 3 reference rows
	_, err := unmix.NewLeastSquares().Solve(img, testRef())
	assert.ErrorIs(t, err, unmix.ErrShapeMismatch)
	assert.ErrorContains(t, err, "4 bands")
}

func TestLeastSquares_NonFinitePropagates(t *testing.T) {
	e := testRef()
	img := unmix.NewTensorFrom([]float64{
		1, math.NaN(),
		0, 0.7,
		0.5, 0.5,
	}, 3, 1, 2)

	a, err := unmix.NewLeastSquares().Solve(img, e)
	require.NoError(t, err, "non-finite input is the caller's problem, not a hard failure")
	assert.False(t, math.IsNaN(a.Data[0]), "clean pixel stays clean")
	assert.True(t, math.IsNaN(a.Data[1]), "NaN pixel yields NaN abundances")
}

func TestLeastSquares_ConstantImage(t *testing.T) {
	img := unmix.NewTensorFrom([]float64{1, 1, 1, 1, 1, 1}, 3, 1, 2)
	_, err := unmix.NewLeastSquares().Solve(img, testRef())
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput, "constant image cannot be min-max normalized")
}

func TestLeastSquares_ProgressObserver(t *testing.T) {
	e := testRef()
	img := unmix.NewTensor(3, 4, 4)
	for i := range img.Data {
		img.Data[i] = float64(i%7) / 6
	}

	ls := unmix.NewLeastSquares()
	ls.Opts.Workers = 1
	var last, total int
	ls.Opts.Progress = func(d, n int) { last, total = d, n }
	_, err := ls.Solve(img, e)
	require.NoError(t, err)
	assert.Equal(t, 16, total)
	assert.Equal(t, 16, last, "observer must see the final pixel count")
}
