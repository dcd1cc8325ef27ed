package unmix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LeastSquares is the unconstrained variant: each pixel's abundance
// vector is the plain least-squares fit of the pixel against the
// reference matrix. Entries may be negative and need not sum to one.
//
// The mixed image is min-max normalized to [0,1] over the whole image
// before fitting; this is a required preprocessing step of this variant.
type LeastSquares struct {
	Opts Options
	// RCond is the cutoff for small singular values relative to the
	// largest one. Zero selects max(L,p)*eps, the usual machine-epsilon
	// based choice.
	RCond float64
}

// NewLeastSquares returns the solver with default options.
func NewLeastSquares() *LeastSquares {
	return &LeastSquares{Opts: DefaultOptions()}
}

// Solve fits every pixel of img against ref and returns the abundance
// map of shape (endmembers, spatial...). The solve goes through a
// pseudo-inverse built once from a thin SVD of the reference matrix, so
// the per-pixel work is a single matrix-vector product; explicit normal
// equations are never formed. Non-finite image values propagate into the
// fitted result rather than failing the call.
func (ls *LeastSquares) Solve(img *Tensor, ref *mat.Dense) (*Tensor, error) {
	bands, endmembers, err := validateSolveInputs(img, ref)
	if err != nil {
		return nil, err
	}
	norm, err := img.MinMaxNormalized()
	if err != nil {
		return nil, err
	}

	pinv, err := pseudoInverse(ref, ls.RCond)
	if err != nil {
		return nil, err
	}
	raw := pinv.RawMatrix()

	out := NewTensor(abundanceShape(endmembers, img)...)
	total := img.Pixels()
	err = forEachPixel(ls.Opts, total, func(i int) error {
		// Per-pixel product a = pinv * y, written straight into the
		// output column. Small enough to keep as a scalar loop.
		for r := range endmembers {
			row := raw.Data[r*raw.Stride : r*raw.Stride+bands]
			acc := 0.0
			for c, v := range row {
				acc += v * norm.Data[c*total+i]
			}
			out.Data[r*total+i] = acc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse of a through a
// thin SVD, zeroing singular values below rcond*s[0].
func pseudoInverse(a *mat.Dense, rcond float64) (*mat.Dense, error) {
	rows, cols := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD of %dx%d reference matrix did not converge", ErrSolverDivergence, rows, cols)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	if rcond <= 0 {
		rcond = float64(max(rows, cols)) * floatEps
	}
	cut := rcond * s[0]
	vs := mat.NewDense(cols, len(s), nil)
	for j, sv := range s {
		if sv <= cut {
			continue // rank-deficient direction, dropped
		}
		inv := 1.0 / sv
		for i := range cols {
			vs.Set(i, j, v.At(i, j)*inv)
		}
	}
	pinv := mat.NewDense(cols, rows, nil)
	pinv.Mul(vs, u.T())
	return pinv, nil
}
