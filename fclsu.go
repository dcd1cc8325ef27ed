package unmix

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// FCLSU is the fully constrained variant: each pixel solves the convex
// quadratic program
//
//	minimize (1/2) aᵀ(EᵀE)a − (Eᵀy)ᵀa
//	subject to a ≥ 0 (ANC), 1ᵀa = 1 (ASC)
//
// The equality constraint is folded into one heavily weighted extra row
// of an augmented design matrix [E; w·1ᵀ] built once and shared across
// all pixels; only the right-hand side changes per pixel. Each pixel
// then runs an active-set nonnegative least-squares solve
// (Lawson-Hanson). The feasible set and objective match the QP above;
// the ASC holds to within the residual divided by the row weight.
//
// Unlike LeastSquares, the mixed image is not renormalized before
// fitting: the constraints make the fit well posed on the raw scale.
//
// A pixel whose solve does not converge aborts the whole image; the
// returned error names the pixel. Failed pixels are never silently
// zero-filled.
//
// Reference: Heinz, Chang, Althouse. Fully Constrained Least-Squares
// Based Linear Unmixing. IEEE, 1999.
type FCLSU struct {
	Opts Options
	// ASCWeight scales the sum-to-one row of the augmented system.
	// Larger values tighten the ASC at some cost in conditioning.
	// Zero selects 1e4.
	ASCWeight float64
	// MaxIter caps least-squares subproblem solves per pixel.
	// Zero selects 30*(p+1).
	MaxIter int
	// DualTol is the optimality threshold on the dual vector.
	// Zero selects 1e-10.
	DualTol float64
}

// NewFCLSU returns the solver with default options.
func NewFCLSU() *FCLSU {
	return &FCLSU{Opts: DefaultOptions()}
}

// Solve unmixes img against ref under the ANC and ASC constraints and
// returns the abundance map of shape (endmembers, spatial...). Every
// output pixel column is elementwise >= 0 and sums to 1 within solver
// tolerance.
func (f *FCLSU) Solve(img *Tensor, ref *mat.Dense) (*Tensor, error) {
	bands, endmembers, err := validateSolveInputs(img, ref)
	if err != nil {
		return nil, err
	}
	ascWeight := f.ASCWeight
	if ascWeight <= 0 {
		ascWeight = 1e4
	}
	maxIter := f.MaxIter
	if maxIter <= 0 {
		maxIter = 30 * (endmembers + 1)
	}
	dualTol := f.DualTol
	if dualTol <= 0 {
		dualTol = 1e-10
	}

	// Augmented design matrix, shared read-only by all pixels.
	rows := bands + 1
	aug := mat.NewDense(rows, endmembers, nil)
	aug.Slice(0, bands, 0, endmembers).(*mat.Dense).Copy(ref)
	for j := range endmembers {
		aug.Set(bands, j, ascWeight)
	}

	out := NewTensor(abundanceShape(endmembers, img)...)
	total := img.Pixels()

	pool := sync.Pool{New: func() any { return newNNLSWorkspace(rows, endmembers) }}
	err = forEachPixel(f.Opts, total, func(i int) error {
		ws := pool.Get().(*nnlsWorkspace)
		defer pool.Put(ws)

		img.PixelVec(i, ws.b[:bands])
		for c, v := range ws.b[:bands] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value %g in band %d of pixel %d", ErrSolverDivergence, v, c, i)
			}
		}
		ws.b[bands] = ascWeight

		if err := ws.solve(aug, maxIter, dualTol); err != nil {
			return fmt.Errorf("pixel %d: %w", i, err)
		}
		out.SetPixelVec(i, ws.x)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nnlsWorkspace holds the per-worker scratch of the active-set solve so
// the per-pixel loop stays allocation free.
type nnlsWorkspace struct {
	m, n int

	b     []float64 // augmented RHS
	x     []float64 // current iterate, zero on the active set
	resid []float64
	z     []float64 // passive-set least-squares solution
	cols  []int     // passive column indices, ascending

	passive  []bool
	rejected []bool

	subBuf []float64 // m*n gather buffer for the passive submatrix
	qr     mat.QR
}

func newNNLSWorkspace(m, n int) *nnlsWorkspace {
	return &nnlsWorkspace{
		m:        m,
		n:        n,
		b:        make([]float64, m),
		x:        make([]float64, n),
		resid:    make([]float64, m),
		z:        make([]float64, n),
		cols:     make([]int, 0, n),
		passive:  make([]bool, n),
		rejected: make([]bool, n),
		subBuf:   make([]float64, m*n),
	}
}

// deactivation threshold for passive variables driven to zero.
const nnlsZeroTol = 1e-12

// solve runs Lawson-Hanson NNLS: minimize ||A·x - b|| subject to x >= 0.
// A is read-only and shared across pixels; b is ws.b. The result is left
// in ws.x. Lawson, Hanson: Solving Least Squares Problems, ch. 23.
func (ws *nnlsWorkspace) solve(a *mat.Dense, maxIter int, dualTol float64) error {
	araw := a.RawMatrix()
	m, n := ws.m, ws.n
	for j := range n {
		ws.x[j] = 0
		ws.passive[j] = false
	}

	iter := 0
	for {
		// Residual r = b - A·x; x is zero on the active set.
		cols := ws.cols0()
		for r := range m {
			acc := ws.b[r]
			row := araw.Data[r*araw.Stride : r*araw.Stride+n]
			for _, j := range cols {
				acc -= row[j] * ws.x[j]
			}
			ws.resid[r] = acc
		}

		// The dual w = Aᵀr is the negative gradient: a positive entry on
		// the active set marks a constraint worth releasing.
		for j := range n {
			ws.rejected[j] = false
		}
		for {
			best, bestW := -1, dualTol
			for j := range n {
				if ws.passive[j] || ws.rejected[j] {
					continue
				}
				acc := 0.0
				for r := range m {
					acc += araw.Data[r*araw.Stride+j] * ws.resid[r]
				}
				if acc > bestW {
					best, bestW = j, acc
				}
			}
			if best < 0 {
				return nil // Kuhn-Tucker conditions hold
			}
			if len(ws.cols0())+1 > m {
				// A passive set larger than the row count cannot be
				// independent; treat the candidate as dependent.
				ws.rejected[best] = true
				continue
			}
			ws.passive[best] = true
			iter++
			if iter > maxIter {
				return fmt.Errorf("%w: active-set iteration limit %d exceeded", ErrSolverDivergence, maxIter)
			}
			if err := ws.solvePassive(araw); err != nil {
				return err
			}
			zBest := ws.z[ws.passiveIndex(best)]
			if zBest > 0 && !math.IsNaN(zBest) {
				break
			}
			// Near linear dependence: releasing this constraint gives no
			// feasible descent. Put it back and try the next candidate.
			ws.passive[best] = false
			ws.rejected[best] = true
		}

		// Feasibility loop: step toward z, clamping variables that cross
		// zero back onto the active set.
		for {
			cols = ws.cols0()
			negative := false
			for q := range cols {
				if ws.z[q] <= 0 {
					negative = true
					break
				}
			}
			if !negative {
				for q, j := range cols {
					ws.x[j] = ws.z[q]
				}
				break
			}

			alpha := math.Inf(1)
			for q, j := range cols {
				if ws.z[q] > 0 {
					continue
				}
				if d := ws.x[j] - ws.z[q]; d > 0 {
					alpha = min(alpha, ws.x[j]/d)
				}
			}
			if math.IsInf(alpha, 1) {
				return fmt.Errorf("%w: no feasible step in active-set solve", ErrSolverDivergence)
			}
			for q, j := range cols {
				ws.x[j] += alpha * (ws.z[q] - ws.x[j])
				if ws.x[j] <= nnlsZeroTol {
					ws.x[j] = 0
					ws.passive[j] = false
				}
			}
			if len(ws.cols0()) == 0 {
				break
			}
			iter++
			if iter > maxIter {
				return fmt.Errorf("%w: active-set iteration limit %d exceeded", ErrSolverDivergence, maxIter)
			}
			if err := ws.solvePassive(araw); err != nil {
				return err
			}
		}
	}
}

// cols0 refreshes and returns the ascending passive column indices.
func (ws *nnlsWorkspace) cols0() []int {
	ws.cols = ws.cols[:0]
	for j := range ws.n {
		if ws.passive[j] {
			ws.cols = append(ws.cols, j)
		}
	}
	return ws.cols
}

// passiveIndex returns the position of column j within the passive set.
func (ws *nnlsWorkspace) passiveIndex(j int) int {
	for q, c := range ws.cols0() {
		if c == j {
			return q
		}
	}
	return -1
}

// solvePassive solves the unconstrained least-squares subproblem over
// the passive columns via QR, leaving the solution in ws.z[:k].
func (ws *nnlsWorkspace) solvePassive(araw blas64.General) error {
	cols := ws.cols0()
	k := len(cols)
	m := ws.m
	sub := mat.NewDense(m, k, ws.subBuf[:m*k])
	for r := range m {
		row := araw.Data[r*araw.Stride : r*araw.Stride+ws.n]
		dst := ws.subBuf[r*k : (r+1)*k]
		for q, j := range cols {
			dst[q] = row[j]
		}
	}
	ws.qr.Factorize(sub)
	zVec := mat.NewVecDense(k, ws.z[:k])
	err := ws.qr.SolveVecTo(zVec, false, mat.NewVecDense(m, ws.b))
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("%w: passive-set least squares failed: %v", ErrSolverDivergence, err)
		}
		// Ill-conditioned but solved; the caller's acceptance test and
		// the dual check decide whether the step is usable.
	}
	for q := range k {
		if math.IsNaN(ws.z[q]) || math.IsInf(ws.z[q], 0) {
			return fmt.Errorf("%w: singular passive set in least-squares subproblem", ErrSolverDivergence)
		}
	}
	return nil
}
