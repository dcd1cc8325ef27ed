package unmix

import "errors"

var (
	// ErrShapeMismatch indicates a band-count or spatial-shape
	// disagreement between inputs.
	ErrShapeMismatch = errors.New("unmix: input shapes disagree")
	// ErrDegenerateInput indicates input the numerics cannot act on,
	// such as a constant spectrum during normalization.
	ErrDegenerateInput = errors.New("unmix: degenerate input")
	// ErrSolverDivergence indicates a per-pixel solve failed to produce
	// a finite, converged result.
	ErrSolverDivergence = errors.New("unmix: solver failed to converge")
	// ErrLookupFailure indicates an unknown endmember identifier at the
	// spectrum provider.
	ErrLookupFailure = errors.New("unmix: unknown endmember")
)
