package unmix

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Solver unmixes a mixed image against a shared reference matrix,
// producing a per-pixel abundance map of shape (endmembers, spatial...).
// The closed set of variants is LeastSquares (unconstrained) and FCLSU
// (nonnegative, sum-to-one); both decompose the image into N independent
// pixel-vector problems sharing the same reference matrix.
type Solver interface {
	Solve(img *Tensor, ref *mat.Dense) (*Tensor, error)
}

// Options configures the per-pixel solve loop shared by both variants.
type Options struct {
	// Workers is the number of goroutines splitting the pixel range.
	// Zero or negative selects GOMAXPROCS.
	Workers int
	// Progress, if non-nil, is called from worker goroutines with the
	// number of pixels finished so far and the total. It must be safe
	// for concurrent use. Progress is an observer only; it cannot
	// influence the solve.
	Progress func(done, total int)
}

// DefaultOptions returns the options used when the zero value is not
// wanted explicitly.
func DefaultOptions() Options {
	return Options{Workers: runtime.GOMAXPROCS(0)}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// validateSolveInputs checks the band-axis agreement between a mixed
// image and a reference matrix and returns (bands, endmembers).
func validateSolveInputs(img *Tensor, ref *mat.Dense) (bands, endmembers int, err error) {
	refRows, refCols := ref.Dims()
	if img.Channels() != refRows {
		return 0, 0, fmt.Errorf("%w: image has %d bands but reference matrix has %d rows",
			ErrShapeMismatch, img.Channels(), refRows)
	}
	return refRows, refCols, nil
}

// progressStride bounds how often workers publish progress.
const progressStride = 1024

// forEachPixel runs fn(i) for every pixel index in [0, total), split
// into contiguous chunks across workers. Every pixel is independent and
// each worker writes only to its own pixels' output slots, so no
// synchronization beyond the final join is needed. The first error
// cancels the remaining chunks and is returned.
func forEachPixel(opts Options, total int, fn func(i int) error) error {
	workers := min(opts.workers(), total)
	if workers <= 1 {
		for i := range total {
			if err := fn(i); err != nil {
				return err
			}
			if opts.Progress != nil && ((i+1)%progressStride == 0 || i+1 == total) {
				opts.Progress(i+1, total)
			}
		}
		return nil
	}

	var done atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	chunk := (total + workers - 1) / workers
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, total)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			reported := 0
			for i := lo; i < hi; i++ {
				if err := fn(i); err != nil {
					return err
				}
				if n := i - lo + 1; n%progressStride == 0 || i+1 == hi {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if opts.Progress != nil {
						opts.Progress(int(done.Add(int64(n-reported))), total)
						reported = n
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// abundanceShape builds the output shape (endmembers, spatial...).
func abundanceShape(endmembers int, img *Tensor) []int {
	return append([]int{endmembers}, img.SpatialShape()...)
}
