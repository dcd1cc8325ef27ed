package unmix

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Spectrum holds one endmember's raw emission spectrum as irregularly
// sampled (wavelength, intensity) pairs. It is consumed transiently by
// BuildReferenceMatrix and discarded afterwards.
type Spectrum struct {
	Name        string
	Wavelengths []float64 // nm
	Intensities []float64
}

// Clean returns a copy with non-finite samples dropped and negative
// intensities clamped to zero.
func (s Spectrum) Clean() Spectrum {
	out := Spectrum{Name: s.Name}
	for i, w := range s.Wavelengths {
		if i >= len(s.Intensities) {
			break
		}
		v := s.Intensities[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Wavelengths = append(out.Wavelengths, w)
		out.Intensities = append(out.Intensities, max(v, 0))
	}
	return out
}

// PeakWavelength returns the wavelength of the most intense sample, or
// NaN for an empty spectrum. Used to derive display colors downstream.
func (s Spectrum) PeakWavelength() float64 {
	if len(s.Wavelengths) == 0 {
		return math.NaN()
	}
	best, peak := math.Inf(-1), math.NaN()
	for i, v := range s.Intensities {
		if i >= len(s.Wavelengths) {
			break
		}
		if v > best {
			best, peak = v, s.Wavelengths[i]
		}
	}
	return peak
}

// BuildReferenceMatrix converts p raw spectra into the dense reference
// matrix E of shape (bins, p) shared by both solvers.
//
// binEdges is a strictly increasing sequence of wavelength boundaries
// shared by all endmembers; bin i covers the half-open interval
// [binEdges[i], binEdges[i+1]). Raw intensities are summed into their
// bin; bins that receive no sample stay at zero (silent zero fill, not
// interpolation). Each column is then independently min-max normalized
// to [0,1]. Column order follows the input spectra and is significant:
// it must match the endmember axis of every abundance map downstream.
//
// A spectrum whose binned vector is constant cannot be normalized and
// yields ErrDegenerateInput.
func BuildReferenceMatrix(spectra []Spectrum, binEdges []float64) (*mat.Dense, error) {
	if len(spectra) == 0 {
		return nil, fmt.Errorf("%w: no spectra given", ErrDegenerateInput)
	}
	if len(binEdges) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 bin edges, got %d", ErrDegenerateInput, len(binEdges))
	}
	for i := 1; i < len(binEdges); i++ {
		if !(binEdges[i] > binEdges[i-1]) {
			return nil, fmt.Errorf("%w: bin edges must be strictly increasing (edge %d: %g, edge %d: %g)",
				ErrDegenerateInput, i-1, binEdges[i-1], i, binEdges[i])
		}
	}

	bins := len(binEdges) - 1
	p := len(spectra)
	e := mat.NewDense(bins, p, nil)
	col := make([]float64, bins)

	for j, raw := range spectra {
		if len(raw.Wavelengths) != len(raw.Intensities) {
			return nil, fmt.Errorf("%w: endmember %d (%s) has %d wavelengths but %d intensities",
				ErrShapeMismatch, j, raw.Name, len(raw.Wavelengths), len(raw.Intensities))
		}
		s := raw.Clean()
		for i := range col {
			col[i] = 0
		}
		for k, w := range s.Wavelengths {
			b := searchBin(binEdges, w)
			if b < 0 || b >= bins {
				continue // outside the requested range
			}
			col[b] += s.Intensities[k]
		}

		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range col {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		if !(hi > lo) {
			return nil, fmt.Errorf("%w: endmember %d (%s) bins to a constant spectrum (value %g), cannot min-max normalize",
				ErrDegenerateInput, j, raw.Name, lo)
		}
		inv := 1.0 / (hi - lo)
		for i, v := range col {
			e.Set(i, j, (v-lo)*inv)
		}
	}
	return e, nil
}

// searchBin locates the half-open bin [edges[b], edges[b+1]) containing
// w, or an out-of-range index when w falls outside all bins.
func searchBin(edges []float64, w float64) int {
	i := sort.SearchFloat64s(edges, w)
	if i < len(edges) && edges[i] == w {
		return i
	}
	return i - 1
}
