package unmix_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unmix"
)

func TestSpectrum_Clean(t *testing.T) {
	s := unmix.Spectrum{
		Name:        "dirty",
		Wavelengths: []float64{400, math.NaN(), 500, 550},
		Intensities: []float64{1, 2, math.Inf(1), -3},
	}
	clean := s.Clean()
	assert.Equal(t, []float64{400, 550}, clean.Wavelengths, "non-finite samples dropped")
	assert.Equal(t, []float64{1, 0}, clean.Intensities, "negative intensity clamped to zero")
}

func TestSpectrum_PeakWavelength(t *testing.T) {
	s := unmix.Spectrum{
		Wavelengths: []float64{500, 510, 520},
		Intensities: []float64{0.2, 0.9, 0.4},
	}
	assert.Equal(t, 510.0, s.PeakWavelength())
	assert.True(t, math.IsNaN(unmix.Spectrum{}.PeakWavelength()))
}

// Samples at 400 and 450 land in bin [400,500), samples at 500 and 550
// in bin [500,600); each bin sums its samples and the column is then
// min-max normalized.
func TestBuildReferenceMatrix_Binning(t *testing.T) {
	s := unmix.Spectrum{
		Name:        "fp",
		Wavelengths: []float64{400, 450, 500, 550},
		Intensities: []float64{1, 2, 3, 4},
	}
	e, err := unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{400, 500, 600})
	require.NoError(t, err)

	rows, cols := e.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, cols)
	// bin sums 3 and 7, min-max normalized to 0 and 1
	assert.InDelta(t, 0.0, e.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, e.At(1, 0), 1e-12)
}

func TestBuildReferenceMatrix_HalfOpenBins(t *testing.T) {
	// A sample exactly on the last edge is outside every bin.
	s := unmix.Spectrum{
		Name:        "edge",
		Wavelengths: []float64{400, 499.999, 600},
		Intensities: []float64{1, 2, 100},
	}
	e, err := unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{400, 500, 600})
	require.NoError(t, err)
	// bins sum to 3 and 0: normalized to 1 and 0
	assert.InDelta(t, 1.0, e.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, e.At(1, 0), 1e-12)
}

func TestBuildReferenceMatrix_ColumnOrder(t *testing.T) {
	a := unmix.Spectrum{Name: "a", Wavelengths: []float64{410, 510}, Intensities: []float64{5, 1}}
	b := unmix.Spectrum{Name: "b", Wavelengths: []float64{410, 510}, Intensities: []float64{1, 5}}
	e, err := unmix.BuildReferenceMatrix([]unmix.Spectrum{a, b}, []float64{400, 500, 600})
	require.NoError(t, err)

	// column 0 is endmember "a": bright in the first bin
	assert.Equal(t, 1.0, e.At(0, 0))
	assert.Equal(t, 0.0, e.At(1, 0))
	// column 1 is endmember "b": bright in the second bin
	assert.Equal(t, 0.0, e.At(0, 1))
	assert.Equal(t, 1.0, e.At(1, 1))
}

func TestBuildReferenceMatrix_ConstantSpectrum(t *testing.T) {
	s := unmix.Spectrum{
		Name:        "flat",
		Wavelengths: []float64{410, 510},
		Intensities: []float64{2, 2},
	}
	_, err := unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{400, 500, 600})
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput)
	assert.ErrorContains(t, err, "flat", "error must name the endmember")
}

func TestBuildReferenceMatrix_BadEdges(t *testing.T) {
	s := unmix.Spectrum{Wavelengths: []float64{410}, Intensities: []float64{1}}

	_, err := unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{500, 400})
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput, "decreasing edges must error")

	_, err = unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{400, 400, 500})
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput, "duplicate edges must error")

	_, err = unmix.BuildReferenceMatrix([]unmix.Spectrum{s}, []float64{400})
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput, "a single edge defines no bin")

	_, err = unmix.BuildReferenceMatrix(nil, []float64{400, 500})
	assert.ErrorIs(t, err, unmix.ErrDegenerateInput, "no spectra")
}
