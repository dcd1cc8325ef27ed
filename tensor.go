package unmix

import (
	"fmt"
	"math"
)

// Machine epsilon used to guard divisions, matching float64 ulp of 1.
const floatEps = 0x1p-52

// Tensor is a dense float64 array with a leading channel axis (spectral
// bands of a mixed image, or endmembers of an abundance map) followed by
// two or three spatial dimensions.
//
// The layout is channel-major and pixel-contiguous: element (c, i) lives
// at Data[c*N+i], where N is the product of the spatial dimensions and i
// enumerates spatial positions in row-major order. A channel is therefore
// a contiguous slice and a pixel vector a strided column, which keeps the
// per-pixel solver loops free of any dimensionality branching: 2-D and
// 3-D images flatten to the same (channels, N) view.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor allocates a zeroed tensor. It panics if any dimension is
// non-positive or fewer than two dimensions are given.
func NewTensor(shape ...int) *Tensor {
	n := checkShape(shape)
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, n),
	}
}

// NewTensorFrom wraps an existing slice without copying. It panics if the
// slice length does not match the shape.
func NewTensorFrom(data []float64, shape ...int) *Tensor {
	n := checkShape(shape)
	if len(data) != n {
		panic(fmt.Sprintf("unmix: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  data,
	}
}

func checkShape(shape []int) int {
	if len(shape) < 2 {
		panic(fmt.Sprintf("unmix: tensor needs at least 2 dims, got %v", shape))
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("unmix: non-positive dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// Channels returns the size of the leading axis.
func (t *Tensor) Channels() int { return t.Shape[0] }

// SpatialShape returns the trailing spatial dimensions.
func (t *Tensor) SpatialShape() []int { return t.Shape[1:] }

// Pixels returns the number of spatial positions N = prod(SpatialShape).
func (t *Tensor) Pixels() int {
	n := 1
	for _, d := range t.Shape[1:] {
		n *= d
	}
	return n
}

// EqualShape reports whether both tensors have identical shapes.
func (t *Tensor) EqualShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if o.Shape[i] != d {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  make([]float64, len(t.Data)),
	}
	copy(c.Data, t.Data)
	return c
}

// Channel returns a zero-copy view of channel c with the spatial shape.
// Mutating the view mutates the parent.
func (t *Tensor) Channel(c int) *Tensor {
	if c < 0 || c >= t.Shape[0] {
		panic(fmt.Sprintf("unmix: channel %d out of range [0,%d)", c, t.Shape[0]))
	}
	n := t.Pixels()
	shape := t.Shape[1:]
	if len(shape) < 2 {
		shape = []int{1, t.Shape[1]}
	}
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  t.Data[c*n : (c+1)*n],
	}
}

// PixelVec gathers the channel column of spatial position i into dst,
// which must have length Channels().
func (t *Tensor) PixelVec(i int, dst []float64) {
	n := t.Pixels()
	for c := range t.Shape[0] {
		dst[c] = t.Data[c*n+i]
	}
}

// SetPixelVec scatters src into the channel column of spatial position i.
func (t *Tensor) SetPixelVec(i int, src []float64) {
	n := t.Pixels()
	for c := range t.Shape[0] {
		t.Data[c*n+i] = src[c]
	}
}

// Min returns the smallest element, ignoring NaNs so that non-finite
// pixels propagate through normalization instead of poisoning it.
func (t *Tensor) Min() float64 {
	m := math.Inf(1)
	for _, v := range t.Data {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest element, ignoring NaNs.
func (t *Tensor) Max() float64 {
	m := math.Inf(-1)
	for _, v := range t.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// MinMaxNormalized returns a copy rescaled to [0,1] using the global min
// and max. A constant tensor cannot be rescaled and returns
// ErrDegenerateInput.
func (t *Tensor) MinMaxNormalized() (*Tensor, error) {
	lo, hi := t.Min(), t.Max()
	if !(hi > lo) {
		return nil, fmt.Errorf("%w: constant array (min == max == %g), min-max normalization undefined", ErrDegenerateInput, lo)
	}
	out := t.Clone()
	inv := 1.0 / (hi - lo)
	for i, v := range out.Data {
		out.Data[i] = (v - lo) * inv
	}
	return out, nil
}

// ChannelNormalized returns a copy with each channel independently
// min-max rescaled to [0,1]. Constant channels map to zero; the epsilon
// keeps the division defined.
func (t *Tensor) ChannelNormalized() *Tensor {
	out := t.Clone()
	n := t.Pixels()
	for c := range t.Shape[0] {
		ch := out.Data[c*n : (c+1)*n]
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range ch {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		inv := 1.0 / (hi - lo + floatEps)
		for i, v := range ch {
			ch[i] = (v - lo) * inv
		}
	}
	return out
}

// SumToOnePerPixel returns a copy where every pixel's channel column is
// divided by its own sum, so columns of strictly positive pixels sum to
// one.
func (t *Tensor) SumToOnePerPixel() *Tensor {
	out := t.Clone()
	n := t.Pixels()
	for i := range n {
		sum := 0.0
		for c := range t.Shape[0] {
			sum += out.Data[c*n+i]
		}
		inv := 1.0 / (sum + floatEps)
		for c := range t.Shape[0] {
			out.Data[c*n+i] *= inv
		}
	}
	return out
}

// CoarsenSum block-sums every spatial dimension by the given factor,
// leaving the channel axis untouched. Each spatial dimension must be an
// exact multiple of the factor.
func (t *Tensor) CoarsenSum(factor int) (*Tensor, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: coarsening factor must be positive, got %d", ErrDegenerateInput, factor)
	}
	for ax, d := range t.Shape[1:] {
		if d%factor != 0 {
			return nil, fmt.Errorf("%w: spatial dim %d (size %d) not divisible by coarsening factor %d", ErrShapeMismatch, ax+1, d, factor)
		}
	}
	outShape := append([]int(nil), t.Shape...)
	for i := 1; i < len(outShape); i++ {
		outShape[i] /= factor
	}
	out := NewTensor(outShape...)

	// Walk every source element once and accumulate into its block.
	srcSp := t.Shape[1:]
	dstSp := outShape[1:]
	nSrc := t.Pixels()
	nDst := out.Pixels()
	idx := make([]int, len(srcSp))
	for i := range nSrc {
		// Decompose i into spatial coordinates, then down-map.
		rem := i
		for ax := len(srcSp) - 1; ax >= 0; ax-- {
			idx[ax] = rem % srcSp[ax]
			rem /= srcSp[ax]
		}
		j := 0
		for ax := range dstSp {
			j = j*dstSp[ax] + idx[ax]/factor
		}
		for c := range t.Shape[0] {
			out.Data[c*nDst+j] += t.Data[c*nSrc+i]
		}
	}
	return out, nil
}

// MaxProject collapses the leading spatial axis of a (C, Z, Y, X) stack
// by maximum intensity, yielding a (C, Y, X) tensor.
func (t *Tensor) MaxProject() (*Tensor, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("%w: max projection needs a (C, Z, Y, X) tensor, got shape %v", ErrShapeMismatch, t.Shape)
	}
	cDim, zDim, yDim, xDim := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := NewTensor(cDim, yDim, xDim)
	plane := yDim * xDim
	for c := range cDim {
		src := t.Data[c*zDim*plane : (c+1)*zDim*plane]
		dst := out.Data[c*plane : (c+1)*plane]
		copy(dst, src[:plane])
		for z := 1; z < zDim; z++ {
			sl := src[z*plane : (z+1)*plane]
			for i, v := range sl {
				dst[i] = max(dst[i], v)
			}
		}
	}
	return out, nil
}
