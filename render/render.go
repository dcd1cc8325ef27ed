// Package render turns abundance maps into displayable images: one
// grayscale map per endmember, tinted translucent layers, or an additive
// false-color composite. It consumes plain tensors; 3-D maps should be
// max-projected first (Tensor.MaxProject).
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"unmix"
)

func check2D(a *unmix.Tensor) (p, h, w int, err error) {
	if len(a.Shape) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: rendering needs a (endmembers, Y, X) map, got shape %v (max-project 3-D stacks first)",
			unmix.ErrShapeMismatch, a.Shape)
	}
	return a.Shape[0], a.Shape[1], a.Shape[2], nil
}

func clampByte(v float64) uint8 {
	return uint8(max(0, min(255, v*255)))
}

// GrayLayers renders each endmember's abundance channel as a grayscale
// image, clamped to [0,1].
func GrayLayers(a *unmix.Tensor) ([]*image.Gray, error) {
	p, h, w, err := check2D(a)
	if err != nil {
		return nil, err
	}
	out := make([]*image.Gray, p)
	for ch := range p {
		layer := image.NewGray(image.Rect(0, 0, w, h))
		plane := a.Channel(ch)
		for y := range h {
			for x := range w {
				layer.SetGray(x, y, color.Gray{Y: clampByte(plane.Data[y*w+x])})
			}
		}
		out[ch] = layer
	}
	return out, nil
}

// RGBALayers renders each endmember as a layer tinted with its palette
// color, abundance mapped to alpha.
func RGBALayers(a *unmix.Tensor, palette []colorful.Color) ([]*image.NRGBA, error) {
	p, h, w, err := check2D(a)
	if err != nil {
		return nil, err
	}
	if len(palette) != p {
		return nil, fmt.Errorf("%w: %d endmembers but %d palette colors", unmix.ErrShapeMismatch, p, len(palette))
	}
	out := make([]*image.NRGBA, p)
	for ch := range p {
		layer := image.NewNRGBA(image.Rect(0, 0, w, h))
		cr := clampByte(palette[ch].R)
		cg := clampByte(palette[ch].G)
		cb := clampByte(palette[ch].B)
		plane := a.Channel(ch)
		for y := range h {
			for x := range w {
				layer.SetNRGBA(x, y, color.NRGBA{R: cr, G: cg, B: cb, A: clampByte(plane.Data[y*w+x])})
			}
		}
		out[ch] = layer
	}
	return out, nil
}

// Composite blends all endmember channels additively, the way emitted
// fluorescence mixes: out = sum(abundance * color), clamped.
func Composite(a *unmix.Tensor, palette []colorful.Color) (*image.RGBA, error) {
	p, h, w, err := check2D(a)
	if err != nil {
		return nil, err
	}
	if len(palette) != p {
		return nil, fmt.Errorf("%w: %d endmembers but %d palette colors", unmix.ErrShapeMismatch, p, len(palette))
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	n := h * w
	for y := range h {
		for x := range w {
			var r, g, b float64
			for ch := range p {
				v := a.Data[ch*n+y*w+x]
				if v < 0 {
					v = 0
				}
				r += v * palette[ch].R
				g += v * palette[ch].G
				b += v * palette[ch].B
			}
			out.SetRGBA(x, y, color.RGBA{clampByte(r), clampByte(g), clampByte(b), 255})
		}
	}
	return out, nil
}

// WavelengthPalette maps emission-peak wavelengths (nm) to approximate
// display colors, so endmember layers are tinted by where they emit.
// Peaks outside the visible range fall back to a neutral gray.
func WavelengthPalette(peaksNM []float64) []colorful.Color {
	out := make([]colorful.Color, len(peaksNM))
	for i, w := range peaksNM {
		out[i] = wavelengthColor(w).Clamped()
	}
	return out
}

// wavelengthColor is the usual piecewise-linear visible-spectrum
// approximation (Bruton), with intensity rolloff at both ends.
func wavelengthColor(w float64) colorful.Color {
	var r, g, b float64
	switch {
	case w >= 380 && w < 440:
		r, b = -(w-440)/60, 1
	case w >= 440 && w < 490:
		g, b = (w-440)/50, 1
	case w >= 490 && w < 510:
		g, b = 1, -(w-510)/20
	case w >= 510 && w < 580:
		r, g = (w-510)/70, 1
	case w >= 580 && w < 645:
		r, g = 1, -(w-645)/65
	case w >= 645 && w <= 780:
		r = 1
	default:
		return colorful.Color{R: 0.5, G: 0.5, B: 0.5}
	}
	fade := 1.0
	if w < 420 {
		fade = 0.3 + 0.7*(w-380)/40
	} else if w > 700 {
		fade = 0.3 + 0.7*(780-w)/80
	}
	return colorful.Color{R: r * fade, G: g * fade, B: b * fade}
}
