// Package dataio decodes channel images and simulation metadata from
// disk into in-memory tensors. The unmixing core never touches the
// filesystem; this package sits at that boundary. One file holds one
// channel (a spectral band of a mixed image, or one fluorophore's ground
// truth), stacked in path order along the leading axis.
package dataio

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"

	"unmix"

	_ "golang.org/x/image/tiff" // register TIFF decoding
)

// Metadata carries the per-image simulation metadata the solvers care
// about; notably the declared spatial downscale factor used to match
// ground truth against rendered images.
type Metadata struct {
	Downscale int `json:"downscale"`
}

// LoadMetadata reads a JSON metadata file.
func LoadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()
	var md Metadata
	if err := json.NewDecoder(f).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("dataio: decoding metadata %s: %w", path, err)
	}
	return md, nil
}

// LoadStack decodes one grayscale image per path (TIFF or PNG) and
// stacks them into a tensor of shape (len(paths), height, width). All
// images must share dimensions.
func LoadStack(paths []string) (*unmix.Tensor, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no channel files given", unmix.ErrDegenerateInput)
	}
	var out *unmix.Tensor
	var w, h int
	for c, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		if c == 0 {
			w, h = b.Dx(), b.Dy()
			out = unmix.NewTensor(len(paths), h, w)
		} else if b.Dx() != w || b.Dy() != h {
			return nil, fmt.Errorf("%w: channel %d (%s) is %dx%d, expected %dx%d",
				unmix.ErrShapeMismatch, c, path, b.Dx(), b.Dy(), w, h)
		}
		plane := out.Channel(c)
		for y := range h {
			for x := range w {
				// 16-bit aware: RGBA returns the full-depth gray value
				// replicated across channels.
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				plane.Data[y*w+x] = float64(r) / 65535.0
			}
		}
	}
	return out, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataio: decoding %s: %w", path, err)
	}
	return img, nil
}

// SaveImage writes img as PNG.
func SaveImage(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
