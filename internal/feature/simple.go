package feature

import (
	"context"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// canonicalSize is the square resolution every face is normalized to.
const canonicalSize = 100

// SimpleBackend is the local pixel pipeline: grayscale, resize to a
// canonical square, histogram equalization, flatten. Identical pixels and
// configuration always produce a bit-identical vector; nothing in the
// pipeline is random or concurrent.
type SimpleBackend struct {
	minSize int
}

// NewSimpleBackend creates the local pipeline with the configured minimum
// face side in pixels.
func NewSimpleBackend(minSize int) *SimpleBackend {
	return &SimpleBackend{minSize: minSize}
}

func (b *SimpleBackend) Name() string {
	return "simple-v1"
}

func (b *SimpleBackend) Dim() int {
	return canonicalSize * canonicalSize
}

// Extract normalizes the face region into a flattened intensity vector.
func (b *SimpleBackend) Extract(_ context.Context, img image.Image, box image.Rectangle) ([]float32, error) {
	box, err := clampBox(img, box, b.minSize)
	if err != nil {
		return nil, err
	}

	gray := grayscaleCrop(img, box)
	resized := resizeGray(gray, canonicalSize, canonicalSize)
	equalizeGray(resized)

	vec := make([]float32, len(resized.Pix))
	for i, p := range resized.Pix {
		vec[i] = float32(p) / 255
	}
	return vec, nil
}

// luma computes the ITU-R BT.601 intensity from premultiplied 16-bit
// channel values.
func luma(r, g, b, _ uint32) uint8 {
	v := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
	if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

// grayscaleCrop copies the face region into a single-channel image.
func grayscaleCrop(img image.Image, box image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			dst.SetGray(x-box.Min.X, y-box.Min.Y, color.Gray{Y: luma(img.At(x, y).RGBA())})
		}
	}
	return dst
}

// resizeGray scales to the canonical resolution with bilinear sampling.
// The scaler runs in the calling goroutine only, keeping output stable.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// equalizeGray applies in-place histogram equalization to flatten the
// intensity distribution and reduce lighting sensitivity.
func equalizeGray(g *image.Gray) {
	var hist [256]int
	for _, p := range g.Pix {
		hist[p]++
	}

	total := len(g.Pix)
	var cdf [256]int
	running := 0
	for i, c := range hist {
		running += c
		cdf[i] = running
	}

	// First non-zero CDF value anchors the remap so the darkest present
	// intensity maps to 0.
	cdfMin := 0
	for _, c := range cdf {
		if c > 0 {
			cdfMin = c
			break
		}
	}
	if total == cdfMin {
		// Single intensity image, nothing to equalize.
		return
	}

	var lut [256]uint8
	for i := range lut {
		if cdf[i] == 0 {
			continue
		}
		v := float64(cdf[i]-cdfMin) / float64(total-cdfMin) * 255
		lut[i] = uint8(v + 0.5)
	}

	for i, p := range g.Pix {
		g.Pix[i] = lut[p]
	}
}
