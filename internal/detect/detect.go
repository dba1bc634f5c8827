// Package detect consumes the external face-bounding-box detector. The
// detector itself is an external pretrained service; this package only
// speaks its HTTP contract and offers stand-ins for environments without
// one.
package detect

import (
	"context"
	"errors"
	"image"
)

// ErrNoFace means the detector found zero faces. An empty detection is a
// valid outcome, callers surface it to the user without touching state.
var ErrNoFace = errors.New("no face detected")

// Detector returns the face regions present in an image. An empty slice
// with a nil error is valid: no face present.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, img image.Image) ([]image.Rectangle, error)

func (f Func) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return f(ctx, img)
}

// Whole treats the entire frame as a single face region. Used when no
// detector service is configured, which fits pre-cropped enrollment
// photos and kiosk cameras aimed at a single subject.
func Whole() Detector {
	return Func(func(_ context.Context, img image.Image) ([]image.Rectangle, error) {
		return []image.Rectangle{img.Bounds()}, nil
	})
}
