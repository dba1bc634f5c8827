// Package feature turns a detected face region into a fixed-length feature
// vector. Two backends exist: SimpleBackend computes a deterministic local
// pixel pipeline, RemoteBackend delegates to an embedding server. The
// backend is probed and selected once at startup and injected everywhere;
// a gallery only ever holds vectors from a single backend.
package feature

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/amosdev/attendance/internal/config"
)

var (
	// ErrFaceTooSmall means the region's shorter side is below the
	// configured minimum. Recoverable, reported to the caller.
	ErrFaceTooSmall = errors.New("face region too small")

	// ErrPoorQuality means the region failed the registration quality
	// gate (too dark or too bright).
	ErrPoorQuality = errors.New("poor face image quality")
)

// Backend converts a face region into a comparable feature vector.
type Backend interface {
	// Name identifies the pipeline version. Cached vectors are only
	// valid for the backend name they were extracted with.
	Name() string
	// Dim is the fixed vector length this backend produces.
	Dim() int
	// Extract computes the feature vector for the face inside box.
	Extract(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error)
}

// Select picks the backend for this process. When an embedding server is
// configured and answers the health probe, the remote backend wins;
// otherwise the local pipeline is used. Chosen once, never per call.
func Select(ctx context.Context, cfg *config.Config) Backend {
	if cfg.Embedding.URL != "" {
		remote := NewRemoteBackend(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Face.MinFaceSize)
		if err := remote.Probe(ctx); err == nil {
			log.Printf("using remote feature backend at %s (dim %d)", cfg.Embedding.URL, cfg.Embedding.Dim)
			return remote
		} else {
			log.Printf("embedding server unavailable (%v), falling back to local pipeline", err)
		}
	}
	return NewSimpleBackend(cfg.Face.MinFaceSize)
}

// clampBox canonicalizes the region and validates it against the image and
// the minimum face size shared by both backends.
func clampBox(img image.Image, box image.Rectangle, minSize int) (image.Rectangle, error) {
	box = box.Canon().Intersect(img.Bounds())
	if box.Empty() {
		return image.Rectangle{}, fmt.Errorf("face region outside image bounds")
	}
	if min(box.Dx(), box.Dy()) < minSize {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d, minimum side %d",
			ErrFaceTooSmall, box.Dx(), box.Dy(), minSize)
	}
	return box, nil
}

// CheckQuality applies the registration quality gate: mean brightness of
// the face region must sit in a usable band. Recognition skips this check,
// only enrollment images are gated.
func CheckQuality(img image.Image, box image.Rectangle) error {
	box = box.Canon().Intersect(img.Bounds())
	if box.Empty() {
		return fmt.Errorf("face region outside image bounds")
	}
	mean := meanLuma(img, box)
	if mean < 50 {
		return fmt.Errorf("%w: image too dark (brightness %.1f)", ErrPoorQuality, mean)
	}
	if mean > 200 {
		return fmt.Errorf("%w: image too bright (brightness %.1f)", ErrPoorQuality, mean)
	}
	return nil
}

func meanLuma(img image.Image, box image.Rectangle) float64 {
	var sum float64
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			sum += float64(luma(img.At(x, y).RGBA()))
		}
	}
	return sum / float64(box.Dx()*box.Dy())
}
