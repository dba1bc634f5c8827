// Package gallery maintains the persistent feature cache: every enrolled
// identity's enrollment images reduced to feature vectors, stamped with
// freshness tokens so stale entries can be rebuilt per identity instead
// of rebuilding the whole gallery.
package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"
)

// cacheVersion is bumped when the persisted layout changes.
const cacheVersion = 1

// FaceSample is one enrollment image reduced to a feature vector. Samples
// are immutable once written; re-registration appends new samples.
type FaceSample struct {
	Source     string    `json:"source"`      // enrollment image path
	Checksum   string    `json:"checksum"`    // SHA-256 of the image bytes
	ModTime    time.Time `json:"mtime"`       // source modification time
	CapturedAt time.Time `json:"captured_at"` // when the sample was extracted
	Vector     []float32 `json:"vector"`
}

// fresh reports whether the sample's freshness token still matches the
// current state of its source image.
func (s *FaceSample) fresh() bool {
	info, err := os.Stat(s.Source)
	if err != nil {
		return false
	}
	if !info.ModTime().Equal(s.ModTime) {
		return false
	}
	sum, err := fileChecksum(s.Source)
	if err != nil {
		return false
	}
	return sum == s.Checksum
}

// cacheFile is the persisted JSON layout. The header pins the backend
// name and vector dimension; a cache written by a different pipeline is
// treated as a full miss.
type cacheFile struct {
	Version    int                     `json:"version"`
	Backend    string                  `json:"backend"`
	Dim        int                     `json:"dim"`
	Identities map[string][]FaceSample `json:"identities"`
}

// Extractor produces a feature vector from an enrollment image file.
// Implemented by the recognizer wiring (decode, detect, extract); the
// cache itself never interprets pixels.
type Extractor interface {
	Name() string
	Dim() int
	ExtractFile(ctx context.Context, path string) ([]float32, error)
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
