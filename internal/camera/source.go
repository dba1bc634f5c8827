// Package camera supplies frames to the continuous recognition loop.
// Sources produce frames at their own pace; the pump in between keeps
// only the newest frame so a slow recognizer never processes stale ones.
package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Frame is one captured image with its capture time.
type Frame struct {
	Image image.Image
	At    time.Time
}

// Source yields frames until exhausted or closed. Next returns io.EOF
// when no more frames will ever come.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// DirSource replays a directory of images in filename order. Useful for
// offline runs and tests; each file is one frame.
type DirSource struct {
	paths []string
	pos   int
}

// NewDirSource lists the directory's images up front so the replay order
// is fixed.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	return &DirSource{paths: paths}, nil
}

func (d *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if d.pos >= len(d.paths) {
		return Frame{}, io.EOF
	}
	path := d.paths[d.pos]
	d.pos++

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}
	return Frame{Image: img, At: time.Now()}, nil
}

func (d *DirSource) Close() error { return nil }

// HTTPSource polls a camera's snapshot endpoint at a fixed interval.
// Most IP cameras expose a single-image URL next to their video stream.
type HTTPSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	last     time.Time
}

// NewHTTPSource builds a poller for the given snapshot URL.
func NewHTTPSource(url string, interval time.Duration) *HTTPSource {
	return &HTTPSource{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPSource) Next(ctx context.Context) (Frame, error) {
	if wait := h.interval - time.Since(h.last); wait > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	h.last = time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to create snapshot request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return Frame{Image: img, At: time.Now()}, nil
}

func (h *HTTPSource) Close() error { return nil }
