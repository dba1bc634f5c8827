package feature

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RemoteBackend computes face embeddings through an embedding server. The
// face region is cropped locally and shipped as a lossless PNG so the
// request payload is a pure function of the input pixels.
type RemoteBackend struct {
	baseURL string
	dim     int
	minSize int
	client  *http.Client
}

// NewRemoteBackend creates a client for the embedding server.
func NewRemoteBackend(baseURL string, dim, minSize int) *RemoteBackend {
	return &RemoteBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		minSize: minSize,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *RemoteBackend) Name() string {
	return "remote-v1"
}

func (b *RemoteBackend) Dim() int {
	return b.dim
}

// Probe checks the server health endpoint. Called once at startup to
// decide whether this backend is usable.
func (b *RemoteBackend) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server health check failed (status %d)", resp.StatusCode)
	}
	return nil
}

// embeddingResponse is the wire format of the embedding server.
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Extract crops the face region and requests its embedding.
func (b *RemoteBackend) Extract(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error) {
	box, err := clampBox(img, box, b.minSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropRGBA(img, box)); err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}

	body, err := b.postMultipartImage(ctx, "/embed/image", buf.Bytes())
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if len(embResp.Embedding) != b.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(embResp.Embedding), b.dim)
	}
	return embResp.Embedding, nil
}

// postMultipartImage posts the image bytes as a multipart form.
func (b *RemoteBackend) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "face.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// cropRGBA copies the region into a standalone RGBA image.
func cropRGBA(img image.Image, box image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			dst.Set(x-box.Min.X, y-box.Min.Y, img.At(x, y))
		}
	}
	return dst
}
