package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client calls a face-detector service over HTTP. The frame is posted as
// a PNG multipart form to /detect; the response lists pixel bounding
// boxes with detection scores.
type Client struct {
	baseURL  string
	minScore float64
	client   *http.Client
}

// NewClient creates a detector client. Detections scoring below minScore
// are discarded client-side.
func NewClient(baseURL string, minScore float64) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		minScore: minScore,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// detection is a single face in the service response. BBox is
// [x1, y1, x2, y2] in pixel coordinates.
type detection struct {
	BBox  []float64 `json:"bbox"`
	Score float64   `json:"score"`
}

type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []detection `json:"faces"`
}

// Detect posts the image and returns the detected face rectangles.
// Zero faces is a valid, non-error outcome.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var payload bytes.Buffer
	if err := png.Encode(&payload, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "frame.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(payload.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, string(body))
	}

	var detResp detectResponse
	if err := json.Unmarshal(body, &detResp); err != nil {
		return nil, fmt.Errorf("failed to parse detector response: %w", err)
	}

	boxes := make([]image.Rectangle, 0, len(detResp.Faces))
	for _, d := range detResp.Faces {
		if len(d.BBox) != 4 || d.Score < c.minScore {
			continue
		}
		boxes = append(boxes, image.Rect(
			int(d.BBox[0]), int(d.BBox[1]),
			int(d.BBox[2]), int(d.BBox[3]),
		))
	}
	return boxes, nil
}
