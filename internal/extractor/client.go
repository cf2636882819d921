// Package extractor calls the external face-embedding service. The model
// behind it is opaque to this service: images go in, per-face vectors and
// bounding boxes come out.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/classlens/classlens/internal/embedding"
)

const defaultBaseURL = "http://localhost:8000"

// ErrExtractionFailed is returned when the embedding service rejects the
// image or is unreachable. The photo contributes nothing to the session; the
// teacher may retake it.
var ErrExtractionFailed = errors.New("embedding extraction failed")

// Face is one detection returned by the service.
type Face struct {
	Vector   []float32
	BBox     []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore float64
}

// Result is the full extraction output for one image.
type Result struct {
	Faces   []Face
	Version embedding.Version
}

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new extractor client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// extractResponse is the wire format of the embedding server.
type extractResponse struct {
	Model string `json:"model"`
	Dim   int    `json:"dim"`
	Faces []struct {
		Embedding []float32 `json:"embedding"`
		BBox      []float64 `json:"bbox"`
		DetScore  float64   `json:"det_score"`
	} `json:"faces"`
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrExtractionFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, string(body))
	}

	return body, nil
}

// ExtractFaces detects faces in the image and returns their embeddings.
// Zero detections is a valid result, not an error.
func (c *Client) ExtractFaces(ctx context.Context, imageData []byte) (*Result, error) {
	body, err := c.postMultipartImage(ctx, "/extract/faces", imageData)
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrExtractionFailed, err)
	}

	version, err := embedding.ParseVersion(resp.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	result := &Result{Version: version}
	for i, f := range resp.Faces {
		if err := embedding.CheckDim(version, f.Embedding); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		result.Faces = append(result.Faces, Face{
			Vector:   f.Embedding,
			BBox:     f.BBox,
			DetScore: f.DetScore,
		})
	}
	return result, nil
}
