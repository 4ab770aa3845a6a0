package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoMatch signals that the face service found no enrolled student in
// the image.
var ErrNoMatch = errors.New("no matching face found")

// FaceMatch is a resolved face identity with its detection confidence on
// a 0-100 scale.
type FaceMatch struct {
	StudentID  string  `json:"student_id"`
	Confidence float64 `json:"confidence"`
}

// FaceResolver resolves an image to a student identity. A real
// recognition pipeline plugs in behind this without changing the
// marking layer.
type FaceResolver interface {
	Resolve(ctx context.Context, imageURL string) (FaceMatch, error)
	Health(ctx context.Context) error
}

// FaceClient calls the face recognition microservice over HTTP.
type FaceClient struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// NewFaceClient creates a client. Skip disables outbound calls for
// environments without a face service.
func NewFaceClient(baseURL string, skip bool) *FaceClient {
	return &FaceClient{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Resolve submits an image URL for 1:N gallery search and returns the
// best match above the service's own floor. Similarity arrives on a 0-1
// scale and is reported here as 0-100.
func (c *FaceClient) Resolve(ctx context.Context, imageURL string) (FaceMatch, error) {
	if c.Skip {
		return FaceMatch{}, fmt.Errorf("face service disabled")
	}
	if imageURL == "" {
		return FaceMatch{}, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return FaceMatch{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return FaceMatch{}, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return FaceMatch{}, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Matches []struct {
			UserID     string  `json:"user_id"`
			Similarity float64 `json:"similarity"`
		} `json:"matches"`
		FacesDetected int `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FaceMatch{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Matches) == 0 {
		return FaceMatch{}, ErrNoMatch
	}

	best := out.Matches[0]
	for _, m := range out.Matches[1:] {
		if m.Similarity > best.Similarity {
			best = m
		}
	}
	return FaceMatch{StudentID: best.UserID, Confidence: best.Similarity * 100}, nil
}

// Health verifies the face service is reachable.
func (c *FaceClient) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
