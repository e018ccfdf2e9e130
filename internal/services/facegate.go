package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"anon-social-backend/internal/models"

	"github.com/go-resty/resty/v2"
)

// HTTPFaceDetector asks an external face detection service for face regions.
// The service accepts {"image": "<base64>"} and answers {"faces": [...]}.
type HTTPFaceDetector struct {
	client *resty.Client
	url    string
}

// NewHTTPFaceDetector creates a new face detection client
func NewHTTPFaceDetector(url string, timeout time.Duration) *HTTPFaceDetector {
	return &HTTPFaceDetector{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

type faceDetectionResponse struct {
	Faces []models.BoundingBox `json:"faces"`
}

// DetectFaces returns the faces found in image
func (d *HTTPFaceDetector) DetectFaces(ctx context.Context, image []byte) ([]models.BoundingBox, error) {
	var result faceDetectionResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"image": base64.StdEncoding.EncodeToString(image)}).
		SetResult(&result).
		Post(d.url)
	if err != nil {
		return nil, fmt.Errorf("face detection request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("face detection returned status %d", resp.StatusCode())
	}

	return result.Faces, nil
}
