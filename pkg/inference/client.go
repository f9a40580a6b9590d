// Package inference talks to the plastic detection REST backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/types"
)

const (
	// DefaultBaseURL is where the backend listens when run locally
	DefaultBaseURL = "http://localhost:8000"

	PredictPath = "/predict"
	HealthPath  = "/health"

	// UploadField and UploadFilename name the multipart part carrying the image
	UploadField    = "file"
	UploadFilename = "plastic.jpg"
)

// Client is a REST client for the detection backend
type Client struct {
	http *resty.Client
	log  logrus.FieldLogger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds every request. Zero keeps the transport default of no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithLogger routes client logging through logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = logger
		c.http.SetLogger(logger)
	}
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Accept", "application/json"),
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Detect uploads the image and returns the decoded prediction
func (c *Client) Detect(ctx context.Context, image types.Blob) (*types.PredictResponse, error) {
	mime := image.MIME
	if mime == "" {
		mime = "image/jpeg"
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(UploadField, UploadFilename, mime, bytes.NewReader(image.Data)).
		Post(PredictPath)
	if err != nil {
		c.log.WithError(err).Error("Error detecting plastic")
		return nil, fmt.Errorf("inference: predict request failed: %w", err)
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: errorDetail(resp.Body())}
		entry := c.log.WithFields(logrus.Fields{"status": apiErr.StatusCode, "detail": apiErr.Message})
		if apiErr.IsBadRequest() {
			entry.Warn("Backend rejected the upload")
		} else {
			entry.Error("Error detecting plastic")
		}
		return nil, apiErr
	}

	var result types.PredictResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	c.log.WithFields(logrus.Fields{
		"success":    result.Success,
		"detections": len(result.Detections),
		"bytes":      image.Size(),
	}).Debug("Prediction received")

	return &result, nil
}

// CheckHealth probes the backend; any failure yields nil
func (c *Client) CheckHealth(ctx context.Context) *types.HealthStatus {
	resp, err := c.http.R().SetContext(ctx).Get(HealthPath)
	if err != nil {
		c.log.WithError(err).Warn("Backend health check failed")
		return nil
	}
	if resp.IsError() {
		c.log.WithField("status", resp.StatusCode()).Warn("Backend health check failed")
		return nil
	}

	var status types.HealthStatus
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		c.log.WithError(err).Warn("Backend health check returned an unreadable body")
		return nil
	}
	return &status
}

// errorDetail extracts the FastAPI style {"detail": ...} message when present
func errorDetail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
