package llamacpp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/codec"
	"github.com/menta2k/plastic-detector/pkg/types"
)

// DefaultURL is where llama-server listens by default
const DefaultURL = "http://localhost:8080"

const (
	chatPath   = "/v1/chat/completions"
	healthPath = "/health"
)

type Client struct {
	http  *resty.Client
	model string
	log   logrus.FieldLogger
}

// OpenAI-compatible message format
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a client for a llama.cpp server with a multimodal projector loaded
func NewClient(serverURL, model string, logger logrus.FieldLogger) *Client {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("backend", "llamacpp")

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(serverURL, "/")).
			SetTimeout(5 * time.Minute).
			SetLogger(log),
		model: model,
		log:   log,
	}
}

// Query sends the prompt with the image inlined as a data URL
func (c *Client) Query(ctx context.Context, prompt string, image types.Blob) (string, error) {
	mime := image.MIME
	if mime == "" {
		mime = "image/jpeg"
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &ImageURL{
						URL: codec.EncodeDataURL(mime, image.Data),
					}},
				},
			},
		},
		Temperature: 0.1,
		MaxTokens:   2048,
		Stream:      false,
	}

	var out ChatCompletionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(chatPath)
	if err != nil {
		return "", fmt.Errorf("llamacpp: request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llamacpp: server returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llamacpp: no choices in response")
	}

	text := messageText(out.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("llamacpp: no text content in response")
	}

	c.log.WithField("duration", resp.Time().Round(time.Millisecond)).Debug("Chat completed")
	return text, nil
}

// messageText extracts text from string or content-part answers
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

// CheckHealth maps llama-server's /health: 200 is ready, 503 is still loading
func (c *Client) CheckHealth(ctx context.Context) *types.HealthStatus {
	resp, err := c.http.R().SetContext(ctx).Get(healthPath)
	if err != nil {
		c.log.WithError(err).Warn("llama.cpp health check failed")
		return nil
	}

	var body struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(resp.Body(), &body)

	switch resp.StatusCode() {
	case http.StatusOK:
		return &types.HealthStatus{Status: "healthy", ModelLoaded: true, ModelPath: c.model}
	case http.StatusServiceUnavailable:
		status := body.Status
		if status == "" {
			status = "loading model"
		}
		return &types.HealthStatus{Status: status, ModelPath: c.model}
	default:
		c.log.WithField("status", resp.StatusCode()).Warn("llama.cpp health check failed")
		return nil
	}
}
