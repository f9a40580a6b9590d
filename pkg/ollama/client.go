package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/plastic-detector/pkg/types"
)

// DefaultModel is the vision model asked to locate plastic items
const DefaultModel = "qwen2.5vl:7b"

// DefaultURL is the local Ollama server
const DefaultURL = "http://localhost:11434"

type Client struct {
	client *api.Client
	model  string
	log    logrus.FieldLogger
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string, logger logrus.FieldLogger) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	// Drop any path such as /api/chat, the SDK appends its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
		log:    logger.WithField("backend", "ollama"),
	}, nil
}

// Model returns the model name used for detection
func (c *Client) Model() string {
	return c.model
}

// Query sends the prompt and image and returns the model's JSON answer
func (c *Client) Query(ctx context.Context, prompt string, image types.Blob) (string, error) {
	// Vision models on CPU are slow, but a request must end eventually
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(image.Data)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0.1},
	}

	start := time.Now()
	var responseContent strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if strings.TrimSpace(responseContent.String()) == "" {
		return "", fmt.Errorf("empty response from ollama")
	}

	c.log.WithFields(logrus.Fields{
		"model":    c.model,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Chat completed")
	return responseContent.String(), nil
}

// CheckHealth reports whether the server is up and the model pulled
func (c *Client) CheckHealth(ctx context.Context) *types.HealthStatus {
	if err := c.client.Heartbeat(ctx); err != nil {
		c.log.WithError(err).Warn("Ollama heartbeat failed")
		return nil
	}

	status := &types.HealthStatus{Status: "model not loaded", ModelPath: c.model}

	models, err := c.client.List(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Ollama model listing failed")
		return status
	}

	for _, m := range models.Models {
		if m.Name == c.model || m.Model == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			status.ModelLoaded = true
			status.Status = "healthy"
			break
		}
	}
	return status
}
