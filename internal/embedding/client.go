package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// Config configures the embedding client.
type Config struct {
	// BaseURL of the model server.
	BaseURL string
	// Timeout per HTTP request.
	Timeout time.Duration
	// MaxRetries bounds retry attempts per batch.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "http://localhost:8000",
		Timeout:      120 * time.Second,
		MaxRetries:   5,
		RetryBackoff: time.Second,
	}
}

// Client talks to the embedding model server. Inputs are length-bucketed
// into batches before dispatch; outputs are returned in input order.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new embedding client.
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// EncodeDense returns one dense vector per input text.
func (c *Client) EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	err := c.encodeBatched(ctx, "/embed", texts, model, func(batch []batchItem, body []byte) error {
		var resp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse embeddings: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(resp.Embeddings))
		}
		for i, it := range batch {
			out[it.index] = resp.Embeddings[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeSparse returns one sparse vector per input text.
func (c *Client) EncodeSparse(ctx context.Context, texts []string, model string) ([]models.SparseVector, error) {
	out := make([]models.SparseVector, len(texts))
	err := c.encodeBatched(ctx, "/sparse-embed", texts, model, func(batch []batchItem, body []byte) error {
		var resp struct {
			Embeddings []models.SparseVector `json:"embeddings"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse sparse embeddings: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(resp.Embeddings))
		}
		for i, it := range batch {
			out[it.index] = resp.Embeddings[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeLateInteraction returns one per-token matrix per input text.
func (c *Client) EncodeLateInteraction(ctx context.Context, texts []string, model string) ([][][]float32, error) {
	out := make([][][]float32, len(texts))
	err := c.encodeBatched(ctx, "/late-interaction-embed", texts, model, func(batch []batchItem, body []byte) error {
		var resp struct {
			Embeddings [][][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse late-interaction embeddings: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(resp.Embeddings))
		}
		for i, it := range batch {
			out[it.index] = resp.Embeddings[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// encodeBatched packs texts, posts each batch and hands the response body to
// collect. A batch that fails after all retries fails the whole call; the
// caller never sees partial embeddings.
func (c *Client) encodeBatched(ctx context.Context, path string, texts []string, model string, collect func([]batchItem, []byte) error) error {
	if len(texts) == 0 {
		return nil
	}

	// One routing key per encode call keeps its batches on the same warm
	// model-server worker.
	routingKey := model + ":" + uuid.New().String()

	batches := packBatches(texts)
	for _, batch := range batches {
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		body, err := c.postWithRetry(ctx, path, embedRequest{Texts: batchTexts, Model: model}, routingKey)
		if err != nil {
			return err
		}
		if err := collect(batch, body); err != nil {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"path":    path,
		"model":   model,
		"texts":   len(texts),
		"batches": len(batches),
	}).Debug("Encoded texts")

	return nil
}

func (c *Client) postWithRetry(ctx context.Context, path string, payload any, routingKey string) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		body, retryable, err := c.post(ctx, path, jsonBody, routingKey)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt,
		}).Warn("Embedding request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.config.RetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("embedding request failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}

// post returns the response body, whether a failure is retryable, and the
// error. 5xx responses and transport errors are retryable; 4xx are not.
func (c *Client) post(ctx context.Context, path string, body []byte, routingKey string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Routing-Key", routingKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("model server returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("model server rejected request with %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, false, nil
}
