package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RemoteConfig configures the custom chunking endpoint.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

// RemoteChunker posts content to a collection's custom chunking endpoint and
// returns its pieces verbatim.
type RemoteChunker struct {
	config     *RemoteConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRemoteChunker creates a chunker backed by a custom endpoint.
func NewRemoteChunker(config *RemoteConfig, logger *logrus.Logger) *RemoteChunker {
	if config == nil {
		config = &RemoteConfig{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RemoteChunker{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Split implements Chunker.
func (r *RemoteChunker) Split(ctx context.Context, text string) ([]Piece, error) {
	if r.config.URL == "" {
		return nil, fmt.Errorf("custom chunking url is not configured")
	}

	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunking request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chunking endpoint request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunking response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chunking endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Chunks []Piece `json:"chunks"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chunking response: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"url":    r.config.URL,
		"chunks": len(parsed.Chunks),
	}).Debug("Remote chunking completed")

	return parsed.Chunks, nil
}

// ProbeChunkingURL verifies a custom chunking endpoint answers its health
// probe. Called when a collection configures strategy=custom.
func ProbeChunkingURL(ctx context.Context, url string, timeout time.Duration) error {
	if url == "" {
		return fmt.Errorf("chunking url is required for custom strategy")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	healthURL := strings.TrimRight(url, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("invalid chunking url: %w", err)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chunking url health probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chunking url health probe returned %d", resp.StatusCode)
	}
	return nil
}
