// Package loader fetches resource content: raw text, web pages and
// YouTube transcripts. Fetched content is hashed so re-loads can detect
// unchanged sources.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures the loader.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 10 << 20,
	}
}

// Loader resolves a resource URL to text content.
type Loader struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewLoader creates a document loader.
func NewLoader(config *Config, logger *logrus.Logger) *Loader {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 10 << 20
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

var youtubePattern = regexp.MustCompile(`(?:youtube\.com/watch\?.*v=|youtu\.be/)([A-Za-z0-9_-]{11})`)

// Load fetches the content behind a URL. YouTube links resolve to the
// video transcript; everything else is fetched and stripped to text.
func (l *Loader) Load(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("url is required")
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	if m := youtubePattern.FindStringSubmatch(rawURL); m != nil {
		return l.loadYouTubeTranscript(ctx, m[1])
	}
	return l.loadPage(ctx, rawURL)
}

func (l *Loader) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "hippocampus/1.0")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
	spacePattern  = regexp.MustCompile(`[ \t]{2,}`)
)

// loadPage fetches an HTML page and reduces it to readable text.
func (l *Loader) loadPage(ctx context.Context, target string) (string, error) {
	body, err := l.fetch(ctx, target)
	if err != nil {
		return "", err
	}

	text := string(body)
	if strings.Contains(text, "<") {
		text = scriptPattern.ReplaceAllString(text, " ")
		text = tagPattern.ReplaceAllString(text, "\n")
	}
	text = html.UnescapeString(text)
	text = spacePattern.ReplaceAllString(text, " ")
	text = blankPattern.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("no readable content at %s", target)
	}

	l.logger.WithFields(logrus.Fields{"url": target, "bytes": len(text)}).Debug("Page loaded")
	return text, nil
}

// loadYouTubeTranscript pulls the caption track for a video via the
// timedtext endpoint.
func (l *Loader) loadYouTubeTranscript(ctx context.Context, videoID string) (string, error) {
	target := fmt.Sprintf("https://www.youtube.com/api/timedtext?v=%s&lang=en&fmt=json3", videoID)
	body, err := l.fetch(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("no transcript available for video %s", videoID)
	}

	var parsed struct {
		Events []struct {
			Segs []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse transcript: %w", err)
	}

	var sb strings.Builder
	for _, ev := range parsed.Events {
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
	}
	transcript := strings.TrimSpace(sb.String())
	if transcript == "" {
		return "", fmt.Errorf("empty transcript for video %s", videoID)
	}

	l.logger.WithField("video", videoID).Debug("Transcript loaded")
	return transcript, nil
}
