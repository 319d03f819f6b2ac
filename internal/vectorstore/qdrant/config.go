package qdrant

import (
	"fmt"
	"strings"
	"time"
)

// Config configures the Qdrant client.
type Config struct {
	// URL of the Qdrant HTTP endpoint, e.g. http://localhost:6333.
	URL string
	// APIKey sent as the api-key header when set.
	APIKey string
	// Timeout per HTTP request.
	Timeout time.Duration
	// HNSWEf is the ef parameter applied to dense queries.
	HNSWEf int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
		HNSWEf:  128,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}
