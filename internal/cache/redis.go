// Package cache provides the short-TTL Redis cache used for collection
// settings and review feedback links.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Config configures the Redis client.
type Config struct {
	Addr            string
	Password        string
	DB              int
	SettingsTTL     time.Duration
	FeedbackLinkTTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "localhost:6379",
		SettingsTTL:     5 * time.Minute,
		FeedbackLinkTTL: 24 * time.Hour,
	}
}

// RedisCache wraps a Redis client with JSON value handling.
type RedisCache struct {
	client *redis.Client
	config *Config
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(config *Config) *RedisCache {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SettingsTTL <= 0 {
		config.SettingsTTL = 5 * time.Minute
	}
	if config.FeedbackLinkTTL <= 0 {
		config.FeedbackLinkTTL = 24 * time.Hour
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisCache{client: rdb, config: config}
}

func (r *RedisCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *RedisCache) get(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func settingsKey(collectionID string) string {
	return "col:settings:" + collectionID
}

// GetCollection returns a cached collection, or ErrCacheMiss.
func (r *RedisCache) GetCollection(ctx context.Context, collectionID string) (*models.Collection, error) {
	var c models.Collection
	if err := r.get(ctx, settingsKey(collectionID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCollection caches a collection's settings under the short TTL.
func (r *RedisCache) SetCollection(ctx context.Context, c *models.Collection) error {
	return r.set(ctx, settingsKey(c.ID), c, r.config.SettingsTTL)
}

// InvalidateCollection drops a collection from the cache; called on every
// settings update.
func (r *RedisCache) InvalidateCollection(ctx context.Context, collectionID string) error {
	return r.client.Del(ctx, settingsKey(collectionID)).Err()
}

// FeedbackLink is the vote context stored behind an opaque review link.
type FeedbackLink struct {
	Query        string `json:"query"`
	CollectionID string `json:"collectionId"`
	ChunkID      string `json:"chunkId"`
	ResourceID   string `json:"resourceId"`
	OwnerID      string `json:"ownerId"`
}

func feedbackLinkKey(referenceID string) string {
	return "fb:link:" + referenceID
}

// SetFeedbackLink stores a review link's vote context for 24 hours.
func (r *RedisCache) SetFeedbackLink(ctx context.Context, referenceID string, link *FeedbackLink) error {
	return r.set(ctx, feedbackLinkKey(referenceID), link, r.config.FeedbackLinkTTL)
}

// GetFeedbackLink resolves a review link; ErrCacheMiss after expiry.
func (r *RedisCache) GetFeedbackLink(ctx context.Context, referenceID string) (*FeedbackLink, error) {
	var link FeedbackLink
	if err := r.get(ctx, feedbackLinkKey(referenceID), &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Ping verifies connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
