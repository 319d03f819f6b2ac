package cache

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// CollectionSource is the backing store behind the settings cache.
type CollectionSource interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
}

// CachedSettings fronts the document store with the short-TTL Redis cache.
// Invalidation is by key delete on update; the TTL bounds staleness
// everywhere else.
type CachedSettings struct {
	cache  *RedisCache
	source CollectionSource
	logger *logrus.Logger
}

// NewCachedSettings wires the settings read path.
func NewCachedSettings(cache *RedisCache, source CollectionSource, logger *logrus.Logger) *CachedSettings {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedSettings{cache: cache, source: source, logger: logger}
}

// GetCollection returns the cached collection, falling back to the source
// and repopulating the cache. Cache failures degrade to source reads.
func (s *CachedSettings) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	if c, err := s.cache.GetCollection(ctx, id); err == nil {
		return c, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.WithError(err).Debug("Settings cache read failed")
	}

	c, err := s.source.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetCollection(ctx, c); err != nil {
		s.logger.WithError(err).Debug("Settings cache write failed")
	}
	return c, nil
}

// Invalidate drops a collection from the cache after an update.
func (s *CachedSettings) Invalidate(ctx context.Context, id string) {
	if err := s.cache.InvalidateCollection(ctx, id); err != nil {
		s.logger.WithError(err).Warn("Settings cache invalidation failed")
	}
}
