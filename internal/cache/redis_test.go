package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCache(&Config{
		Addr:            mr.Addr(),
		SettingsTTL:     time.Minute,
		FeedbackLinkTTL: 24 * time.Hour,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleCollection() *models.Collection {
	return &models.Collection{
		ID:   "col1",
		Name: "docs",
		Settings: models.CollectionSettings{
			DenseModel: "BAAI/bge-small-en-v1.5",
			ChunkSize:  500,
		},
	}
}

func TestCollectionCache(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	t.Run("miss before set", func(t *testing.T) {
		_, err := c.GetCollection(ctx, "col1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, c.SetCollection(ctx, sampleCollection()))

		got, err := c.GetCollection(ctx, "col1")
		require.NoError(t, err)
		assert.Equal(t, "docs", got.Name)
		assert.Equal(t, 500, got.Settings.ChunkSize)
	})

	t.Run("invalidate deletes the key", func(t *testing.T) {
		require.NoError(t, c.InvalidateCollection(ctx, "col1"))
		_, err := c.GetCollection(ctx, "col1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		require.NoError(t, c.SetCollection(ctx, sampleCollection()))
		mr.FastForward(2 * time.Minute)
		_, err := c.GetCollection(ctx, "col1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestFeedbackLinkCache(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	link := &FeedbackLink{
		Query:        "feline sound",
		CollectionID: "col1",
		ChunkID:      "chunk-1",
		ResourceID:   "res1",
		OwnerID:      "public",
	}
	require.NoError(t, c.SetFeedbackLink(ctx, "ref-1", link))

	got, err := c.GetFeedbackLink(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "chunk-1", got.ChunkID)

	t.Run("expires after 24h", func(t *testing.T) {
		mr.FastForward(25 * time.Hour)
		_, err := c.GetFeedbackLink(ctx, "ref-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestCachedSettings(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	source := &stubSource{collections: map[string]*models.Collection{
		"col1": sampleCollection(),
	}}
	settings := NewCachedSettings(c, source, nil)

	t.Run("first read hits the source and fills the cache", func(t *testing.T) {
		got, err := settings.GetCollection(ctx, "col1")
		require.NoError(t, err)
		assert.Equal(t, "docs", got.Name)
		assert.Equal(t, 1, source.reads)

		_, err = settings.GetCollection(ctx, "col1")
		require.NoError(t, err)
		assert.Equal(t, 1, source.reads)
	})

	t.Run("invalidate forces a source re-read", func(t *testing.T) {
		settings.Invalidate(ctx, "col1")
		_, err := settings.GetCollection(ctx, "col1")
		require.NoError(t, err)
		assert.Equal(t, 2, source.reads)
	})

	t.Run("missing collection propagates not found", func(t *testing.T) {
		_, err := settings.GetCollection(ctx, "ghost")
		assert.True(t, apperr.IsNotFound(err))
	})
}

type stubSource struct {
	collections map[string]*models.Collection
	reads       int
}

func (s *stubSource) GetCollection(_ context.Context, id string) (*models.Collection, error) {
	s.reads++
	c, ok := s.collections[id]
	if !ok {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	return c, nil
}
