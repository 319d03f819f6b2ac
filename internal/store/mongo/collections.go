package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// CreateCollection inserts a new collection record.
func (s *Store) CreateCollection(ctx context.Context, c *models.Collection) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := s.db.Collection(colCollections).InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	return nil
}

// GetCollection loads a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.Collection(colCollections).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	return &c, nil
}

// UpdateCollectionSettings applies the mutable chunking fields and returns
// the updated record. The encoder models are immutable after creation.
func (s *Store) UpdateCollectionSettings(ctx context.Context, id string, settings models.CollectionSettings) (*models.Collection, error) {
	update := bson.M{
		"$set": bson.M{
			"settings.chunkSize":     settings.ChunkSize,
			"settings.chunkOverlap":  settings.ChunkOverlap,
			"settings.strategy":      settings.Strategy,
			"settings.chunkingUrl":   settings.ChunkingURL,
			"settings.keepDuplicate": settings.KeepDuplicate,
			"updatedAt":              time.Now().UTC(),
		},
	}

	result, err := s.db.Collection(colCollections).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	return s.GetCollection(ctx, id)
}
