package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// CreateResource inserts a new resource record.
func (s *Store) CreateResource(ctx context.Context, r *models.Resource) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.RefreshedAt = now

	if _, err := s.db.Collection(colResources).InsertOne(ctx, r); err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// GetResource loads a resource by id. Soft-deleted resources are reported
// as not found.
func (s *Store) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	var r models.Resource
	err := s.db.Collection(colResources).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource: %w", err)
	}
	if r.IsDeleted {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	return &r, nil
}

// ListResources returns all live resources of a collection, optionally
// filtered by owner. Content is stripped unless withContent is set.
func (s *Store) ListResources(ctx context.Context, collectionID, ownerID string, withContent bool) ([]models.Resource, error) {
	filter := bson.M{"collectionId": collectionID, "isDeleted": bson.M{"$ne": true}}
	if ownerID != "" {
		filter["ownerId"] = ownerID
	}

	opts := options.Find().SetSort(bson.M{"createdAt": -1})
	if !withContent {
		opts.SetProjection(bson.M{"content": 0})
	}

	cursor, err := s.db.Collection(colResources).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var resources []models.Resource
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	return resources, nil
}

// UpdateResource applies a partial update and returns the updated record.
func (s *Store) UpdateResource(ctx context.Context, id string, set bson.M) (*models.Resource, error) {
	set["updatedAt"] = time.Now().UTC()
	result, err := s.db.Collection(colResources).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	return s.GetResource(ctx, id)
}

// SetResourceStatus records the pipeline status of a resource. Unlike
// UpdateResource it never fails on a missing record; status writes are
// best-effort from the workers.
func (s *Store) SetResourceStatus(ctx context.Context, id string, status models.ResourceStatus, message string) error {
	set := bson.M{
		"status":    status,
		"updatedAt": time.Now().UTC(),
	}
	if message != "" {
		set["statusMessage"] = message
	} else {
		set["statusMessage"] = ""
	}
	_, err := s.db.Collection(colResources).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to set resource status: %w", err)
	}
	return nil
}

// SetResourceContent overwrites a resource's content and hash and stamps
// refreshedAt.
func (s *Store) SetResourceContent(ctx context.Context, id, content, hash string) error {
	now := time.Now().UTC()
	_, err := s.db.Collection(colResources).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"content":     content,
		"contentHash": hash,
		"refreshedAt": now,
		"updatedAt":   now,
	}})
	if err != nil {
		return fmt.Errorf("failed to set resource content: %w", err)
	}
	return nil
}

// SoftDeleteResource marks a resource deleted and returns its last state.
func (s *Store) SoftDeleteResource(ctx context.Context, id string) (*models.Resource, error) {
	r, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.Collection(colResources).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"isDeleted": true,
		"status":    models.StatusDeleted,
		"updatedAt": now,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to soft delete resource: %w", err)
	}
	r.IsDeleted = true
	r.Status = models.StatusDeleted
	return r, nil
}

// ListRefreshableResources returns live URL-backed resources whose content
// has not been refreshed since the cutoff; the sync job re-loads them.
func (s *Store) ListRefreshableResources(ctx context.Context, refreshedBefore time.Time) ([]models.Resource, error) {
	filter := bson.M{
		"url":         bson.M{"$ne": ""},
		"isDeleted":   bson.M{"$ne": true},
		"refreshedAt": bson.M{"$lt": refreshedBefore},
	}

	cursor, err := s.db.Collection(colResources).Find(ctx, filter,
		options.Find().SetProjection(bson.M{"content": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to list refreshable resources: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var resources []models.Resource
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode refreshable resources: %w", err)
	}
	return resources, nil
}

// UpsertChunks writes chunk records keyed by their content-addressed id.
func (s *Store) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, len(chunks))
	for i, c := range chunks {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": c.ID}).
			SetReplacement(c).
			SetUpsert(true)
	}

	if _, err := s.db.Collection(colChunks).BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// ListChunks returns the stored chunks of a resource.
func (s *Store) ListChunks(ctx context.Context, resourceID string) ([]models.Chunk, error) {
	cursor, err := s.db.Collection(colChunks).Find(ctx, bson.M{"resourceId": resourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunks removes all chunk records of a resource.
func (s *Store) DeleteChunks(ctx context.Context, resourceID string) error {
	if _, err := s.db.Collection(colChunks).DeleteMany(ctx, bson.M{"resourceId": resourceID}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
