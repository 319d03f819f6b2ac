package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// SaveAdapter persists a collection's adapter snapshot.
func (s *Store) SaveAdapter(ctx context.Context, record *models.AdapterRecord) error {
	_, err := s.db.Collection(colAdapters).ReplaceOne(ctx,
		bson.M{"_id": record.CollectionID}, record,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save adapter: %w", err)
	}
	return nil
}

// LoadAdapter returns a collection's adapter snapshot, or nil when none
// has been trained yet.
func (s *Store) LoadAdapter(ctx context.Context, collectionID string) (*models.AdapterRecord, error) {
	var record models.AdapterRecord
	err := s.db.Collection(colAdapters).FindOne(ctx, bson.M{"_id": collectionID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load adapter: %w", err)
	}
	return &record, nil
}

// DeleteAdapter removes a collection's adapter snapshot.
func (s *Store) DeleteAdapter(ctx context.Context, collectionID string) error {
	if _, err := s.db.Collection(colAdapters).DeleteOne(ctx, bson.M{"_id": collectionID}); err != nil {
		return fmt.Errorf("failed to delete adapter: %w", err)
	}
	return nil
}
