package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// CreateEvalTestCase inserts a labelled retrieval example.
func (s *Store) CreateEvalTestCase(ctx context.Context, tc *models.EvalTestCase) error {
	tc.CreatedAt = time.Now().UTC()
	if _, err := s.db.Collection(colEvalCases).InsertOne(ctx, tc); err != nil {
		return fmt.Errorf("failed to insert eval test case: %w", err)
	}
	return nil
}

// ListEvalTestCases returns the test cases of a collection and owner.
func (s *Store) ListEvalTestCases(ctx context.Context, collectionID, ownerID string) ([]models.EvalTestCase, error) {
	filter := bson.M{"collectionId": collectionID, "ownerId": ownerID}
	cursor, err := s.db.Collection(colEvalCases).Find(ctx, filter,
		options.Find().SetSort(bson.M{"createdAt": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list eval test cases: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var cases []models.EvalTestCase
	if err := cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("failed to decode eval test cases: %w", err)
	}
	return cases, nil
}

// SaveEvalRun persists a completed evaluation run.
func (s *Store) SaveEvalRun(ctx context.Context, run *models.EvalRun) error {
	if _, err := s.db.Collection(colEvalRuns).InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to insert eval run: %w", err)
	}
	return nil
}

// InsertAnalyticsEvent records one served search.
func (s *Store) InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	if _, err := s.db.Collection(colAnalytics).InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}
