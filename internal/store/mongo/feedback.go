package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// GetFeedbackDoc loads a feedback record by id; returns nil when absent.
func (s *Store) GetFeedbackDoc(ctx context.Context, id string) (*models.FeedbackDoc, error) {
	var doc models.FeedbackDoc
	err := s.db.Collection(colFeedback).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback doc: %w", err)
	}
	return &doc, nil
}

// ApplyFeedbackVote adjusts the hit count for a chunk within a feedback
// doc, creating the doc or the row as needed. Delta is +1 for an upvote,
// -1 for a downvote.
func (s *Store) ApplyFeedbackVote(ctx context.Context, doc *models.FeedbackDoc, chunkID, resourceID string, delta int) error {
	update := bson.M{
		"$set": bson.M{
			"query":        doc.Query,
			"collectionId": doc.CollectionID,
			"ownerId":      doc.OwnerID,
			"hits." + chunkID + ".resourceId": resourceID,
			"updatedAt":    time.Now().UTC(),
		},
		"$inc": bson.M{
			"hits." + chunkID + ".count": delta,
		},
	}

	_, err := s.db.Collection(colFeedback).UpdateOne(ctx, bson.M{"_id": doc.ID}, update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to apply feedback vote: %w", err)
	}
	return nil
}
