// Package feedback turns up/down votes into stored per-query hit counts
// and online adapter training.
package feedback

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

// mergeSimilarityFloor: a vote merges into an existing feedback record
// when its query embedding is at least this close.
const mergeSimilarityFloor = 0.9

// SettingsProvider resolves collection settings.
type SettingsProvider interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
}

// Encoder is the embedding surface the service needs.
type Encoder interface {
	EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error)
	EncodeSparse(ctx context.Context, texts []string, model string) ([]models.SparseVector, error)
}

// DocStore persists feedback documents.
type DocStore interface {
	GetFeedbackDoc(ctx context.Context, id string) (*models.FeedbackDoc, error)
	ApplyFeedbackVote(ctx context.Context, doc *models.FeedbackDoc, chunkID, resourceID string, delta int) error
}

// Trainer trains a collection's adapter on an upvoted pair.
type Trainer interface {
	TrainWithFeedback(ctx context.Context, collectionID string, queryVec, chunkVec []float32) error
}

// Service processes feedback events.
type Service struct {
	settings SettingsProvider
	encoder  Encoder
	store    vectorstore.Store
	docs     DocStore
	trainer  Trainer
	logger   *logrus.Logger
}

// NewService wires the feedback service. trainer may be nil to disable
// adapter training.
func NewService(settings SettingsProvider, encoder Encoder, store vectorstore.Store, docs DocStore, trainer Trainer, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		settings: settings,
		encoder:  encoder,
		store:    store,
		docs:     docs,
		trainer:  trainer,
		logger:   logger,
	}
}

// Process handles one vote: resolve or create the feedback record nearest
// to the query, adjust the chunk's hit count, and on an upvote train the
// collection's adapter toward the chunk vector.
func (s *Service) Process(ctx context.Context, event models.FeedbackEvent) error {
	if event.Action != models.ActionUpvote && event.Action != models.ActionDownvote {
		return apperr.Validation("unknown feedback action %q", event.Action)
	}
	if event.Query == "" || event.ChunkID == "" || event.CollectionID == "" {
		return apperr.Validation("query, chunkId and collectionId are required")
	}
	ownerID := event.OwnerID
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}

	collection, err := s.settings.GetCollection(ctx, event.CollectionID)
	if err != nil {
		return err
	}
	if collection.Settings.DenseModel == "" {
		return apperr.Validation("collection %s has no dense model", event.CollectionID)
	}

	dense, err := s.encoder.EncodeDense(ctx, []string{event.Query}, collection.Settings.DenseModel)
	if err != nil {
		return apperr.Unavailable("embedding server", err)
	}
	queryVec := dense[0]

	var sparseVec *models.SparseVector
	if collection.Settings.SparseModel != "" {
		sparse, err := s.encoder.EncodeSparse(ctx, []string{event.Query}, collection.Settings.SparseModel)
		if err != nil {
			return apperr.Unavailable("embedding server", err)
		}
		sparseVec = &sparse[0]
	}

	feedbackID, err := s.resolveFeedbackID(ctx, event, ownerID, collection.Settings, queryVec, sparseVec)
	if err != nil {
		return err
	}

	delta := 1
	if event.Action == models.ActionDownvote {
		delta = -1
	}

	doc := &models.FeedbackDoc{
		ID:           feedbackID,
		Query:        event.Query,
		CollectionID: event.CollectionID,
		OwnerID:      ownerID,
	}
	if err := s.docs.ApplyFeedbackVote(ctx, doc, event.ChunkID, event.ResourceID, delta); err != nil {
		return err
	}

	if event.Action == models.ActionUpvote {
		s.trainAdapter(ctx, event, queryVec)
	}

	s.logger.WithFields(logrus.Fields{
		"collection": event.CollectionID,
		"feedback":   feedbackID,
		"chunk":      event.ChunkID,
		"action":     event.Action,
	}).Info("Feedback processed")
	return nil
}

// resolveFeedbackID finds the nearest existing feedback record for this
// owner. Close enough means reuse; otherwise a new content-addressed
// record is created and its query embedding indexed.
func (s *Service) resolveFeedbackID(ctx context.Context, event models.FeedbackEvent, ownerID string, settings models.CollectionSettings, queryVec []float32, sparseVec *models.SparseVector) (string, error) {
	feedbackCol := models.FeedbackCollection(event.CollectionID)

	schema := vectorstore.Schema{DenseDim: len(queryVec), HasSparse: sparseVec != nil}
	if err := s.store.EnsureCollection(ctx, feedbackCol, schema); err != nil {
		return "", apperr.Unavailable("vector store", err)
	}

	nearest, err := s.store.QueryDense(ctx, feedbackCol, queryVec, 1, &vectorstore.Filter{OwnerID: ownerID})
	if err != nil {
		return "", apperr.Unavailable("vector store", err)
	}
	if len(nearest) > 0 && nearest[0].Score > mergeSimilarityFloor {
		return nearest[0].ID, nil
	}

	feedbackID := models.FeedbackID(event.CollectionID, ownerID, event.Query)
	point := vectorstore.Point{
		ID:     feedbackID,
		Dense:  queryVec,
		Sparse: sparseVec,
		Payload: vectorstore.Payload{
			CollectionID: event.CollectionID,
			OwnerID:      ownerID,
			Content:      event.Query,
		},
	}
	if err := s.store.Upsert(ctx, feedbackCol, []vectorstore.Point{point}); err != nil {
		return "", apperr.Unavailable("vector store", err)
	}
	return feedbackID, nil
}

// trainAdapter pulls the upvoted chunk's dense vector and fits the
// adapter. Training errors are logged, never surfaced: a broken adapter
// must not fail feedback processing.
func (s *Service) trainAdapter(ctx context.Context, event models.FeedbackEvent, queryVec []float32) {
	if s.trainer == nil {
		return
	}

	points, err := s.store.Retrieve(ctx, event.CollectionID, []string{event.ChunkID}, true)
	if err != nil || len(points) == 0 || points[0].Dense == nil {
		s.logger.WithError(err).WithField("chunk", event.ChunkID).
			Warn("Could not load chunk vector for adapter training")
		return
	}

	if err := s.trainer.TrainWithFeedback(ctx, event.CollectionID, queryVec, points[0].Dense); err != nil {
		s.logger.WithError(err).WithField("collection", event.CollectionID).
			Warn("Adapter training failed")
	}
}
