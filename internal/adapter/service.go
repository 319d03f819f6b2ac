package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Service manages one adapter per collection: lazy loading from storage,
// an in-process instance cache, feedback training and query transforms.
//
// Adapter instances are not safe for concurrent train + transform; the
// feedback consumer's prefetch=1 policy serializes training per
// collection, and the service's lock covers the cache itself.
type Service struct {
	store  Store
	logger *logrus.Logger

	mu    sync.Mutex
	cache map[string]*LinearAdapter
}

// NewService creates an adapter service over a persistence backend.
func NewService(store Store, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		store:  store,
		logger: logger,
		cache:  make(map[string]*LinearAdapter),
	}
}

// get returns the cached adapter for a collection, loading it from storage
// on first use. Returns nil when none exists and dim <= 0.
func (s *Service) get(ctx context.Context, collectionID string, dim int) (*LinearAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.cache[collectionID]; ok {
		return a, nil
	}

	record, err := s.store.Load(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		a := FromRecord(record)
		s.cache[collectionID] = a
		return a, nil
	}
	if dim <= 0 {
		return nil, nil
	}

	// First use for this collection: identity adapter sized to the dense
	// embedding dimension.
	a := New(dim)
	s.cache[collectionID] = a
	return a, nil
}

// Transform applies a trained adapter to a query vector. When the
// collection has no trained adapter, the input is returned unchanged.
func (s *Service) Transform(ctx context.Context, collectionID string, query []float32) ([]float32, error) {
	a, err := s.get(ctx, collectionID, 0)
	if err != nil {
		return nil, err
	}
	if a == nil || a.TrainingCount() == 0 {
		return query, nil
	}
	return a.Transform(query)
}

// TrainWithFeedback trains the collection's adapter on one upvoted
// (query, chunk) pair and persists the updated snapshot.
func (s *Service) TrainWithFeedback(ctx context.Context, collectionID string, queryVec, chunkVec []float32) error {
	a, err := s.get(ctx, collectionID, len(queryVec))
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("no adapter available for collection %s", collectionID)
	}

	if err := a.Train([][]float32{queryVec}, [][]float32{chunkVec}); err != nil {
		return err
	}

	if err := s.store.Save(ctx, a.Record(collectionID)); err != nil {
		return fmt.Errorf("failed to persist adapter: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"collection":    collectionID,
		"trainingCount": a.TrainingCount(),
	}).Debug("Adapter trained")
	return nil
}

// ClearCache evicts a collection's adapter (or all of them when
// collectionID is empty). Eviction is manual by design.
func (s *Service) ClearCache(collectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collectionID == "" {
		s.cache = make(map[string]*LinearAdapter)
		return
	}
	delete(s.cache, collectionID)
}
