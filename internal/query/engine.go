// Package query implements the retrieval path: parallel query encoding,
// adapter transform, hybrid search, late-interaction rerank, feedback
// fusion and analytics emission.
package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

const (
	// DefaultTopK is the result count when the caller does not set one.
	DefaultTopK = 5
	// candidateLimit is how many candidates the first retrieval stage pulls.
	candidateLimit = 50
	// feedbackLookupLimit bounds how many prior queries feed fusion.
	feedbackLookupLimit = 5
	// feedbackSimilarityFloor is the minimum similarity for a prior query
	// to contribute feedback.
	feedbackSimilarityFloor = 0.85
)

// SettingsProvider resolves collection settings (cached in front of the
// document store).
type SettingsProvider interface {
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
}

// Encoder is the embedding surface the engine needs.
type Encoder interface {
	EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error)
	EncodeSparse(ctx context.Context, texts []string, model string) ([]models.SparseVector, error)
	EncodeLateInteraction(ctx context.Context, texts []string, model string) ([][][]float32, error)
}

// Transformer applies a collection's trained query adapter.
type Transformer interface {
	Transform(ctx context.Context, collectionID string, query []float32) ([]float32, error)
}

// FeedbackReader loads stored feedback docs during fusion.
type FeedbackReader interface {
	GetFeedbackDoc(ctx context.Context, id string) (*models.FeedbackDoc, error)
}

// Request is one search call.
type Request struct {
	Query        string
	CollectionID string
	OwnerID      string
	ResourceID   string
	TopK         int
	MinScore     float64
	UseFeedback  bool
	Analytics    bool
}

// Result is one ranked passage.
type Result struct {
	ID      string              `json:"id"`
	Score   float64             `json:"score"`
	Payload vectorstore.Payload `json:"payload"`
}

// Response is the ranked result list.
type Response struct {
	Results []Result `json:"result"`
}

// Engine executes searches against one vector store.
type Engine struct {
	settings       SettingsProvider
	encoder        Encoder
	store          vectorstore.Store
	transformer    Transformer
	feedback       FeedbackReader
	broker         messaging.Broker
	analyticsQueue string
	logger         *logrus.Logger
}

// NewEngine wires the query engine. transformer, feedback and broker are
// optional; missing pieces disable their feature.
func NewEngine(
	settings SettingsProvider,
	encoder Encoder,
	store vectorstore.Store,
	transformer Transformer,
	feedback FeedbackReader,
	broker messaging.Broker,
	analyticsQueue string,
	logger *logrus.Logger,
) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		settings:       settings,
		encoder:        encoder,
		store:          store,
		transformer:    transformer,
		feedback:       feedback,
		broker:         broker,
		analyticsQueue: analyticsQueue,
		logger:         logger,
	}
}

// queryVectors holds the concurrently computed query encodings.
type queryVectors struct {
	dense  []float32
	sparse *models.SparseVector
	rerank [][]float32
}

// Search runs the full retrieval path for one query.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	if req.Query == "" {
		return nil, apperr.Validation("query is required")
	}
	if req.CollectionID == "" {
		return nil, apperr.Validation("collectionId is required")
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}

	collection, err := e.settings.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	settings := collection.Settings

	vectors, err := e.encodeQuery(ctx, req.Query, settings)
	if err != nil {
		return nil, err
	}

	// Adapter transform on the dense vector; any failure falls back to
	// the untransformed query.
	searchVector := vectors.dense
	if e.transformer != nil {
		if transformed, terr := e.transformer.Transform(ctx, req.CollectionID, vectors.dense); terr == nil {
			searchVector = transformed
		} else {
			e.logger.WithError(terr).WithField("collection", req.CollectionID).
				Warn("Adapter transform failed, using raw query vector")
		}
	}

	filter := &vectorstore.Filter{OwnerID: ownerID, ResourceID: req.ResourceID}

	candidates, err := e.store.QueryHybrid(ctx, req.CollectionID, searchVector, vectors.sparse, candidateLimit, filter)
	if err != nil {
		return nil, apperr.Unavailable("vector store", err)
	}

	if settings.RerankerModel != "" && vectors.rerank != nil && len(candidates) > 0 {
		rerankLimit := req.TopK
		if req.UseFeedback {
			// Fusion can promote lower-ranked chunks; keep more around.
			rerankLimit = candidateLimit
		}
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		reranked, rerr := e.store.Rerank(ctx, req.CollectionID, vectors.rerank, ids, rerankLimit)
		if rerr != nil {
			e.logger.WithError(rerr).Warn("Rerank failed, keeping fused order")
		} else {
			candidates = reranked
		}
	}

	if req.UseFeedback && e.feedback != nil {
		candidates = e.fuseFeedback(ctx, req.CollectionID, ownerID, vectors, candidates)
	}

	if req.MinScore > 0 {
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.Score >= req.MinScore {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	if len(candidates) > req.TopK {
		candidates = candidates[:req.TopK]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.ID, Score: c.Score, Payload: c.Payload}
	}

	elapsed := time.Since(started)
	observeSearch(req.CollectionID, elapsed)

	if req.Analytics {
		e.emitAnalytics(req, ownerID, elapsed)
	}

	e.logger.WithFields(logrus.Fields{
		"collection": req.CollectionID,
		"owner":      ownerID,
		"results":    len(results),
		"elapsed_ms": elapsed.Milliseconds(),
	}).Debug("Search completed")

	return &Response{Results: results}, nil
}

// encodeQuery computes the dense, sparse and late-interaction encodings of
// the query concurrently. Dense is required; the others follow the
// collection's configured models.
func (e *Engine) encodeQuery(ctx context.Context, query string, settings models.CollectionSettings) (*queryVectors, error) {
	vectors := &queryVectors{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dense, err := e.encoder.EncodeDense(gctx, []string{query}, settings.DenseModel)
		if err != nil {
			return apperr.Unavailable("embedding server", err)
		}
		vectors.dense = dense[0]
		return nil
	})

	if settings.SparseModel != "" {
		g.Go(func() error {
			sparse, err := e.encoder.EncodeSparse(gctx, []string{query}, settings.SparseModel)
			if err != nil {
				return apperr.Unavailable("embedding server", err)
			}
			vectors.sparse = &sparse[0]
			return nil
		})
	}

	if settings.RerankerModel != "" {
		g.Go(func() error {
			matrices, err := e.encoder.EncodeLateInteraction(gctx, []string{query}, settings.RerankerModel)
			if err != nil {
				return apperr.Unavailable("embedding server", err)
			}
			vectors.rerank = matrices[0]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// fuseFeedback boosts candidates that accumulated upvotes under similar
// past queries: for each prior query with similarity above the floor, a
// recorded chunk present in the candidates gains ln(count) × similarity.
// Fusion failures degrade ranking but never fail the search.
func (e *Engine) fuseFeedback(ctx context.Context, collectionID, ownerID string, vectors *queryVectors, candidates []vectorstore.Scored) []vectorstore.Scored {
	if len(candidates) == 0 {
		return candidates
	}

	// The feedback index stores raw query embeddings, so the lookup uses
	// the untransformed vector.
	prior, err := e.store.QueryDense(ctx, models.FeedbackCollection(collectionID), vectors.dense,
		feedbackLookupLimit, &vectorstore.Filter{OwnerID: ownerID})
	if err != nil {
		e.logger.WithError(err).Debug("Feedback lookup failed, skipping fusion")
		return candidates
	}

	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.ID] = i
	}

	boosted := false
	for _, hit := range prior {
		if hit.Score <= feedbackSimilarityFloor {
			continue
		}
		doc, err := e.feedback.GetFeedbackDoc(ctx, hit.ID)
		if err != nil || doc == nil {
			continue
		}
		for chunkID, record := range doc.Hits {
			idx, ok := byID[chunkID]
			if !ok || record.Count <= 0 {
				continue
			}
			candidates[idx].Score += math.Log(float64(record.Count)) * hit.Score
			boosted = true
		}
	}

	if boosted {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
	}
	return candidates
}

// emitAnalytics publishes the search record asynchronously; failures are
// logged and never affect the response.
func (e *Engine) emitAnalytics(req Request, ownerID string, elapsed time.Duration) {
	if e.broker == nil || e.analyticsQueue == "" {
		return
	}

	event := models.AnalyticsEvent{
		ID:           uuid.New().String(),
		CollectionID: req.CollectionID,
		OwnerID:      ownerID,
		Query:        req.Query,
		ResponseMS:   elapsed.Milliseconds(),
		Timestamp:    time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.broker.Publish(ctx, e.analyticsQueue, event); err != nil {
			e.logger.WithError(err).Warn("Failed to publish analytics event")
		}
	}()
}
