package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore/memory"
)

// fixed test vocabulary: queries and chunks embed onto axes so similarity
// is controllable.
var testVectors = map[string][]float32{
	"feline sound":     {1, 0, 0},
	"Cats purr.":       {0.95, 0.05, 0},
	"Dogs bark.":       {0, 1, 0},
	"Birds chirp.":     {0, 0, 1},
	"canine noise":     {0, 1, 0},
	"unrelated filler": {0.5, 0.5, 0.7},
}

type stubEncoder struct {
	sparse bool
	rerank bool
}

func (s *stubEncoder) EncodeDense(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := testVectors[t]
		if !ok {
			v = []float32{0.1, 0.1, 0.1}
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEncoder) EncodeSparse(_ context.Context, texts []string, _ string) ([]models.SparseVector, error) {
	out := make([]models.SparseVector, len(texts))
	for i, t := range texts {
		out[i] = models.SparseVector{Indices: []uint32{uint32(len(t) % 7)}, Values: []float32{1}}
	}
	return out, nil
}

func (s *stubEncoder) EncodeLateInteraction(_ context.Context, texts []string, _ string) ([][][]float32, error) {
	out := make([][][]float32, len(texts))
	for i, t := range texts {
		v := testVectors[t]
		if v == nil {
			v = []float32{0.1, 0.1, 0.1}
		}
		out[i] = [][]float32{v}
	}
	return out, nil
}

type stubSettings struct {
	collections map[string]*models.Collection
}

func (s *stubSettings) GetCollection(_ context.Context, id string) (*models.Collection, error) {
	c, ok := s.collections[id]
	if !ok {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	return c, nil
}

type stubFeedback struct {
	docs map[string]*models.FeedbackDoc
}

func (s *stubFeedback) GetFeedbackDoc(_ context.Context, id string) (*models.FeedbackDoc, error) {
	return s.docs[id], nil
}

type identityTransformer struct{}

func (identityTransformer) Transform(_ context.Context, _ string, q []float32) ([]float32, error) {
	return q, nil
}

func seedStore(t *testing.T, store *memory.Store, collectionID string, texts []string) {
	t.Helper()
	enc := &stubEncoder{}
	for _, text := range texts {
		dense, err := enc.EncodeDense(context.Background(), []string{text}, "")
		require.NoError(t, err)
		matrix, err := enc.EncodeLateInteraction(context.Background(), []string{text}, "")
		require.NoError(t, err)
		id := models.ChunkPointID(collectionID, "public", text, "")
		require.NoError(t, store.Upsert(context.Background(), collectionID, []vectorstore.Point{{
			ID:      id,
			Dense:   dense[0],
			Rerank:  matrix[0],
			Payload: vectorstore.Payload{
				ResourceID:   "res1",
				CollectionID: collectionID,
				OwnerID:      "public",
				Content:      text,
			},
		}}))
	}
}

func newTestEngine(t *testing.T, settings models.CollectionSettings, feedback FeedbackReader) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	provider := &stubSettings{collections: map[string]*models.Collection{
		"col1": {ID: "col1", Name: "test", Settings: settings},
	}}
	engine := NewEngine(provider, &stubEncoder{}, store, identityTransformer{}, feedback, nil, "", nil)
	return engine, store
}

func TestSearchValidation(t *testing.T) {
	engine, _ := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, nil)

	_, err := engine.Search(context.Background(), Request{CollectionID: "col1"})
	assert.Equal(t, "validation", apperr.Code(err))

	_, err = engine.Search(context.Background(), Request{Query: "q"})
	assert.Equal(t, "validation", apperr.Code(err))

	_, err = engine.Search(context.Background(), Request{Query: "q", CollectionID: "missing"})
	assert.Equal(t, "not_found", apperr.Code(err))
}

func TestSearchRanksBySimilarity(t *testing.T) {
	engine, store := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, nil)
	seedStore(t, store, "col1", []string{"Cats purr.", "Dogs bark.", "Birds chirp."})

	resp, err := engine.Search(context.Background(), Request{
		Query:        "feline sound",
		CollectionID: "col1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Cats purr.", resp.Results[0].Payload.Content)
}

func TestSearchOwnershipIsolation(t *testing.T) {
	engine, store := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, nil)
	seedStore(t, store, "col1", []string{"Cats purr."})

	// A tenant-owned point that would otherwise match perfectly.
	require.NoError(t, store.Upsert(context.Background(), "col1", []vectorstore.Point{{
		ID:      "tenant-point",
		Dense:   []float32{1, 0, 0},
		Payload: vectorstore.Payload{OwnerID: "tenant-b", Content: "private cats"},
	}}))

	resp, err := engine.Search(context.Background(), Request{
		Query:        "feline sound",
		CollectionID: "col1",
		OwnerID:      "public",
	})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, "tenant-b", r.Payload.OwnerID)
	}
}

func TestSearchTopK(t *testing.T) {
	engine, store := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, nil)
	seedStore(t, store, "col1", []string{"Cats purr.", "Dogs bark.", "Birds chirp.", "unrelated filler"})

	resp, err := engine.Search(context.Background(), Request{
		Query:        "feline sound",
		CollectionID: "col1",
		TopK:         2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearchWithReranker(t *testing.T) {
	engine, store := newTestEngine(t, models.CollectionSettings{
		DenseModel:    "m",
		RerankerModel: "r",
	}, nil)
	seedStore(t, store, "col1", []string{"Cats purr.", "Dogs bark.", "Birds chirp."})

	resp, err := engine.Search(context.Background(), Request{
		Query:        "feline sound",
		CollectionID: "col1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "Cats purr.", resp.Results[0].Payload.Content)
}

func TestFeedbackFusionPromotesUpvotedChunk(t *testing.T) {
	// Gold chunk starts behind the better dense match; three upvotes
	// under the same query wording must put it on top.
	goldID := models.ChunkPointID("col1", "public", "Dogs bark.", "")
	feedbackID := models.FeedbackID("col1", "public", "feline sound")

	feedback := &stubFeedback{docs: map[string]*models.FeedbackDoc{
		feedbackID: {
			ID:           feedbackID,
			Query:        "feline sound",
			CollectionID: "col1",
			OwnerID:      "public",
			Hits: map[string]models.FeedbackHit{
				goldID: {ResourceID: "res1", Count: 3},
			},
		},
	}}

	engine, store := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, feedback)
	seedStore(t, store, "col1", []string{"Cats purr.", "Dogs bark."})

	// Feedback index holds the prior query's embedding.
	require.NoError(t, store.Upsert(context.Background(), models.FeedbackCollection("col1"), []vectorstore.Point{{
		ID:      feedbackID,
		Dense:   testVectors["feline sound"],
		Payload: vectorstore.Payload{OwnerID: "public"},
	}}))

	t.Run("without feedback the gold chunk trails", func(t *testing.T) {
		resp, err := engine.Search(context.Background(), Request{
			Query: "feline sound", CollectionID: "col1",
		})
		require.NoError(t, err)
		assert.NotEqual(t, goldID, resp.Results[0].ID)
	})

	t.Run("with feedback the gold chunk leads", func(t *testing.T) {
		resp, err := engine.Search(context.Background(), Request{
			Query: "feline sound", CollectionID: "col1", UseFeedback: true,
		})
		require.NoError(t, err)
		assert.Equal(t, goldID, resp.Results[0].ID)
	})

	t.Run("dissimilar prior queries do not contribute", func(t *testing.T) {
		resp, err := engine.Search(context.Background(), Request{
			Query: "canine noise", CollectionID: "col1", UseFeedback: true,
		})
		require.NoError(t, err)
		// "canine noise" is orthogonal to the stored feedback query, so
		// ranking stays dense-only: dogs first on similarity.
		assert.Equal(t, goldID, resp.Results[0].ID)
		for _, r := range resp.Results {
			if r.ID == goldID {
				// ln(3)*sim boost would exceed 1; dense similarity can't.
				assert.LessOrEqual(t, r.Score, 1.01)
			}
		}
	})
}

func TestSearchMinScore(t *testing.T) {
	engine, store := newTestEngine(t, models.CollectionSettings{DenseModel: "m"}, nil)
	seedStore(t, store, "col1", []string{"Cats purr.", "Dogs bark."})

	resp, err := engine.Search(context.Background(), Request{
		Query:        "feline sound",
		CollectionID: "col1",
		MinScore:     0.9,
	})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.9)
	}
	assert.Len(t, resp.Results, 1)
}

func TestSearchAdapterFailureFallsBack(t *testing.T) {
	store := memory.NewStore()
	provider := &stubSettings{collections: map[string]*models.Collection{
		"col1": {ID: "col1", Settings: models.CollectionSettings{DenseModel: "m"}},
	}}
	failing := transformerFunc(func(ctx context.Context, collectionID string, q []float32) ([]float32, error) {
		return nil, fmt.Errorf("adapter exploded")
	})
	engine := NewEngine(provider, &stubEncoder{}, store, failing, nil, nil, "", nil)
	seedStore(t, store, "col1", []string{"Cats purr."})

	resp, err := engine.Search(context.Background(), Request{Query: "feline sound", CollectionID: "col1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}

type transformerFunc func(ctx context.Context, collectionID string, q []float32) ([]float32, error)

func (f transformerFunc) Transform(ctx context.Context, collectionID string, q []float32) ([]float32, error) {
	return f(ctx, collectionID, q)
}
