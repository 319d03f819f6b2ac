package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/eval"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging/inmemory"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore implements Store in memory for handler tests.
type memStore struct {
	collections map[string]*models.Collection
	resources   map[string]*models.Resource
	chunks      map[string][]models.Chunk
	evalCases   []models.EvalTestCase
	evalRuns    []*models.EvalRun
}

func newMemStore() *memStore {
	return &memStore{
		collections: make(map[string]*models.Collection),
		resources:   make(map[string]*models.Resource),
		chunks:      make(map[string][]models.Chunk),
	}
}

func (m *memStore) CreateCollection(_ context.Context, c *models.Collection) error {
	m.collections[c.ID] = c
	return nil
}

func (m *memStore) GetCollection(_ context.Context, id string) (*models.Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	return c, nil
}

func (m *memStore) UpdateCollectionSettings(_ context.Context, id string, settings models.CollectionSettings) (*models.Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return nil, apperr.NotFound("collection %s not found", id)
	}
	c.Settings.ChunkSize = settings.ChunkSize
	c.Settings.ChunkOverlap = settings.ChunkOverlap
	c.Settings.Strategy = settings.Strategy
	c.Settings.ChunkingURL = settings.ChunkingURL
	c.Settings.KeepDuplicate = settings.KeepDuplicate
	return c, nil
}

func (m *memStore) CreateResource(_ context.Context, r *models.Resource) error {
	m.resources[r.ID] = r
	return nil
}

func (m *memStore) GetResource(_ context.Context, id string) (*models.Resource, error) {
	r, ok := m.resources[id]
	if !ok || r.IsDeleted {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	return r, nil
}

func (m *memStore) ListResources(_ context.Context, collectionID, ownerID string, _ bool) ([]models.Resource, error) {
	var out []models.Resource
	for _, r := range m.resources {
		if r.CollectionID != collectionID || r.IsDeleted {
			continue
		}
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) UpdateResource(_ context.Context, id string, set bson.M) (*models.Resource, error) {
	r, ok := m.resources[id]
	if !ok {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	if title, ok := set["title"].(string); ok {
		r.Title = title
	}
	if content, ok := set["content"].(string); ok {
		r.Content = content
	}
	return r, nil
}

func (m *memStore) SoftDeleteResource(_ context.Context, id string) (*models.Resource, error) {
	r, ok := m.resources[id]
	if !ok || r.IsDeleted {
		return nil, apperr.NotFound("resource %s not found", id)
	}
	r.IsDeleted = true
	r.Status = models.StatusDeleted
	return r, nil
}

func (m *memStore) ListChunks(_ context.Context, resourceID string) ([]models.Chunk, error) {
	return m.chunks[resourceID], nil
}

func (m *memStore) CreateEvalTestCase(_ context.Context, tc *models.EvalTestCase) error {
	m.evalCases = append(m.evalCases, *tc)
	return nil
}

func (m *memStore) ListEvalTestCases(_ context.Context, collectionID, ownerID string) ([]models.EvalTestCase, error) {
	var out []models.EvalTestCase
	for _, tc := range m.evalCases {
		if tc.CollectionID == collectionID && tc.OwnerID == ownerID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (m *memStore) SaveEvalRun(_ context.Context, run *models.EvalRun) error {
	m.evalRuns = append(m.evalRuns, run)
	return nil
}

// memLinks implements FeedbackLinks in memory.
type memLinks struct {
	links map[string]*cache.FeedbackLink
}

func (m *memLinks) SetFeedbackLink(_ context.Context, referenceID string, link *cache.FeedbackLink) error {
	m.links[referenceID] = link
	return nil
}

func (m *memLinks) GetFeedbackLink(_ context.Context, referenceID string) (*cache.FeedbackLink, error) {
	link, ok := m.links[referenceID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return link, nil
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) {}

// cannedEngine returns one fixed result.
type cannedEngine struct {
	lastRequest query.Request
}

func (e *cannedEngine) Search(_ context.Context, req query.Request) (*query.Response, error) {
	if req.Query == "" {
		return nil, apperr.Validation("query is required")
	}
	if req.CollectionID == "" {
		return nil, apperr.Validation("collectionId is required")
	}
	e.lastRequest = req
	return &query.Response{Results: []query.Result{{
		ID:    "chunk-1",
		Score: 0.9,
		Payload: vectorstore.Payload{
			ResourceID: "res1",
			OwnerID:    "public",
			Content:    "hello",
		},
	}}}, nil
}

type testHarness struct {
	router *gin.Engine
	store  *memStore
	broker *inmemory.Broker
	links  *memLinks
	engine *cannedEngine
}

func newHarness(t *testing.T, apiKey string) *testHarness {
	t.Helper()
	store := newMemStore()
	broker := inmemory.NewBroker()
	links := &memLinks{links: make(map[string]*cache.FeedbackLink)}
	engine := &cannedEngine{}

	router := NewRouter(RouterConfig{
		APIKey:     apiKey,
		Collection: NewCollectionHandler(store, noopInvalidator{}, nil),
		Resource:   NewResourceHandler(store, broker, "rag", nil),
		Search:     NewSearchHandler(engine, links, nil),
		Feedback:   NewFeedbackHandler(broker, links, "search-feedback", nil),
		Eval:       NewEvalHandler(eval.NewEvaluator(store, engine, nil), nil),
	})
	return &testHarness{router: router, store: store, broker: broker, links: links, engine: engine}
}

func (h *testHarness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func validSettings() map[string]any {
	return map[string]any{
		"denseModel": embedding.DefaultDenseModel,
		"chunkSize":  500,
		"strategy":   "recursive",
	}
}

func TestCreateCollection(t *testing.T) {
	h := newHarness(t, "")

	t.Run("creates with valid settings", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/collection", map[string]any{
			"name":     "docs",
			"settings": validSettings(),
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		var created models.Collection
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "docs", created.Name)
	})

	t.Run("rejects unknown dense model", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/collection", map[string]any{
			"name": "bad",
			"settings": map[string]any{
				"denseModel": "made-up/model",
			},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unsupported dense model")
	})

	t.Run("rejects oversized chunkSize", func(t *testing.T) {
		settings := validSettings()
		settings["chunkSize"] = 9000
		w := h.do(t, http.MethodPost, "/collection", map[string]any{
			"name": "big", "settings": settings,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing collection is 404", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/collection/nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateResourcePublishesIngestEvent(t *testing.T) {
	h := newHarness(t, "")
	h.store.collections["col1"] = &models.Collection{
		ID: "col1", Settings: models.CollectionSettings{DenseModel: embedding.DefaultDenseModel},
	}

	t.Run("content resource goes straight to chunk", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/resource", map[string]any{
			"collectionId": "col1",
			"content":      "Cats purr.",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		pending := h.broker.Pending("rag")
		require.Len(t, pending, 1)
		var event models.IngestEvent
		require.NoError(t, json.Unmarshal(pending[0], &event))
		assert.Equal(t, models.EventChunk, event.Event)
		assert.Equal(t, models.DefaultOwnerID, event.Data.OwnerID)
	})

	t.Run("url resource starts at load", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/resource", map[string]any{
			"collectionId": "col1",
			"url":          "https://example.com/doc",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)

		pending := h.broker.Pending("rag")
		var event models.IngestEvent
		require.NoError(t, json.Unmarshal(pending[len(pending)-1], &event))
		assert.Equal(t, models.EventLoad, event.Event)
	})

	t.Run("needs content or url", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/resource", map[string]any{
			"collectionId": "col1",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown collection is 404", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/resource", map[string]any{
			"collectionId": "ghost", "content": "x",
		}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteResourcePublishesDeleteEvent(t *testing.T) {
	h := newHarness(t, "")
	h.store.resources["res1"] = &models.Resource{ID: "res1", CollectionID: "col1", OwnerID: "public"}

	w := h.do(t, http.MethodDelete, "/resource/res1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.store.resources["res1"].IsDeleted)

	pending := h.broker.Pending("rag")
	require.Len(t, pending, 1)
	var event models.IngestEvent
	require.NoError(t, json.Unmarshal(pending[0], &event))
	assert.Equal(t, models.EventDelete, event.Event)

	t.Run("second delete is 404", func(t *testing.T) {
		w := h.do(t, http.MethodDelete, "/resource/res1", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSearchEndpoint(t *testing.T) {
	h := newHarness(t, "")

	t.Run("validates required fields", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/search", map[string]any{"collectionId": "col1"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = h.do(t, http.MethodPost, "/search", map[string]any{"query": "q"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns ranked results", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/search", map[string]any{
			"query": "feline sound", "collectionId": "col1", "limit": 3,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Result []searchResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Result, 1)
		assert.Equal(t, "chunk-1", resp.Result[0].ID)
		assert.Nil(t, resp.Result[0].Feedback)
		assert.Equal(t, 3, h.engine.lastRequest.TopK)
	})

	t.Run("review mode attaches feedback links", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/search", map[string]any{
			"query": "feline sound", "collectionId": "col1", "isReview": true,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Result []searchResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Result[0].Feedback)
		assert.Contains(t, resp.Result[0].Feedback.Upvote, "/feedback/vote/")
		assert.Len(t, h.links.links, 1)
	})
}

func TestFeedbackVote(t *testing.T) {
	h := newHarness(t, "")

	t.Run("publishes feedback event", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/feedback/vote", map[string]any{
			"collectionId": "col1",
			"query":        "feline sound",
			"chunkId":      "chunk-1",
			"resourceId":   "res1",
			"action":       "upvote",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		pending := h.broker.Pending("search-feedback")
		require.Len(t, pending, 1)
		var event models.FeedbackEvent
		require.NoError(t, json.Unmarshal(pending[0], &event))
		assert.Equal(t, models.ActionUpvote, event.Action)
	})

	t.Run("rejects bad action", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/feedback/vote", map[string]any{
			"collectionId": "col1", "query": "q", "chunkId": "c", "action": "meh",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFeedbackVoteByReference(t *testing.T) {
	h := newHarness(t, "")
	h.links.links["ref-1"] = &cache.FeedbackLink{
		Query: "q", CollectionID: "col1", ChunkID: "chunk-1", ResourceID: "res1", OwnerID: "public",
	}

	t.Run("resolves link and records vote", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/feedback/vote/ref-1/upvote", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Len(t, h.broker.Pending("search-feedback"), 1)
	})

	t.Run("expired link is 404", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/feedback/vote/gone/upvote", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEvalEndpoints(t *testing.T) {
	h := newHarness(t, "")

	for i := 0; i < 3; i++ {
		w := h.do(t, http.MethodPost, "/eval/cases", map[string]any{
			"collectionId":     "col1",
			"query":            fmt.Sprintf("q%d", i),
			"expectedChunkIds": []string{"chunk-1"},
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("lists cases", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/eval/cases/col1/public", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			TestCases []models.EvalTestCase `json:"testCases"`
			Metadata  struct {
				Total int `json:"total"`
			} `json:"metadata"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Metadata.Total)
	})

	t.Run("runs evaluation", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/eval/run/col1/public", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var run models.EvalRun
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
		// The canned engine always returns chunk-1, so every case hits.
		assert.Equal(t, 3, run.TotalCases)
		assert.Equal(t, 3, run.HitCount)
		assert.InDelta(t, 1.0, run.MRR, 1e-9)
		assert.Empty(t, run.FailedCases)
	})

	t.Run("run without cases is 400", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/eval/run/empty/public", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEncodingModels(t *testing.T) {
	h := newHarness(t, "")
	w := h.do(t, http.MethodGet, "/utility/encoding-models", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Models struct {
			Dense    []embedding.ModelInfo `json:"denseModels"`
			Sparse   []embedding.ModelInfo `json:"sparseModels"`
			Reranker []embedding.ModelInfo `json:"rerankerModels"`
		} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Models.Dense)
	assert.NotEmpty(t, resp.Models.Sparse)
	assert.NotEmpty(t, resp.Models.Reranker)
}

func TestAPIKeyAuth(t *testing.T) {
	h := newHarness(t, "secret")

	t.Run("rejects missing key", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/collection/x", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("accepts valid key", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/collection/x", nil, map[string]string{"x-api-key": "secret"})
		assert.Equal(t, http.StatusNotFound, w.Code) // authorized, collection absent
	})

	t.Run("landing and review links stay public", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = h.do(t, http.MethodGet, "/feedback/vote/gone/upvote", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code) // resolved, just expired
	})
}
