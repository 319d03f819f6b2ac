package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

// fakeQdrant records requests and serves canned responses.
type fakeQdrant struct {
	server   *httptest.Server
	requests []recordedRequest
	// collections that "exist"
	existing map[string]bool
}

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newFakeQdrant() *fakeQdrant {
	f := &fakeQdrant{existing: make(map[string]bool)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			_, _ = w.Write([]byte(`{"title":"qdrant"}`))
		case r.Method == http.MethodGet:
			// collection info
			name := r.URL.Path[len("/collections/"):]
			if !f.existing[name] {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"not found"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
		case r.Method == http.MethodPut, r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		case r.URL.Path == "/collections/test/points/query":
			_, _ = w.Write([]byte(`{"result":{"points":[
				{"id":"p1","score":0.9,"payload":{"ownerId":"public","content":"first"}},
				{"id":"p2","score":0.5,"payload":{"ownerId":"public","content":"second"}}
			]}}`))
		case r.URL.Path == "/collections/test/points":
			_, _ = w.Write([]byte(`{"result":[
				{"id":"p1","vector":{"dense":[0.1,0.2]},"payload":{"ownerId":"public","content":"first"}}
			]}`))
		default:
			_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
		}
	}))
	return f
}

func (f *fakeQdrant) lastRequest() recordedRequest {
	return f.requests[len(f.requests)-1]
}

func (f *fakeQdrant) findRequest(method, path string) *recordedRequest {
	for i := range f.requests {
		if f.requests[i].method == method && f.requests[i].path == path {
			return &f.requests[i]
		}
	}
	return nil
}

func newTestClient(t *testing.T, f *fakeQdrant) *Client {
	t.Helper()
	client, err := NewClient(&Config{URL: f.server.URL, Timeout: 5 * time.Second, HNSWEf: 128}, nil)
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{URL: "", Timeout: time.Second}).Validate())
	assert.Error(t, (&Config{URL: "localhost:6333", Timeout: time.Second}).Validate())
	assert.Error(t, (&Config{URL: "http://localhost:6333"}).Validate())
}

func TestEnsureCollection(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	schema := vectorstore.Schema{DenseDim: 384, HasSparse: true, HasRerank: true, RerankDim: 128}
	require.NoError(t, client.EnsureCollection(context.Background(), "col1", schema))

	create := f.findRequest(http.MethodPut, "/collections/col1")
	require.NotNil(t, create)
	vectors := create.body["vectors"].(map[string]any)
	dense := vectors["dense"].(map[string]any)
	assert.Equal(t, float64(384), dense["size"])
	assert.Equal(t, "Cosine", dense["distance"])
	rerank := vectors["rerank"].(map[string]any)
	mv := rerank["multivector_config"].(map[string]any)
	assert.Equal(t, "max_sim", mv["comparator"])
	assert.Contains(t, create.body, "sparse_vectors")

	index := f.findRequest(http.MethodPut, "/collections/col1/index")
	require.NotNil(t, index)
	assert.Equal(t, "ownerId", index.body["field_name"])
	assert.Equal(t, "keyword", index.body["field_schema"])

	t.Run("second call is a no-op", func(t *testing.T) {
		before := len(f.requests)
		require.NoError(t, client.EnsureCollection(context.Background(), "col1", schema))
		assert.Equal(t, before, len(f.requests))
	})

	t.Run("existing collection is not recreated", func(t *testing.T) {
		f.existing["col2"] = true
		require.NoError(t, client.EnsureCollection(context.Background(), "col2", schema))
		assert.Nil(t, f.findRequest(http.MethodPut, "/collections/col2/index"))
	})
}

func TestUpsert(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	points := []vectorstore.Point{
		{
			ID:      "11111111-2222-3333-4444-555555555555",
			Dense:   []float32{0.1, 0.2},
			Sparse:  &models.SparseVector{Indices: []uint32{3}, Values: []float32{0.7}},
			Rerank:  [][]float32{{0.1}, {0.2}},
			Payload: vectorstore.Payload{
				ResourceID:   "res1",
				CollectionID: "col1",
				OwnerID:      "public",
				Content:      "hello",
			},
		},
	}
	require.NoError(t, client.Upsert(context.Background(), "col1", points))

	req := f.lastRequest()
	assert.Equal(t, "/collections/col1/points", req.path)
	wire := req.body["points"].([]any)[0].(map[string]any)
	vector := wire["vector"].(map[string]any)
	assert.Contains(t, vector, "dense")
	assert.Contains(t, vector, "sparse")
	assert.Contains(t, vector, "rerank")
	payload := wire["payload"].(map[string]any)
	assert.Equal(t, "public", payload["ownerId"])

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		before := len(f.requests)
		require.NoError(t, client.Upsert(context.Background(), "col1", nil))
		assert.Equal(t, before, len(f.requests))
	})
}

func TestQueryDense(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	results, err := client.QueryDense(context.Background(), "test", []float32{0.1, 0.2}, 10,
		&vectorstore.Filter{OwnerID: "public"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "first", results[0].Payload.Content)

	req := f.lastRequest()
	assert.Equal(t, "dense", req.body["using"])
	params := req.body["params"].(map[string]any)
	assert.Equal(t, float64(128), params["hnsw_ef"])
	assert.Equal(t, true, params["indexed_only"])
	assert.Equal(t, false, params["exact"])

	filter := req.body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "ownerId", cond["key"])
}

func TestQueryHybrid(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	sparse := &models.SparseVector{Indices: []uint32{1, 5}, Values: []float32{0.3, 0.9}}
	results, err := client.QueryHybrid(context.Background(), "test", []float32{0.1}, sparse, 50, nil)

	require.NoError(t, err)
	require.Len(t, results, 2)

	req := f.lastRequest()
	fusion := req.body["query"].(map[string]any)
	assert.Equal(t, "rrf", fusion["fusion"])

	prefetch := req.body["prefetch"].([]any)
	require.Len(t, prefetch, 2)
	densePre := prefetch[0].(map[string]any)
	assert.Equal(t, "dense", densePre["using"])
	assert.Equal(t, float64(100), densePre["limit"])
	sparsePre := prefetch[1].(map[string]any)
	assert.Equal(t, "sparse", sparsePre["using"])
	assert.Equal(t, float64(100), sparsePre["limit"])

	t.Run("nil sparse degrades to dense", func(t *testing.T) {
		_, err := client.QueryHybrid(context.Background(), "test", []float32{0.1}, nil, 50, nil)
		require.NoError(t, err)
		req := f.lastRequest()
		assert.Equal(t, "dense", req.body["using"])
	})
}

func TestRerank(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	matrix := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	results, err := client.Rerank(context.Background(), "test", matrix, []string{"p1", "p2"}, 5)

	require.NoError(t, err)
	require.Len(t, results, 2)

	req := f.lastRequest()
	assert.Equal(t, "rerank", req.body["using"])
	filter := req.body["filter"].(map[string]any)
	must := filter["must"].([]any)
	cond := must[0].(map[string]any)
	ids := cond["has_id"].([]any)
	assert.Len(t, ids, 2)

	t.Run("no candidates short-circuits", func(t *testing.T) {
		before := len(f.requests)
		results, err := client.Rerank(context.Background(), "test", matrix, nil, 5)
		require.NoError(t, err)
		assert.Nil(t, results)
		assert.Equal(t, before, len(f.requests))
	})
}

func TestRetrieve(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	points, err := client.Retrieve(context.Background(), "test", []string{"p1"}, true)

	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "p1", points[0].ID)
	assert.Equal(t, []float32{0.1, 0.2}, points[0].Dense)
	assert.Equal(t, "first", points[0].Payload.Content)
}

func TestDeleteByFilter(t *testing.T) {
	f := newFakeQdrant()
	defer f.server.Close()
	client := newTestClient(t, f)

	t.Run("deletes with resource filter", func(t *testing.T) {
		err := client.DeleteByFilter(context.Background(), "col1", &vectorstore.Filter{ResourceID: "res1"})
		require.NoError(t, err)

		req := f.lastRequest()
		assert.Equal(t, "/collections/col1/points/delete", req.path)
		filter := req.body["filter"].(map[string]any)
		must := filter["must"].([]any)
		cond := must[0].(map[string]any)
		assert.Equal(t, "resourceId", cond["key"])
	})

	t.Run("refuses an empty filter", func(t *testing.T) {
		assert.Error(t, client.DeleteByFilter(context.Background(), "col1", nil))
		assert.Error(t, client.DeleteByFilter(context.Background(), "col1", &vectorstore.Filter{}))
	})
}
