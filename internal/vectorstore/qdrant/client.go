// Package qdrant implements the vectorstore contract against the Qdrant
// HTTP API, using named vectors and the Query API for hybrid fusion and
// late-interaction reranking.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

// hybridPrefetchMultiplier: each prefetch branch requests 2x the fused
// limit so RRF has enough candidates from both sides.
const hybridPrefetchMultiplier = 2

// Client talks to Qdrant over HTTP and implements vectorstore.Store.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.Mutex
	known map[string]bool // collections already ensured this process
}

var _ vectorstore.Store = (*Client)(nil)

// NewClient creates a new Qdrant client.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HNSWEf <= 0 {
		config.HNSWEf = 128
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		known:      make(map[string]bool),
	}, nil
}

// HealthCheck verifies connectivity to Qdrant.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "", nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	url := c.config.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &apiError{status: resp.StatusCode, body: string(respBody)}
	}
	return respBody, nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qdrant returned %d: %s", e.status, e.body)
}

// EnsureCollection creates the collection with the named-vector layout and
// the ownerId payload index. Creation is idempotent per process.
func (c *Client) EnsureCollection(ctx context.Context, name string, schema vectorstore.Schema) error {
	c.mu.Lock()
	if c.known[name] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	exists, err := c.collectionExists(ctx, name)
	if err != nil {
		return err
	}

	if !exists {
		vectors := map[string]any{
			vectorstore.VectorDense: map[string]any{
				"size":     schema.DenseDim,
				"distance": "Cosine",
			},
		}
		if schema.HasRerank {
			dim := schema.RerankDim
			if dim == 0 {
				dim = schema.DenseDim
			}
			vectors[vectorstore.VectorRerank] = map[string]any{
				"size":     dim,
				"distance": "Cosine",
				"multivector_config": map[string]any{
					"comparator": "max_sim",
				},
			}
		}

		reqBody := map[string]any{"vectors": vectors}
		if schema.HasSparse {
			reqBody["sparse_vectors"] = map[string]any{
				vectorstore.VectorSparse: map[string]any{},
			}
		}

		if _, err := c.doRequest(ctx, http.MethodPut, "/collections/"+name, reqBody); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		// Multi-tenant queries always filter on ownerId; index it up front.
		indexBody := map[string]any{
			"field_name":   "ownerId",
			"field_schema": "keyword",
		}
		if _, err := c.doRequest(ctx, http.MethodPut, "/collections/"+name+"/index", indexBody); err != nil {
			return fmt.Errorf("failed to create payload index: %w", err)
		}

		c.logger.WithFields(logrus.Fields{
			"collection": name,
			"dense_dim":  schema.DenseDim,
			"sparse":     schema.HasSparse,
			"rerank":     schema.HasRerank,
		}).Info("Collection created")
	}

	c.mu.Lock()
	c.known[name] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) collectionExists(ctx context.Context, name string) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodGet, "/collections/"+name, nil)
	if err == nil {
		return true, nil
	}
	var ae *apiError
	if errors.As(err, &ae) && ae.status == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// Upsert writes points with their named vectors and payloads.
func (c *Client) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	wire := make([]map[string]any, len(points))
	for i, p := range points {
		vector := map[string]any{}
		if p.Dense != nil {
			vector[vectorstore.VectorDense] = p.Dense
		}
		if p.Sparse != nil {
			vector[vectorstore.VectorSparse] = map[string]any{
				"indices": p.Sparse.Indices,
				"values":  p.Sparse.Values,
			}
		}
		if p.Rerank != nil {
			vector[vectorstore.VectorRerank] = p.Rerank
		}
		wire[i] = map[string]any{
			"id":      p.ID,
			"vector":  vector,
			"payload": p.Payload,
		}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", collection)
	if _, err := c.doRequest(ctx, http.MethodPut, path, map[string]any{"points": wire}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"collection": collection,
		"count":      len(points),
	}).Debug("Points upserted")
	return nil
}

func buildFilter(filter *vectorstore.Filter) map[string]any {
	if filter == nil {
		return nil
	}
	var must []map[string]any
	if filter.OwnerID != "" {
		must = append(must, map[string]any{
			"key":   "ownerId",
			"match": map[string]any{"value": filter.OwnerID},
		})
	}
	if filter.ResourceID != "" {
		must = append(must, map[string]any{
			"key":   "resourceId",
			"match": map[string]any{"value": filter.ResourceID},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

type queryResponse struct {
	Result struct {
		Points []struct {
			ID      string              `json:"id"`
			Score   float64             `json:"score"`
			Payload vectorstore.Payload `json:"payload"`
		} `json:"points"`
	} `json:"result"`
}

func (c *Client) runQuery(ctx context.Context, collection string, reqBody map[string]any) ([]vectorstore.Scored, error) {
	reqBody["with_payload"] = true

	respBody, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points/query", reqBody)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var parsed queryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}

	results := make([]vectorstore.Scored, len(parsed.Result.Points))
	for i, p := range parsed.Result.Points {
		results[i] = vectorstore.Scored{ID: p.ID, Score: p.Score, Payload: p.Payload}
	}
	return results, nil
}

// QueryDense runs a dense similarity search over indexed vectors only.
func (c *Client) QueryDense(ctx context.Context, collection string, vector []float32, limit int, filter *vectorstore.Filter) ([]vectorstore.Scored, error) {
	reqBody := map[string]any{
		"query": vector,
		"using": vectorstore.VectorDense,
		"limit": limit,
		"params": map[string]any{
			"hnsw_ef":      c.config.HNSWEf,
			"indexed_only": true,
			"exact":        false,
		},
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}
	return c.runQuery(ctx, collection, reqBody)
}

// QueryHybrid prefetches dense and sparse candidates (each at twice the
// fused limit) and fuses them server-side with RRF.
func (c *Client) QueryHybrid(ctx context.Context, collection string, dense []float32, sparse *models.SparseVector, limit int, filter *vectorstore.Filter) ([]vectorstore.Scored, error) {
	if sparse == nil {
		return c.QueryDense(ctx, collection, dense, limit, filter)
	}

	prefetchLimit := limit * hybridPrefetchMultiplier
	f := buildFilter(filter)

	densePrefetch := map[string]any{
		"query": dense,
		"using": vectorstore.VectorDense,
		"limit": prefetchLimit,
		"params": map[string]any{
			"hnsw_ef":      c.config.HNSWEf,
			"indexed_only": true,
			"exact":        false,
		},
	}
	sparsePrefetch := map[string]any{
		"query": map[string]any{
			"indices": sparse.Indices,
			"values":  sparse.Values,
		},
		"using": vectorstore.VectorSparse,
		"limit": prefetchLimit,
	}
	if f != nil {
		densePrefetch["filter"] = f
		sparsePrefetch["filter"] = f
	}

	reqBody := map[string]any{
		"prefetch": []map[string]any{densePrefetch, sparsePrefetch},
		"query":    map[string]any{"fusion": "rrf"},
		"limit":    limit,
	}
	return c.runQuery(ctx, collection, reqBody)
}

// Rerank scores a candidate id set against a late-interaction matrix using
// the rerank named vector's max_sim comparator.
func (c *Client) Rerank(ctx context.Context, collection string, matrix [][]float32, candidateIDs []string, limit int) ([]vectorstore.Scored, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query": matrix,
		"using": vectorstore.VectorRerank,
		"limit": limit,
		"filter": map[string]any{
			"must": []map[string]any{
				{"has_id": candidateIDs},
			},
		},
	}
	return c.runQuery(ctx, collection, reqBody)
}

// Retrieve fetches points by id.
func (c *Client) Retrieve(ctx context.Context, collection string, ids []string, withVectors bool) ([]vectorstore.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  withVectors,
	}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/collections/"+collection+"/points", reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve points: %w", err)
	}

	var parsed struct {
		Result []struct {
			ID      string              `json:"id"`
			Vector  json.RawMessage     `json:"vector"`
			Payload vectorstore.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse retrieve response: %w", err)
	}

	points := make([]vectorstore.Point, len(parsed.Result))
	for i, r := range parsed.Result {
		p := vectorstore.Point{ID: r.ID, Payload: r.Payload}
		if withVectors && len(r.Vector) > 0 {
			// Named-vector map; only the dense vector is needed here.
			var named struct {
				Dense []float32 `json:"dense"`
			}
			if err := json.Unmarshal(r.Vector, &named); err == nil {
				p.Dense = named.Dense
			}
		}
		points[i] = p
	}
	return points, nil
}

// DeleteByFilter removes all points matching the filter.
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter *vectorstore.Filter) error {
	f := buildFilter(filter)
	if f == nil {
		return fmt.Errorf("refusing to delete without a filter")
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", collection)
	if _, err := c.doRequest(ctx, http.MethodPost, path, map[string]any{"filter": f}); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	c.logger.WithField("collection", collection).Debug("Points deleted by filter")
	return nil
}

// DeleteCollection drops the collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, "/collections/"+name, nil); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	c.mu.Lock()
	delete(c.known, name)
	c.mu.Unlock()

	c.logger.WithField("collection", name).Info("Collection deleted")
	return nil
}
