// Package vectorstore defines the capability contract the retrieval path
// depends on, keeping the concrete vector engine swappable.
package vectorstore

import (
	"context"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// Named vectors carried by every indexed point.
const (
	VectorDense  = "dense"
	VectorSparse = "sparse"
	VectorRerank = "rerank"
)

// Schema describes the named-vector layout of a collection, derived from
// the first upserted point.
type Schema struct {
	DenseDim  int
	HasSparse bool
	HasRerank bool
	RerankDim int
}

// Payload is the structured payload stored with every point.
type Payload struct {
	ResourceID   string         `json:"resourceId"`
	CollectionID string         `json:"collectionId"`
	OwnerID      string         `json:"ownerId"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Point is one indexable unit: an id, named vectors and a payload.
type Point struct {
	ID      string
	Dense   []float32
	Sparse  *models.SparseVector
	Rerank  [][]float32
	Payload Payload
}

// Filter restricts queries and deletes to matching payloads. Zero-value
// fields are not applied.
type Filter struct {
	OwnerID    string
	ResourceID string
}

// Scored is a query hit.
type Scored struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Store is the capability surface the query engine and persist workers use.
type Store interface {
	// EnsureCollection creates the collection (with its payload index on
	// ownerId) if it does not exist yet.
	EnsureCollection(ctx context.Context, name string, schema Schema) error
	// Upsert writes points, overwriting points with the same id.
	Upsert(ctx context.Context, collection string, points []Point) error
	// QueryDense runs a dense similarity search.
	QueryDense(ctx context.Context, collection string, vector []float32, limit int, filter *Filter) ([]Scored, error)
	// QueryHybrid prefetches dense and sparse candidates and fuses them
	// with reciprocal rank fusion.
	QueryHybrid(ctx context.Context, collection string, dense []float32, sparse *models.SparseVector, limit int, filter *Filter) ([]Scored, error)
	// Rerank scores a candidate id set against a late-interaction matrix.
	Rerank(ctx context.Context, collection string, matrix [][]float32, candidateIDs []string, limit int) ([]Scored, error)
	// Retrieve fetches points by id, optionally with their dense vectors.
	Retrieve(ctx context.Context, collection string, ids []string, withVectors bool) ([]Point, error)
	// DeleteByFilter removes every point matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error
	// DeleteCollection drops a whole collection.
	DeleteCollection(ctx context.Context, name string) error
}
