// Package models defines the core domain types shared across the ingestion
// pipeline, query engine and workers.
package models

import (
	"time"
)

// ChunkStrategy selects how a resource's content is split into chunks.
type ChunkStrategy string

const (
	StrategyRecursive ChunkStrategy = "recursive"
	StrategySemantic  ChunkStrategy = "semantic"
	StrategyAgentic   ChunkStrategy = "agentic"
	StrategyCustom    ChunkStrategy = "custom"
)

// MaxChunkSize is the upper bound accepted for a collection's chunk size.
const MaxChunkSize = 4000

// DefaultOwnerID scopes resources that are not owned by a specific tenant.
const DefaultOwnerID = "public"

// CollectionSettings governs how a collection indexes its resources.
// DenseModel is required; SparseModel and RerankerModel are optional and
// enable hybrid retrieval and late-interaction reranking respectively.
type CollectionSettings struct {
	DenseModel    string        `json:"denseModel" bson:"denseModel"`
	SparseModel   string        `json:"sparseModel,omitempty" bson:"sparseModel,omitempty"`
	RerankerModel string        `json:"rerankerModel,omitempty" bson:"rerankerModel,omitempty"`
	ChunkSize     int           `json:"chunkSize,omitempty" bson:"chunkSize,omitempty"`
	ChunkOverlap  int           `json:"chunkOverlap,omitempty" bson:"chunkOverlap,omitempty"`
	Strategy      ChunkStrategy `json:"strategy,omitempty" bson:"strategy,omitempty"`
	ChunkingURL   string        `json:"chunkingUrl,omitempty" bson:"chunkingUrl,omitempty"`
	KeepDuplicate bool          `json:"keepDuplicate,omitempty" bson:"keepDuplicate,omitempty"`
}

// Collection is a named logical grouping of resources with shared settings.
type Collection struct {
	ID          string             `json:"id" bson:"_id"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Settings    CollectionSettings `json:"settings" bson:"settings"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ResourceStatus tracks a resource through the ingestion pipeline.
type ResourceStatus string

const (
	StatusLoaded  ResourceStatus = "loaded"
	StatusChunked ResourceStatus = "chunked"
	StatusDeleted ResourceStatus = "deleted"
	StatusError   ResourceStatus = "error"
)

// ChunkOverrides are optional per-resource chunking parameters that take
// precedence over the collection settings.
type ChunkOverrides struct {
	ChunkSize    int           `json:"chunkSize,omitempty" bson:"chunkSize,omitempty"`
	ChunkOverlap int           `json:"chunkOverlap,omitempty" bson:"chunkOverlap,omitempty"`
	Strategy     ChunkStrategy `json:"strategy,omitempty" bson:"strategy,omitempty"`
	ChunkingURL  string        `json:"chunkingUrl,omitempty" bson:"chunkingUrl,omitempty"`
}

// Resource is a source document owned by a collection.
type Resource struct {
	ID           string          `json:"id" bson:"_id"`
	CollectionID string          `json:"collectionId" bson:"collectionId"`
	OwnerID      string          `json:"ownerId" bson:"ownerId"`
	Title        string          `json:"title,omitempty" bson:"title,omitempty"`
	URL          string          `json:"url,omitempty" bson:"url,omitempty"`
	Content      string          `json:"content,omitempty" bson:"content,omitempty"`
	ContentHash  string          `json:"-" bson:"contentHash,omitempty"`
	Description  string          `json:"description,omitempty" bson:"description,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Overrides    *ChunkOverrides `json:"chunking,omitempty" bson:"chunking,omitempty"`
	Status       ResourceStatus  `json:"status,omitempty" bson:"status,omitempty"`
	StatusReason string          `json:"statusMessage,omitempty" bson:"statusMessage,omitempty"`
	RefreshedAt  time.Time       `json:"refreshedAt" bson:"refreshedAt"`
	IsDeleted    bool            `json:"isDeleted,omitempty" bson:"isDeleted,omitempty"`
	CreatedAt    time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// SparseVector is an (indices, values) bag-of-terms representation.
type SparseVector struct {
	Indices []uint32  `json:"indices" bson:"indices"`
	Values  []float32 `json:"values" bson:"values"`
}

// Chunk is the unit of retrieval. VectorSource, when set, is the text that
// was embedded in place of the display text.
type Chunk struct {
	ID           string         `json:"id" bson:"_id"`
	Data         string         `json:"data" bson:"data"`
	VectorSource string         `json:"vectorSource,omitempty" bson:"vectorSource,omitempty"`
	ResourceID   string         `json:"resourceId" bson:"resourceId"`
	CollectionID string         `json:"collectionId" bson:"collectionId"`
	OwnerID      string         `json:"ownerId" bson:"ownerId"`
	Vector       []float32      `json:"vector,omitempty" bson:"-"`
	SparseVector *SparseVector  `json:"sparseVector,omitempty" bson:"-"`
	RerankVector [][]float32    `json:"rerankVector,omitempty" bson:"-"`
	Metadata     map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// EmbeddedText returns the text to encode for this chunk.
func (c *Chunk) EmbeddedText() string {
	if c.VectorSource != "" {
		return c.VectorSource
	}
	return c.Data
}

// FeedbackHit records the vote balance one chunk accumulated under a
// representative query.
type FeedbackHit struct {
	ResourceID string `json:"resourceId" bson:"resourceId"`
	Count      int    `json:"count" bson:"count"`
}

// FeedbackDoc aggregates per-chunk vote counts for a representative query.
// Hits is keyed by chunk id; chunk ids are UUID-formatted so the keys are
// safe as document field names.
type FeedbackDoc struct {
	ID           string                 `json:"id" bson:"_id"`
	Query        string                 `json:"query" bson:"query"`
	CollectionID string                 `json:"collectionId" bson:"collectionId"`
	OwnerID      string                 `json:"ownerId" bson:"ownerId"`
	Hits         map[string]FeedbackHit `json:"hits" bson:"hits"`
	UpdatedAt    time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// AdapterRecord is the persisted state of a collection's query adapter:
// a D×D weight matrix, a bias vector and the training counter.
type AdapterRecord struct {
	CollectionID  string      `json:"collectionId" bson:"_id"`
	Weights       [][]float64 `json:"weights" bson:"weights"`
	Bias          []float64   `json:"bias" bson:"bias"`
	InputDim      int         `json:"inputDim" bson:"inputDim"`
	OutputDim     int         `json:"outputDim" bson:"outputDim"`
	TrainingCount int         `json:"trainingCount" bson:"trainingCount"`
}

// EvalTestCase is one labelled retrieval example.
type EvalTestCase struct {
	ID             string    `json:"id" bson:"_id"`
	CollectionID   string    `json:"collectionId" bson:"collectionId"`
	OwnerID        string    `json:"ownerId" bson:"ownerId"`
	Query          string    `json:"query" bson:"query"`
	ExpectedChunks []string  `json:"expectedChunkIds" bson:"expectedChunkIds"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

// EvalCaseResult is the outcome of one test case within a run.
type EvalCaseResult struct {
	TestCaseID     string   `json:"testCaseId" bson:"testCaseId"`
	Query          string   `json:"query" bson:"query"`
	ExpectedChunks []string `json:"expectedChunkIds" bson:"expectedChunkIds"`
	Retrieved      []string `json:"retrievedChunkIds" bson:"retrievedChunkIds"`
	Hit            bool     `json:"hit" bson:"hit"`
	Recall         float64  `json:"recall" bson:"recall"`
	ReciprocalRank float64  `json:"reciprocalRank" bson:"reciprocalRank"`
}

// EvalRun is a snapshot of metrics from running all test cases of a
// collection through the query engine.
type EvalRun struct {
	ID              string           `json:"id" bson:"_id"`
	CollectionID    string           `json:"collectionId" bson:"collectionId"`
	OwnerID         string           `json:"ownerId" bson:"ownerId"`
	TotalCases      int              `json:"totalCases" bson:"totalCases"`
	HitCount        int              `json:"hitCount" bson:"hitCount"`
	OverallAccuracy float64          `json:"overallAccuracy" bson:"overallAccuracy"`
	AverageRecall   float64          `json:"averageRecall" bson:"averageRecall"`
	MRR             float64          `json:"mrr" bson:"mrr"`
	Results         []EvalCaseResult `json:"results" bson:"results"`
	FailedCases     []EvalCaseResult `json:"failedCases" bson:"failedCases"`
	RanAt           time.Time        `json:"ranAt" bson:"ranAt"`
}
