// Package embedding provides the batched client for the embedding model
// server, covering dense, sparse and late-interaction encoders.
package embedding

// ModelKind distinguishes the encoder families served by the model server.
type ModelKind string

const (
	KindDense           ModelKind = "dense"
	KindSparse          ModelKind = "sparse"
	KindLateInteraction ModelKind = "late-interaction"
)

// ModelInfo describes one supported model.
type ModelInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	Latency     string `json:"latency"`
	Dimension   int    `json:"dimension,omitempty"`
}

// Default model names, matching the model server's preloaded set.
const (
	DefaultDenseModel    = "BAAI/bge-small-en-v1.5"
	DefaultSparseModel   = "prithivida/Splade_PP_en_v1"
	DefaultRerankerModel = "colbert-ir/colbertv2.0"
)

var denseModels = []ModelInfo{
	{Name: "BAAI/bge-small-en-v1.5", Provider: "fastembed", Description: "Fast English embedding, 384 dims", Latency: "fast", Dimension: 384},
	{Name: "BAAI/bge-base-en-v1.5", Provider: "fastembed", Description: "Balanced English embedding, 768 dims", Latency: "medium", Dimension: 768},
	{Name: "BAAI/bge-large-en-v1.5", Provider: "fastembed", Description: "High quality English embedding, 1024 dims", Latency: "slow", Dimension: 1024},
	{Name: "sentence-transformers/all-MiniLM-L6-v2", Provider: "fastembed", Description: "Compact general-purpose embedding, 384 dims", Latency: "fast", Dimension: 384},
	{Name: "intfloat/multilingual-e5-large", Provider: "fastembed", Description: "Multilingual embedding, 1024 dims", Latency: "slow", Dimension: 1024},
}

var sparseModels = []ModelInfo{
	{Name: "prithivida/Splade_PP_en_v1", Provider: "fastembed", Description: "SPLADE++ sparse lexical expansion", Latency: "medium"},
	{Name: "Qdrant/bm25", Provider: "fastembed", Description: "BM25 term weighting", Latency: "fast"},
}

var rerankerModels = []ModelInfo{
	{Name: "colbert-ir/colbertv2.0", Provider: "fastembed", Description: "ColBERT v2 late-interaction reranker", Latency: "slow"},
	{Name: "answerdotai/answerai-colbert-small-v1", Provider: "fastembed", Description: "Compact late-interaction reranker", Latency: "medium"},
}

// ListModels returns the descriptor table for one encoder family.
func ListModels(kind ModelKind) []ModelInfo {
	switch kind {
	case KindDense:
		return denseModels
	case KindSparse:
		return sparseModels
	case KindLateInteraction:
		return rerankerModels
	default:
		return nil
	}
}

// DescribeModel looks up a model's descriptor within a family.
func DescribeModel(kind ModelKind, name string) (ModelInfo, bool) {
	for _, m := range ListModels(kind) {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// IsValidModel reports whether name is a supported model of the given kind.
func IsValidModel(kind ModelKind, name string) bool {
	_, ok := DescribeModel(kind, name)
	return ok
}
