// Package chunker splits resource content into retrieval-sized pieces.
// Strategies: recursive fixed-size, semantic breakpoint detection, and a
// remote custom chunking endpoint.
package chunker

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// Piece is one chunk of text produced by a chunker. VectorSource, when set,
// is embedded in place of Text.
type Piece struct {
	Text         string         `json:"text"`
	VectorSource string         `json:"vectorSource,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Chunker splits raw text into ordered pieces.
type Chunker interface {
	Split(ctx context.Context, text string) ([]Piece, error)
}

// DenseEncoder is the subset of the embedding client the semantic chunker
// needs.
type DenseEncoder interface {
	EncodeDense(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Params are the resolved chunking parameters for one resource, after
// applying per-resource overrides on top of the collection settings.
type Params struct {
	Strategy     models.ChunkStrategy
	ChunkSize    int
	ChunkOverlap int
	ChunkingURL  string
	DenseModel   string
}

// Resolve merges per-resource overrides over collection settings.
func Resolve(settings models.CollectionSettings, overrides *models.ChunkOverrides) Params {
	p := Params{
		Strategy:     settings.Strategy,
		ChunkSize:    settings.ChunkSize,
		ChunkOverlap: settings.ChunkOverlap,
		ChunkingURL:  settings.ChunkingURL,
		DenseModel:   settings.DenseModel,
	}
	if overrides != nil {
		if overrides.Strategy != "" {
			p.Strategy = overrides.Strategy
		}
		if overrides.ChunkSize > 0 {
			p.ChunkSize = overrides.ChunkSize
		}
		if overrides.ChunkOverlap > 0 {
			p.ChunkOverlap = overrides.ChunkOverlap
		}
		if overrides.ChunkingURL != "" {
			p.ChunkingURL = overrides.ChunkingURL
		}
	}
	if p.Strategy == "" {
		p.Strategy = models.StrategyRecursive
	}
	if p.ChunkSize <= 0 || p.ChunkSize > models.MaxChunkSize {
		p.ChunkSize = 1000
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		p.ChunkOverlap = 0
	}
	return p
}

// ForParams returns the chunker implementing the resolved strategy.
func ForParams(p Params, encoder DenseEncoder, logger *logrus.Logger) Chunker {
	switch p.Strategy {
	case models.StrategySemantic, models.StrategyAgentic:
		minSize := p.ChunkSize / 4
		if minSize < 50 {
			minSize = 50
		}
		return NewSemanticChunker(&SemanticConfig{
			MinChunkSize: minSize,
			MaxChunkSize: p.ChunkSize,
			DenseModel:   p.DenseModel,
		}, encoder, logger)
	case models.StrategyCustom:
		return NewRemoteChunker(&RemoteConfig{URL: p.ChunkingURL}, logger)
	default:
		return NewRecursiveChunker(p.ChunkSize, p.ChunkOverlap)
	}
}
