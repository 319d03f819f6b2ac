package chunker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// sentencePattern matches a sentence up to and including its terminator.
// Covers Latin, CJK and Arabic sentence punctuation.
var sentencePattern = regexp.MustCompile(`[^.!?。！？؟]+[.!?。！？؟]+\s*`)

var newlineGroups = regexp.MustCompile(`\n+`)

const (
	// semanticMaxInput is the input size above which semantic chunking is
	// downgraded to recursive for latency.
	semanticMaxInput = 10000
	// breakpointPercentile selects the similarity threshold candidate.
	breakpointPercentile = 0.20
	// Threshold clamp bounds: above the ceiling even the weakest bond is
	// strong, so no split; below the floor the text is already very
	// heterogeneous, but those splits are still allowed.
	thresholdFloor   = 0.40
	thresholdCeiling = 0.90
)

// SemanticConfig parameterizes the semantic chunker.
type SemanticConfig struct {
	MinChunkSize int
	MaxChunkSize int
	DenseModel   string
}

// SemanticChunker groups sentences by embedding similarity: consecutive
// sentences stay together until their similarity drops below a percentile
// threshold over the whole document.
type SemanticChunker struct {
	config  *SemanticConfig
	encoder DenseEncoder
	logger  *logrus.Logger
}

// NewSemanticChunker creates a semantic chunker.
func NewSemanticChunker(config *SemanticConfig, encoder DenseEncoder, logger *logrus.Logger) *SemanticChunker {
	if config == nil {
		config = &SemanticConfig{MinChunkSize: 100, MaxChunkSize: 1000}
	}
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = 1000
	}
	if config.MinChunkSize <= 0 || config.MinChunkSize > config.MaxChunkSize {
		config.MinChunkSize = config.MaxChunkSize / 4
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SemanticChunker{config: config, encoder: encoder, logger: logger}
}

// Split implements Chunker.
func (s *SemanticChunker) Split(ctx context.Context, text string) ([]Piece, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	// Very large inputs would mean embedding hundreds of sentences up
	// front; fall back to fixed-size chunking.
	if len(text) > semanticMaxInput {
		s.logger.WithField("size", len(text)).Debug("Input too large for semantic chunking, using recursive")
		return NewRecursiveChunker(s.config.MaxChunkSize, 0).Split(ctx, text)
	}

	sentences := s.splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []Piece{{Text: sentences[0]}}, nil
	}

	vectors, err := s.encoder.EncodeDense(ctx, sentences, s.config.DenseModel)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sentences: %w", err)
	}

	similarities := make([]float64, len(sentences)-1)
	for i := 0; i < len(sentences)-1; i++ {
		similarities[i] = cosineSimilarity(vectors[i], vectors[i+1])
	}

	threshold := breakpointThreshold(similarities)
	return s.group(sentences, similarities, threshold), nil
}

// splitSentences segments text into sentences. Sentences larger than
// maxChunkSize are force-split on whitespace; text with no sentence
// boundary at all is split on newline groups.
func (s *SemanticChunker) splitSentences(text string) []string {
	matches := sentencePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		matches = newlineGroups.Split(text, -1)
	}

	segmentLimit := 200
	if quarter := s.config.MaxChunkSize / 4; quarter < segmentLimit {
		segmentLimit = quarter
	}
	if segmentLimit < 1 {
		segmentLimit = 1
	}

	var sentences []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if len(m) <= s.config.MaxChunkSize {
			sentences = append(sentences, m)
			continue
		}
		sentences = append(sentences, splitByWhitespace(m, segmentLimit)...)
	}
	return sentences
}

// splitByWhitespace cuts an oversized sentence into segments of at most
// limit bytes, breaking between words where possible.
func splitByWhitespace(text string, limit int) []string {
	words := strings.Fields(text)
	var segments []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	for _, w := range words {
		// A single word longer than the limit gets hard cut.
		for len(w) > limit {
			flush()
			segments = append(segments, w[:limit])
			w = w[limit:]
		}
		if current.Len() > 0 && current.Len()+1+len(w) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	flush()
	return segments
}

// breakpointThreshold picks the similarity at the 20th percentile and
// clamps it into [thresholdFloor, thresholdCeiling].
func breakpointThreshold(similarities []float64) float64 {
	sorted := make([]float64, len(similarities))
	copy(sorted, similarities)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * breakpointPercentile)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	tau := sorted[idx]

	if tau > thresholdCeiling {
		tau = thresholdCeiling
	}
	if tau < thresholdFloor {
		tau = thresholdFloor
	}
	return tau
}

// group walks sentences accumulating chunks. Flushes on size overflow
// always; flushes at a breakpoint only once the chunk reached its minimum
// size. A too-small tail merges back into the previous chunk when the
// result still fits.
func (s *SemanticChunker) group(sentences []string, similarities []float64, threshold float64) []Piece {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for i, sentence := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sentence) > s.config.MaxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)

		if i < len(similarities) && similarities[i] <= threshold && current.Len() >= s.config.MinChunkSize {
			flush()
		}
	}
	flush()

	// Tail merge.
	if n := len(chunks); n > 1 && len(chunks[n-1]) < s.config.MinChunkSize {
		if len(chunks[n-2])+1+len(chunks[n-1]) <= s.config.MaxChunkSize {
			chunks[n-2] = chunks[n-2] + " " + chunks[n-1]
			chunks = chunks[:n-1]
		}
	}

	pieces := make([]Piece, len(chunks))
	for i, c := range chunks {
		pieces[i] = Piece{Text: c}
	}
	return pieces
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
