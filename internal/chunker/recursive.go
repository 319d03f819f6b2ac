package chunker

import (
	"context"
	"strings"
)

// RecursiveChunker produces fixed-size chunks with overlap, preferring to
// break on whitespace near the boundary.
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

// NewRecursiveChunker creates a fixed-size chunker.
func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into chunks of at most chunkSize runes, stepping back by
// the configured overlap between consecutive chunks.
func (c *RecursiveChunker) Split(_ context.Context, text string) ([]Piece, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []Piece{{Text: text}}, nil
	}

	var pieces []Piece
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakOnWhitespace(runes, start, end)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, Piece{Text: piece})
		}

		if end == len(runes) {
			break
		}
		start = end - c.overlap
		if start < 0 {
			start = 0
		}
	}

	return pieces, nil
}

// breakOnWhitespace walks back from end looking for a whitespace boundary
// within the last quarter of the window. Falls back to a hard cut.
func breakOnWhitespace(runes []rune, start, end int) int {
	limit := end - (end-start)/4
	for i := end; i > limit; i-- {
		if isSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
