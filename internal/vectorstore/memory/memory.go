// Package memory provides an in-process vectorstore.Store used in tests and
// local development. Query semantics mirror the Qdrant implementation:
// cosine scoring for dense, dot product for sparse, RRF for hybrid fusion
// and max_sim for rerank.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

// RRFK is the reciprocal rank fusion constant.
const RRFK = 60

// Store keeps points in memory, keyed by collection then point id.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]vectorstore.Point
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{collections: make(map[string]map[string]vectorstore.Point)}
}

// EnsureCollection implements vectorstore.Store.
func (s *Store) EnsureCollection(_ context.Context, name string, _ vectorstore.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = make(map[string]vectorstore.Point)
	}
	return nil
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(_ context.Context, collection string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]vectorstore.Point)
		s.collections[collection] = col
	}
	for _, p := range points {
		col[p.ID] = p
	}
	return nil
}

// Count returns the number of points in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func matches(p vectorstore.Point, filter *vectorstore.Filter) bool {
	if filter == nil {
		return true
	}
	if filter.OwnerID != "" && p.Payload.OwnerID != filter.OwnerID {
		return false
	}
	if filter.ResourceID != "" && p.Payload.ResourceID != filter.ResourceID {
		return false
	}
	return true
}

// QueryDense implements vectorstore.Store.
func (s *Store) QueryDense(_ context.Context, collection string, vector []float32, limit int, filter *vectorstore.Filter) ([]vectorstore.Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vectorstore.Scored
	for _, p := range s.collections[collection] {
		if p.Dense == nil || !matches(p, filter) {
			continue
		}
		results = append(results, vectorstore.Scored{
			ID:      p.ID,
			Score:   Cosine(vector, p.Dense),
			Payload: p.Payload,
		})
	}
	sortByScore(results)
	return truncate(results, limit), nil
}

// QueryHybrid implements vectorstore.Store with client-side RRF.
func (s *Store) QueryHybrid(ctx context.Context, collection string, dense []float32, sparse *models.SparseVector, limit int, filter *vectorstore.Filter) ([]vectorstore.Scored, error) {
	if sparse == nil {
		return s.QueryDense(ctx, collection, dense, limit, filter)
	}

	prefetchLimit := limit * 2
	denseResults, err := s.QueryDense(ctx, collection, dense, prefetchLimit, filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var sparseResults []vectorstore.Scored
	for _, p := range s.collections[collection] {
		if p.Sparse == nil || !matches(p, filter) {
			continue
		}
		score := sparseDot(sparse, p.Sparse)
		if score <= 0 {
			continue
		}
		sparseResults = append(sparseResults, vectorstore.Scored{ID: p.ID, Score: score, Payload: p.Payload})
	}
	s.mu.RUnlock()
	sortByScore(sparseResults)
	sparseResults = truncate(sparseResults, prefetchLimit)

	return truncate(RRFuse(denseResults, sparseResults), limit), nil
}

// Rerank implements vectorstore.Store with max_sim scoring.
func (s *Store) Rerank(_ context.Context, collection string, matrix [][]float32, candidateIDs []string, limit int) ([]vectorstore.Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	var results []vectorstore.Scored
	for _, id := range candidateIDs {
		p, ok := col[id]
		if !ok || p.Rerank == nil {
			continue
		}
		results = append(results, vectorstore.Scored{
			ID:      p.ID,
			Score:   MaxSim(matrix, p.Rerank),
			Payload: p.Payload,
		})
	}
	sortByScore(results)
	return truncate(results, limit), nil
}

// Retrieve implements vectorstore.Store.
func (s *Store) Retrieve(_ context.Context, collection string, ids []string, withVectors bool) ([]vectorstore.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	var points []vectorstore.Point
	for _, id := range ids {
		p, ok := col[id]
		if !ok {
			continue
		}
		if !withVectors {
			p.Dense = nil
			p.Sparse = nil
			p.Rerank = nil
		}
		points = append(points, p)
	}
	return points, nil
}

// DeleteByFilter implements vectorstore.Store.
func (s *Store) DeleteByFilter(_ context.Context, collection string, filter *vectorstore.Filter) error {
	if filter == nil || (filter.OwnerID == "" && filter.ResourceID == "") {
		return fmt.Errorf("refusing to delete without a filter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.collections[collection]
	for id, p := range col {
		if matches(p, filter) {
			delete(col, id)
		}
	}
	return nil
}

// DeleteCollection implements vectorstore.Store.
func (s *Store) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

// RRFuse merges ranked lists by reciprocal rank fusion:
// score(d) = sum over lists of 1/(RRFK + rank_i(d)), ranks 1-indexed.
func RRFuse(lists ...[]vectorstore.Scored) []vectorstore.Scored {
	scores := make(map[string]float64)
	payloads := make(map[string]vectorstore.Payload)

	for _, list := range lists {
		for rank, item := range list {
			scores[item.ID] += 1.0 / float64(RRFK+rank+1)
			if _, ok := payloads[item.ID]; !ok {
				payloads[item.ID] = item.Payload
			}
		}
	}

	fused := make([]vectorstore.Scored, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, vectorstore.Scored{ID: id, Score: score, Payload: payloads[id]})
	}
	sortByScore(fused)
	return fused
}

// Cosine returns the cosine similarity of two vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MaxSim is the ColBERT late-interaction score: for each query token vector
// take the best-matching document token, and sum.
func MaxSim(query, doc [][]float32) float64 {
	var total float64
	for _, q := range query {
		best := math.Inf(-1)
		for _, d := range doc {
			if sim := Cosine(q, d); sim > best {
				best = sim
			}
		}
		if !math.IsInf(best, -1) {
			total += best
		}
	}
	return total
}

func sparseDot(a, b *models.SparseVector) float64 {
	weights := make(map[uint32]float32, len(a.Indices))
	for i, idx := range a.Indices {
		weights[idx] = a.Values[i]
	}
	var dot float64
	for i, idx := range b.Indices {
		if w, ok := weights[idx]; ok {
			dot += float64(w) * float64(b.Values[i])
		}
	}
	return dot
}

func sortByScore(results []vectorstore.Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func truncate(results []vectorstore.Scored, limit int) []vectorstore.Scored {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
