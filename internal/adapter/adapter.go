// Package adapter implements the per-collection linear projection that
// morphs query vectors toward upvoted chunk vectors, trained online from
// feedback events.
package adapter

import (
	"math"
	"math/rand"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// Training hyperparameters.
const (
	LearningRate = 1e-4
	Epochs       = 3
	MaxBatchSize = 32

	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// SafetyThreshold is the cosine similarity below which a transform is
// flagged as drifting too far from the original query.
const SafetyThreshold = 0.75

// LinearAdapter is a D×D projection with bias. Before any training the
// weights are the identity and the bias is zero, so Transform is a no-op
// (up to normalization of an already-unit input).
type LinearAdapter struct {
	dim           int
	weights       [][]float64 // weights[i][j]: contribution of input j to output i
	bias          []float64
	trainingCount int

	// Adam state.
	step   int
	mW, vW [][]float64
	mB, vB []float64
}

// New creates an identity-initialized adapter of the given dimension.
func New(dim int) *LinearAdapter {
	a := &LinearAdapter{
		dim:     dim,
		weights: identity(dim),
		bias:    make([]float64, dim),
		mW:      zeros(dim, dim),
		vW:      zeros(dim, dim),
		mB:      make([]float64, dim),
		vB:      make([]float64, dim),
	}
	return a
}

// FromRecord restores a trained adapter from its persisted state.
func FromRecord(record *models.AdapterRecord) *LinearAdapter {
	a := New(record.InputDim)
	for i := range record.Weights {
		copy(a.weights[i], record.Weights[i])
	}
	copy(a.bias, record.Bias)
	a.trainingCount = record.TrainingCount
	return a
}

// Record snapshots the adapter for persistence.
func (a *LinearAdapter) Record(collectionID string) *models.AdapterRecord {
	weights := make([][]float64, a.dim)
	for i := range weights {
		weights[i] = append([]float64(nil), a.weights[i]...)
	}
	return &models.AdapterRecord{
		CollectionID:  collectionID,
		Weights:       weights,
		Bias:          append([]float64(nil), a.bias...),
		InputDim:      a.dim,
		OutputDim:     a.dim,
		TrainingCount: a.trainingCount,
	}
}

// Dim returns the adapter's dimension.
func (a *LinearAdapter) Dim() int { return a.dim }

// TrainingCount returns how many Train calls the adapter has seen.
func (a *LinearAdapter) TrainingCount() int { return a.trainingCount }

// Transform projects a query vector and L2-normalizes the result.
func (a *LinearAdapter) Transform(q []float32) ([]float32, error) {
	if len(q) != a.dim {
		return nil, apperr.DimensionMismatch(a.dim, len(q))
	}

	out := a.forward(toFloat64(q))
	normalize(out)

	result := make([]float32, a.dim)
	for i, v := range out {
		result[i] = float32(v)
	}
	return result, nil
}

// Train runs Epochs passes of Adam over (query, chunk) pairs with loss
// -cos(forward(q), c). Rows are L2-normalized before fitting. Increments
// the training counter once per call.
func (a *LinearAdapter) Train(queries, chunks [][]float32) error {
	if len(queries) == 0 || len(queries) != len(chunks) {
		return apperr.Validation("training needs equal, non-empty query and chunk batches")
	}

	q64 := make([][]float64, len(queries))
	c64 := make([][]float64, len(chunks))
	for i := range queries {
		if len(queries[i]) != a.dim {
			return apperr.DimensionMismatch(a.dim, len(queries[i]))
		}
		if len(chunks[i]) != a.dim {
			return apperr.DimensionMismatch(a.dim, len(chunks[i]))
		}
		q64[i] = toFloat64(queries[i])
		normalize(q64[i])
		c64[i] = toFloat64(chunks[i])
		normalize(c64[i])
	}

	batchSize := MaxBatchSize
	if len(q64) < batchSize {
		batchSize = len(q64)
	}

	order := make([]int, len(q64))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < Epochs; epoch++ {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for start := 0; start < len(order); start += batchSize {
			end := start + batchSize
			if end > len(order) {
				end = len(order)
			}
			a.fitBatch(q64, c64, order[start:end])
		}
	}

	a.trainingCount++
	return nil
}

// fitBatch accumulates the negative-cosine gradient over one mini-batch
// and applies a single Adam update.
func (a *LinearAdapter) fitBatch(queries, chunks [][]float64, batch []int) {
	gradW := zeros(a.dim, a.dim)
	gradB := make([]float64, a.dim)

	for _, idx := range batch {
		x := queries[idx]
		t := chunks[idx]

		y := a.forward(x)
		yNorm := vecNorm(y)
		if yNorm == 0 {
			continue
		}

		// loss = -(y/||y||) . t
		// dloss/dy = -(t - (yHat.t) yHat) / ||y||
		cos := 0.0
		for i := range y {
			cos += y[i] / yNorm * t[i]
		}
		for i := range y {
			yHat := y[i] / yNorm
			g := -(t[i] - cos*yHat) / yNorm
			gradB[i] += g
			for j := range x {
				gradW[i][j] += g * x[j]
			}
		}
	}

	scale := 1.0 / float64(len(batch))
	a.step++
	bc1 := 1 - math.Pow(adamBeta1, float64(a.step))
	bc2 := 1 - math.Pow(adamBeta2, float64(a.step))

	for i := 0; i < a.dim; i++ {
		gb := gradB[i] * scale
		a.mB[i] = adamBeta1*a.mB[i] + (1-adamBeta1)*gb
		a.vB[i] = adamBeta2*a.vB[i] + (1-adamBeta2)*gb*gb
		a.bias[i] -= LearningRate * (a.mB[i] / bc1) / (math.Sqrt(a.vB[i]/bc2) + adamEpsilon)

		for j := 0; j < a.dim; j++ {
			gw := gradW[i][j] * scale
			a.mW[i][j] = adamBeta1*a.mW[i][j] + (1-adamBeta1)*gw
			a.vW[i][j] = adamBeta2*a.vW[i][j] + (1-adamBeta2)*gw*gw
			a.weights[i][j] -= LearningRate * (a.mW[i][j] / bc1) / (math.Sqrt(a.vW[i][j]/bc2) + adamEpsilon)
		}
	}
}

func (a *LinearAdapter) forward(x []float64) []float64 {
	out := make([]float64, a.dim)
	for i := 0; i < a.dim; i++ {
		sum := a.bias[i]
		row := a.weights[i]
		for j := 0; j < a.dim; j++ {
			sum += row[j] * x[j]
		}
		out[i] = sum
	}
	return out
}

// SafetyCheck reports whether a transformed vector stayed close enough to
// the original. Diagnostic only; the query path does not gate on it.
func SafetyCheck(original, transformed []float32) (cosine float64, isSafe bool) {
	cosine = cosine32(original, transformed)
	return cosine, cosine >= SafetyThreshold
}

func identity(dim int) [][]float64 {
	m := zeros(dim, dim)
	for i := 0; i < dim; i++ {
		m[i][i] = 1
	}
	return m
}

func zeros(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func vecNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func normalize(v []float64) {
	n := vecNorm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

func cosine32(a, b []float32) float64 {
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
