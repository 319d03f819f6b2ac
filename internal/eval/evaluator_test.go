package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
	"github.com/Walkover-Web-Solution/hippocampus/internal/vectorstore"
)

type memStore struct {
	cases []models.EvalTestCase
	runs  []*models.EvalRun
}

func (m *memStore) CreateEvalTestCase(_ context.Context, tc *models.EvalTestCase) error {
	m.cases = append(m.cases, *tc)
	return nil
}

func (m *memStore) ListEvalTestCases(_ context.Context, collectionID, ownerID string) ([]models.EvalTestCase, error) {
	var out []models.EvalTestCase
	for _, tc := range m.cases {
		if tc.CollectionID == collectionID && tc.OwnerID == ownerID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (m *memStore) SaveEvalRun(_ context.Context, run *models.EvalRun) error {
	m.runs = append(m.runs, run)
	return nil
}

// cannedSearcher returns a fixed ranking per query.
type cannedSearcher struct {
	rankings map[string][]string
}

func (c *cannedSearcher) Search(_ context.Context, req query.Request) (*query.Response, error) {
	ids := c.rankings[req.Query]
	results := make([]query.Result, len(ids))
	for i, id := range ids {
		results[i] = query.Result{ID: id, Score: 1.0 / float64(i+1), Payload: vectorstore.Payload{}}
	}
	return &query.Response{Results: results}, nil
}

func TestCreateTestCaseValidation(t *testing.T) {
	ev := NewEvaluator(&memStore{}, &cannedSearcher{}, nil)

	err := ev.CreateTestCase(context.Background(), &models.EvalTestCase{Query: "q"})
	assert.Equal(t, "validation", apperr.Code(err))

	err = ev.CreateTestCase(context.Background(), &models.EvalTestCase{
		CollectionID: "c", Query: "q",
	})
	assert.Equal(t, "validation", apperr.Code(err))

	tc := &models.EvalTestCase{CollectionID: "c", Query: "q", ExpectedChunks: []string{"x"}}
	require.NoError(t, ev.CreateTestCase(context.Background(), tc))
	assert.NotEmpty(t, tc.ID)
	assert.Equal(t, models.DefaultOwnerID, tc.OwnerID)
}

func TestScoreCase(t *testing.T) {
	tc := models.EvalTestCase{ID: "t", ExpectedChunks: []string{"a", "b"}}

	t.Run("first hit at rank 2", func(t *testing.T) {
		r := scoreCase(tc, []string{"x", "a", "b", "y", "z"})
		assert.True(t, r.Hit)
		assert.InDelta(t, 0.5, r.ReciprocalRank, 1e-9)
		assert.InDelta(t, 1.0, r.Recall, 1e-9)
	})

	t.Run("partial recall", func(t *testing.T) {
		r := scoreCase(tc, []string{"a", "x", "y", "z", "w"})
		assert.True(t, r.Hit)
		assert.InDelta(t, 1.0, r.ReciprocalRank, 1e-9)
		assert.InDelta(t, 0.5, r.Recall, 1e-9)
	})

	t.Run("miss", func(t *testing.T) {
		r := scoreCase(tc, []string{"x", "y", "z"})
		assert.False(t, r.Hit)
		assert.Zero(t, r.ReciprocalRank)
		assert.Zero(t, r.Recall)
	})

	t.Run("hit iff reciprocal rank positive", func(t *testing.T) {
		for _, retrieved := range [][]string{
			{"a"}, {"x", "b"}, {"x", "y"}, nil,
		} {
			r := scoreCase(tc, retrieved)
			assert.Equal(t, r.Hit, r.ReciprocalRank > 0)
			assert.GreaterOrEqual(t, r.Recall, 0.0)
			assert.LessOrEqual(t, r.Recall, 1.0)
		}
	})
}

func TestRunAggregates(t *testing.T) {
	store := &memStore{}
	searcher := &cannedSearcher{rankings: map[string][]string{
		"q1": {"gold1", "x", "y"},      // hit at rank 1
		"q2": {"x", "gold2", "y"},      // hit at rank 2
		"q3": {"x", "y", "z"},          // miss
	}}
	ev := NewEvaluator(store, searcher, nil)

	for i, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, ev.CreateTestCase(context.Background(), &models.EvalTestCase{
			CollectionID:   "col1",
			Query:          q,
			ExpectedChunks: []string{[]string{"gold1", "gold2", "gold3"}[i]},
		}))
	}

	run, err := ev.Run(context.Background(), "col1", "")
	require.NoError(t, err)

	assert.Equal(t, 3, run.TotalCases)
	assert.Equal(t, 2, run.HitCount)
	assert.InDelta(t, 2.0/3.0, run.OverallAccuracy, 1e-9)
	assert.InDelta(t, (1.0+0.5+0)/3.0, run.MRR, 1e-9)
	assert.InDelta(t, 2.0/3.0, run.AverageRecall, 1e-9)
	assert.Len(t, run.FailedCases, run.TotalCases-run.HitCount)

	// Run was persisted.
	require.Len(t, store.runs, 1)
	assert.Equal(t, run.ID, store.runs[0].ID)
}

func TestRunWithoutCases(t *testing.T) {
	ev := NewEvaluator(&memStore{}, &cannedSearcher{}, nil)
	_, err := ev.Run(context.Background(), "empty", "")
	assert.Equal(t, "validation", apperr.Code(err))
}
