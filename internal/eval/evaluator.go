// Package eval runs stored retrieval test cases through the query engine
// and reports Hit, Recall@K and MRR.
package eval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
)

// evalTopK is the retrieval depth every test case is scored at.
const evalTopK = 5

// Store persists test cases and runs.
type Store interface {
	CreateEvalTestCase(ctx context.Context, tc *models.EvalTestCase) error
	ListEvalTestCases(ctx context.Context, collectionID, ownerID string) ([]models.EvalTestCase, error)
	SaveEvalRun(ctx context.Context, run *models.EvalRun) error
}

// Searcher is the query engine surface the evaluator drives.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*query.Response, error)
}

// Evaluator creates test cases and runs evaluations.
type Evaluator struct {
	store    Store
	searcher Searcher
	logger   *logrus.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(store Store, searcher Searcher, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{store: store, searcher: searcher, logger: logger}
}

// CreateTestCase validates and stores one labelled example.
func (e *Evaluator) CreateTestCase(ctx context.Context, tc *models.EvalTestCase) error {
	if tc.CollectionID == "" || tc.Query == "" {
		return apperr.Validation("collectionId and query are required")
	}
	if len(tc.ExpectedChunks) == 0 {
		return apperr.Validation("expectedChunkIds must not be empty")
	}
	if tc.OwnerID == "" {
		tc.OwnerID = models.DefaultOwnerID
	}
	if tc.ID == "" {
		tc.ID = uuid.New().String()
	}
	return e.store.CreateEvalTestCase(ctx, tc)
}

// ListTestCases returns a collection's test cases for an owner.
func (e *Evaluator) ListTestCases(ctx context.Context, collectionID, ownerID string) ([]models.EvalTestCase, error) {
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}
	return e.store.ListEvalTestCases(ctx, collectionID, ownerID)
}

// Run evaluates every test case of a collection at topK=5 and persists
// the aggregated report.
func (e *Evaluator) Run(ctx context.Context, collectionID, ownerID string) (*models.EvalRun, error) {
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}

	cases, err := e.store.ListEvalTestCases(ctx, collectionID, ownerID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, apperr.Validation("no test cases for collection %s", collectionID)
	}

	run := &models.EvalRun{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		OwnerID:      ownerID,
		TotalCases:   len(cases),
		RanAt:        time.Now().UTC(),
	}

	var recallSum, rrSum float64
	for _, tc := range cases {
		resp, err := e.searcher.Search(ctx, query.Request{
			Query:        tc.Query,
			CollectionID: collectionID,
			OwnerID:      ownerID,
			TopK:         evalTopK,
		})
		if err != nil {
			return nil, err
		}

		retrieved := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			retrieved[i] = r.ID
		}

		result := scoreCase(tc, retrieved)
		run.Results = append(run.Results, result)
		if result.Hit {
			run.HitCount++
		} else {
			run.FailedCases = append(run.FailedCases, result)
		}
		recallSum += result.Recall
		rrSum += result.ReciprocalRank
	}

	n := float64(len(cases))
	run.OverallAccuracy = float64(run.HitCount) / n
	run.AverageRecall = recallSum / n
	run.MRR = rrSum / n

	if err := e.store.SaveEvalRun(ctx, run); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"collection": collectionID,
		"cases":      run.TotalCases,
		"accuracy":   run.OverallAccuracy,
		"mrr":        run.MRR,
	}).Info("Evaluation run completed")
	return run, nil
}

// scoreCase computes Hit, Recall@K and reciprocal rank for one case.
func scoreCase(tc models.EvalTestCase, retrieved []string) models.EvalCaseResult {
	expected := make(map[string]bool, len(tc.ExpectedChunks))
	for _, id := range tc.ExpectedChunks {
		expected[id] = true
	}

	found := 0
	rr := 0.0
	for rank, id := range retrieved {
		if !expected[id] {
			continue
		}
		found++
		if rr == 0 {
			rr = 1.0 / float64(rank+1)
		}
	}

	return models.EvalCaseResult{
		TestCaseID:     tc.ID,
		Query:          tc.Query,
		ExpectedChunks: tc.ExpectedChunks,
		Retrieved:      retrieved,
		Hit:            rr > 0,
		Recall:         float64(found) / float64(len(tc.ExpectedChunks)),
		ReciprocalRank: rr,
	}
}
