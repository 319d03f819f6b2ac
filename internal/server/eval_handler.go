package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/eval"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// EvalHandler serves test-case management and evaluation runs.
type EvalHandler struct {
	evaluator *eval.Evaluator
	log       *logrus.Logger
}

// NewEvalHandler creates the handler.
func NewEvalHandler(evaluator *eval.Evaluator, log *logrus.Logger) *EvalHandler {
	return &EvalHandler{evaluator: evaluator, log: logger(log)}
}

type createTestCaseRequest struct {
	CollectionID   string   `json:"collectionId"`
	OwnerID        string   `json:"ownerId"`
	Query          string   `json:"query"`
	ExpectedChunks []string `json:"expectedChunkIds"`
}

// CreateCase handles POST /eval/cases.
func (h *EvalHandler) CreateCase(c *gin.Context) {
	var req createTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	tc := &models.EvalTestCase{
		CollectionID:   req.CollectionID,
		OwnerID:        req.OwnerID,
		Query:          req.Query,
		ExpectedChunks: req.ExpectedChunks,
	}
	if err := h.evaluator.CreateTestCase(c.Request.Context(), tc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tc)
}

// ListCases handles GET /eval/cases/:collectionId/:ownerId.
func (h *EvalHandler) ListCases(c *gin.Context) {
	cases, err := h.evaluator.ListTestCases(c.Request.Context(), c.Param("collectionId"), c.Param("ownerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"testCases": cases,
		"metadata":  gin.H{"total": len(cases)},
	})
}

// Run handles POST /eval/run/:datasetId/:ownerId.
func (h *EvalHandler) Run(c *gin.Context) {
	run, err := h.evaluator.Run(c.Request.Context(), c.Param("datasetId"), c.Param("ownerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// UtilityHandler serves model discovery.
type UtilityHandler struct{}

// EncodingModels handles GET /utility/encoding-models.
func (UtilityHandler) EncodingModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models": gin.H{
			"denseModels":    embedding.ListModels(embedding.KindDense),
			"sparseModels":   embedding.ListModels(embedding.KindSparse),
			"rerankerModels": embedding.ListModels(embedding.KindLateInteraction),
		},
	})
}
