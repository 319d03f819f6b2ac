package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/chunker"
	"github.com/Walkover-Web-Solution/hippocampus/internal/embedding"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// CollectionHandler serves collection CRUD.
type CollectionHandler struct {
	store       Store
	invalidator SettingsInvalidator
	log         *logrus.Logger
}

// NewCollectionHandler creates the handler.
func NewCollectionHandler(store Store, invalidator SettingsInvalidator, log *logrus.Logger) *CollectionHandler {
	return &CollectionHandler{store: store, invalidator: invalidator, log: logger(log)}
}

type createCollectionRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description"`
	Metadata    map[string]any            `json:"metadata"`
	Settings    models.CollectionSettings `json:"settings" binding:"required"`
}

// Create handles POST /collection.
func (h *CollectionHandler) Create(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	if err := validateSettings(c, req.Settings); err != nil {
		respondError(c, err)
		return
	}

	collection := &models.Collection{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		Settings:    req.Settings,
	}
	if err := h.store.CreateCollection(c.Request.Context(), collection); err != nil {
		respondError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"collection": collection.ID,
		"name":       collection.Name,
	}).Info("Collection created")
	c.JSON(http.StatusCreated, collection)
}

// Get handles GET /collection/:id.
func (h *CollectionHandler) Get(c *gin.Context) {
	collection, err := h.store.GetCollection(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

type updateCollectionRequest struct {
	ChunkSize     int                  `json:"chunkSize"`
	ChunkOverlap  int                  `json:"chunkOverlap"`
	Strategy      models.ChunkStrategy `json:"strategy"`
	ChunkingURL   string               `json:"chunkingUrl"`
	KeepDuplicate bool                 `json:"keepDuplicate"`
}

// Update handles PUT /collection/:id. Only chunking settings are mutable.
func (h *CollectionHandler) Update(c *gin.Context) {
	var req updateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	existing, err := h.store.GetCollection(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	settings := existing.Settings
	settings.ChunkSize = req.ChunkSize
	settings.ChunkOverlap = req.ChunkOverlap
	settings.Strategy = req.Strategy
	settings.ChunkingURL = req.ChunkingURL
	settings.KeepDuplicate = req.KeepDuplicate

	if err := validateSettings(c, settings); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.store.UpdateCollectionSettings(c.Request.Context(), existing.ID, settings)
	if err != nil {
		respondError(c, err)
		return
	}
	h.invalidator.Invalidate(c.Request.Context(), existing.ID)

	c.JSON(http.StatusOK, updated)
}

// ListResources handles GET /collection/:id/resources.
func (h *CollectionHandler) ListResources(c *gin.Context) {
	collectionID := c.Param("id")
	if _, err := h.store.GetCollection(c.Request.Context(), collectionID); err != nil {
		respondError(c, err)
		return
	}

	withContent := c.Query("content") == "true"
	resources, err := h.store.ListResources(c.Request.Context(), collectionID, c.Query("ownerId"), withContent)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resources": resources,
		"metadata":  gin.H{"total": len(resources)},
	})
}

// validateSettings checks model names against the registry and probes a
// custom chunking endpoint when configured.
func validateSettings(c *gin.Context, settings models.CollectionSettings) error {
	if settings.DenseModel == "" {
		return apperr.Validation("settings.denseModel is required")
	}
	if !embedding.IsValidModel(embedding.KindDense, settings.DenseModel) {
		return apperr.Validation("unsupported dense model %q", settings.DenseModel)
	}
	if settings.SparseModel != "" && !embedding.IsValidModel(embedding.KindSparse, settings.SparseModel) {
		return apperr.Validation("unsupported sparse model %q", settings.SparseModel)
	}
	if settings.RerankerModel != "" && !embedding.IsValidModel(embedding.KindLateInteraction, settings.RerankerModel) {
		return apperr.Validation("unsupported reranker model %q", settings.RerankerModel)
	}
	if settings.ChunkSize < 0 || settings.ChunkSize > models.MaxChunkSize {
		return apperr.Validation("chunkSize must be between 0 and %d", models.MaxChunkSize)
	}

	if settings.Strategy == models.StrategyCustom {
		if err := chunker.ProbeChunkingURL(c.Request.Context(), settings.ChunkingURL, 10*time.Second); err != nil {
			return apperr.Validation("custom chunking url failed health probe: %v", err)
		}
	}
	return nil
}
