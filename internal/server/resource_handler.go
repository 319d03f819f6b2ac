package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// ResourceHandler serves resource CRUD and enqueues ingest events.
type ResourceHandler struct {
	store       Store
	broker      messaging.Broker
	ingestQueue string
	log         *logrus.Logger
}

// NewResourceHandler creates the handler.
func NewResourceHandler(store Store, broker messaging.Broker, ingestQueue string, log *logrus.Logger) *ResourceHandler {
	return &ResourceHandler{store: store, broker: broker, ingestQueue: ingestQueue, log: logger(log)}
}

type createResourceRequest struct {
	CollectionID string                 `json:"collectionId" binding:"required"`
	OwnerID      string                 `json:"ownerId"`
	Title        string                 `json:"title"`
	URL          string                 `json:"url"`
	Content      string                 `json:"content"`
	Description  string                 `json:"description"`
	Metadata     map[string]any         `json:"metadata"`
	Chunking     *models.ChunkOverrides `json:"chunking"`
}

// Create handles POST /resource. A resource created with inline content
// goes straight to the chunk stage; one created with a URL starts at load.
func (h *ResourceHandler) Create(c *gin.Context) {
	var req createResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}
	if req.Content == "" && req.URL == "" {
		respondError(c, apperr.Validation("either content or url is required"))
		return
	}
	if _, err := h.store.GetCollection(c.Request.Context(), req.CollectionID); err != nil {
		respondError(c, err)
		return
	}

	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = models.DefaultOwnerID
	}

	resource := &models.Resource{
		ID:           uuid.New().String(),
		CollectionID: req.CollectionID,
		OwnerID:      ownerID,
		Title:        req.Title,
		URL:          req.URL,
		Content:      req.Content,
		Description:  req.Description,
		Metadata:     req.Metadata,
		Overrides:    req.Chunking,
	}
	if err := h.store.CreateResource(c.Request.Context(), resource); err != nil {
		respondError(c, err)
		return
	}

	event := models.IngestEvent{
		Version: models.EventVersion,
		Event:   models.EventChunk,
		Data: models.IngestEventData{
			ResourceID:   resource.ID,
			CollectionID: resource.CollectionID,
			OwnerID:      resource.OwnerID,
			URL:          resource.URL,
		},
	}
	if req.Content == "" {
		event.Event = models.EventLoad
	}
	if err := h.broker.Publish(c.Request.Context(), h.ingestQueue, event); err != nil {
		respondError(c, apperr.Unavailable("broker", err))
		return
	}

	h.log.WithFields(logrus.Fields{
		"resource":   resource.ID,
		"collection": resource.CollectionID,
		"event":      event.Event,
	}).Info("Resource created")
	c.JSON(http.StatusCreated, resource)
}

// Get handles GET /resource/:id.
func (h *ResourceHandler) Get(c *gin.Context) {
	resource, err := h.store.GetResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resource)
}

// Chunks handles GET /resource/:id/chunks.
func (h *ResourceHandler) Chunks(c *gin.Context) {
	if _, err := h.store.GetResource(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	chunks, err := h.store.ListChunks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

type updateResourceRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	URL         *string                `json:"url"`
	Content     *string                `json:"content"`
	Metadata    map[string]any         `json:"metadata"`
	Chunking    *models.ChunkOverrides `json:"chunking"`
}

// Update handles PUT /resource/:id. Content or URL changes re-run the
// pipeline for the resource.
func (h *ResourceHandler) Update(c *gin.Context) {
	var req updateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	set := bson.M{}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.URL != nil {
		set["url"] = *req.URL
	}
	if req.Content != nil {
		set["content"] = *req.Content
	}
	if req.Metadata != nil {
		set["metadata"] = req.Metadata
	}
	if req.Chunking != nil {
		set["chunking"] = req.Chunking
	}
	if len(set) == 0 {
		respondError(c, apperr.Validation("no fields to update"))
		return
	}

	resource, err := h.store.UpdateResource(c.Request.Context(), c.Param("id"), set)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Content != nil || req.URL != nil {
		event := models.IngestEvent{
			Version: models.EventVersion,
			Event:   models.EventChunk,
			Data: models.IngestEventData{
				ResourceID:   resource.ID,
				CollectionID: resource.CollectionID,
				OwnerID:      resource.OwnerID,
				URL:          resource.URL,
			},
		}
		if req.Content == nil {
			event.Event = models.EventLoad
		}
		if err := h.broker.Publish(c.Request.Context(), h.ingestQueue, event); err != nil {
			h.log.WithError(err).Warn("Failed to enqueue re-index event")
		}
	}

	c.JSON(http.StatusOK, resource)
}

// Delete handles DELETE /resource/:id: soft-delete plus an async purge of
// the stores.
func (h *ResourceHandler) Delete(c *gin.Context) {
	resource, err := h.store.SoftDeleteResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	event := models.IngestEvent{
		Version: models.EventVersion,
		Event:   models.EventDelete,
		Data: models.IngestEventData{
			ResourceID:   resource.ID,
			CollectionID: resource.CollectionID,
			OwnerID:      resource.OwnerID,
		},
	}
	if err := h.broker.Publish(c.Request.Context(), h.ingestQueue, event); err != nil {
		respondError(c, apperr.Unavailable("broker", err))
		return
	}

	c.JSON(http.StatusOK, resource)
}
