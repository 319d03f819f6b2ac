package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/messaging"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
)

// FeedbackHandler serves the vote endpoints.
type FeedbackHandler struct {
	broker        messaging.Broker
	links         FeedbackLinks
	feedbackQueue string
	log           *logrus.Logger
}

// NewFeedbackHandler creates the handler.
func NewFeedbackHandler(broker messaging.Broker, links FeedbackLinks, feedbackQueue string, log *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{broker: broker, links: links, feedbackQueue: feedbackQueue, log: logger(log)}
}

type voteRequest struct {
	CollectionID string `json:"collectionId"`
	Query        string `json:"query"`
	ChunkID      string `json:"chunkId"`
	ResourceID   string `json:"resourceId"`
	Action       string `json:"action"`
	OwnerID      string `json:"ownerId"`
}

// Vote handles POST /feedback/vote.
func (h *FeedbackHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}
	if req.CollectionID == "" || req.Query == "" || req.ChunkID == "" {
		respondError(c, apperr.Validation("collectionId, query and chunkId are required"))
		return
	}
	if req.Action != models.ActionUpvote && req.Action != models.ActionDownvote {
		respondError(c, apperr.Validation("action must be upvote or downvote"))
		return
	}

	event := models.FeedbackEvent{
		Version:      models.EventVersion,
		Query:        req.Query,
		ChunkID:      req.ChunkID,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		CollectionID: req.CollectionID,
		OwnerID:      req.OwnerID,
	}
	if err := h.broker.Publish(c.Request.Context(), h.feedbackQueue, event); err != nil {
		respondError(c, apperr.Unavailable("broker", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "feedback recorded"})
}

// VoteByReference handles GET /feedback/vote/:refId/:action — the review
// links minted by search. Expired links return 404.
func (h *FeedbackHandler) VoteByReference(c *gin.Context) {
	action := c.Param("action")
	if action != models.ActionUpvote && action != models.ActionDownvote {
		respondError(c, apperr.Validation("action must be upvote or downvote"))
		return
	}

	link, err := h.links.GetFeedbackLink(c.Request.Context(), c.Param("refId"))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			respondError(c, apperr.NotFound("feedback link expired or unknown"))
			return
		}
		respondError(c, apperr.Unavailable("cache", err))
		return
	}

	event := models.FeedbackEvent{
		Version:      models.EventVersion,
		Query:        link.Query,
		ChunkID:      link.ChunkID,
		ResourceID:   link.ResourceID,
		Action:       action,
		CollectionID: link.CollectionID,
		OwnerID:      link.OwnerID,
	}
	if err := h.broker.Publish(c.Request.Context(), h.feedbackQueue, event); err != nil {
		respondError(c, apperr.Unavailable("broker", err))
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK,
		"<html><body><h3>Thanks!</h3><p>Your %s was recorded.</p></body></html>", action)
}
