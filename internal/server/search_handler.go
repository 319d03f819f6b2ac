package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
)

// SearchHandler serves POST /search.
type SearchHandler struct {
	engine Searcher
	links  FeedbackLinks
	log    *logrus.Logger
}

// NewSearchHandler creates the handler. links may be nil to disable
// review link generation.
func NewSearchHandler(engine Searcher, links FeedbackLinks, log *logrus.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, links: links, log: logger(log)}
}

type searchRequest struct {
	Query        string  `json:"query"`
	CollectionID string  `json:"collectionId"`
	OwnerID      string  `json:"ownerId"`
	ResourceID   string  `json:"resourceId"`
	Limit        int     `json:"limit"`
	MinScore     float64 `json:"minScore"`
	IsReview     bool    `json:"isReview"`
	UseFeedback  bool    `json:"useFeedback"`
	Analytics    bool    `json:"analytics"`
}

type searchResult struct {
	query.Result
	Feedback *feedbackLinks `json:"feedback,omitempty"`
}

type feedbackLinks struct {
	Upvote   string `json:"upvote"`
	Downvote string `json:"downvote"`
}

// Search handles POST /search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("invalid request: %v", err))
		return
	}

	resp, err := h.engine.Search(c.Request.Context(), query.Request{
		Query:        req.Query,
		CollectionID: req.CollectionID,
		OwnerID:      req.OwnerID,
		ResourceID:   req.ResourceID,
		TopK:         req.Limit,
		MinScore:     req.MinScore,
		UseFeedback:  req.UseFeedback,
		Analytics:    req.Analytics,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]searchResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = searchResult{Result: r}
		if req.IsReview && h.links != nil {
			if links := h.reviewLinks(c, req, r); links != nil {
				results[i].Feedback = links
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"result": results})
}

// reviewLinks mints a 24h opaque reference for voting on one result.
func (h *SearchHandler) reviewLinks(c *gin.Context, req searchRequest, r query.Result) *feedbackLinks {
	referenceID := uuid.New().String()
	link := &cache.FeedbackLink{
		Query:        req.Query,
		CollectionID: req.CollectionID,
		ChunkID:      r.ID,
		ResourceID:   r.Payload.ResourceID,
		OwnerID:      req.OwnerID,
	}
	if err := h.links.SetFeedbackLink(c.Request.Context(), referenceID, link); err != nil {
		h.log.WithError(err).Warn("Failed to store feedback link")
		return nil
	}
	return &feedbackLinks{
		Upvote:   fmt.Sprintf("/feedback/vote/%s/upvote", referenceID),
		Downvote: fmt.Sprintf("/feedback/vote/%s/downvote", referenceID),
	}
}
