// Package server exposes the HTTP API: collection and resource CRUD,
// search, feedback voting, encoding-model discovery and evaluation.
package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Walkover-Web-Solution/hippocampus/internal/apperr"
	"github.com/Walkover-Web-Solution/hippocampus/internal/cache"
	"github.com/Walkover-Web-Solution/hippocampus/internal/models"
	"github.com/Walkover-Web-Solution/hippocampus/internal/query"
)

// Store is the document-store surface the handlers use.
type Store interface {
	CreateCollection(ctx context.Context, c *models.Collection) error
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
	UpdateCollectionSettings(ctx context.Context, id string, settings models.CollectionSettings) (*models.Collection, error)

	CreateResource(ctx context.Context, r *models.Resource) error
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	ListResources(ctx context.Context, collectionID, ownerID string, withContent bool) ([]models.Resource, error)
	UpdateResource(ctx context.Context, id string, set bson.M) (*models.Resource, error)
	SoftDeleteResource(ctx context.Context, id string) (*models.Resource, error)
	ListChunks(ctx context.Context, resourceID string) ([]models.Chunk, error)
}

// Searcher is the query engine surface.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*query.Response, error)
}

// FeedbackLinks stores and resolves review vote links.
type FeedbackLinks interface {
	SetFeedbackLink(ctx context.Context, referenceID string, link *cache.FeedbackLink) error
	GetFeedbackLink(ctx context.Context, referenceID string) (*cache.FeedbackLink, error)
}

// SettingsInvalidator drops cached collection settings after updates.
type SettingsInvalidator interface {
	Invalidate(ctx context.Context, id string)
}

// respondError writes the structured error envelope.
func respondError(c *gin.Context, err error) {
	c.JSON(apperr.Status(err), gin.H{
		"status":  "error",
		"message": err.Error(),
		"code":    apperr.Code(err),
	})
}

func logger(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return logrus.New()
	}
	return l
}
