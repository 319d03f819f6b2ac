package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig wires the handlers into the gin engine.
type RouterConfig struct {
	APIKey     string
	Collection *CollectionHandler
	Resource   *ResourceHandler
	Search     *SearchHandler
	Feedback   *FeedbackHandler
	Eval       *EvalHandler
	Logger     *logrus.Logger
}

// NewRouter builds the HTTP routing table.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Public surface: landing, health, metrics, and the review vote links
	// sent out in emails.
	router.GET("/", landing)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/feedback/vote/:refId/:action", cfg.Feedback.VoteByReference)

	api := router.Group("/", apiKeyAuth(cfg.APIKey, cfg.Logger))
	{
		api.POST("/collection", cfg.Collection.Create)
		api.GET("/collection/:id", cfg.Collection.Get)
		api.PUT("/collection/:id", cfg.Collection.Update)
		api.GET("/collection/:id/resources", cfg.Collection.ListResources)

		api.POST("/resource", cfg.Resource.Create)
		api.GET("/resource/:id", cfg.Resource.Get)
		api.GET("/resource/:id/chunks", cfg.Resource.Chunks)
		api.PUT("/resource/:id", cfg.Resource.Update)
		api.DELETE("/resource/:id", cfg.Resource.Delete)

		api.POST("/search", cfg.Search.Search)
		api.POST("/feedback/vote", cfg.Feedback.Vote)

		api.GET("/utility/encoding-models", UtilityHandler{}.EncodingModels)

		api.POST("/eval/cases", cfg.Eval.CreateCase)
		api.GET("/eval/cases/:collectionId/:ownerId", cfg.Eval.ListCases)
		api.POST("/eval/run/:datasetId/:ownerId", cfg.Eval.Run)
	}

	return router
}

// apiKeyAuth validates the static API key header on business endpoints.
// An empty configured key disables the check (local development).
func apiKeyAuth(apiKey string, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("x-api-key") != apiKey {
			if log != nil {
				log.WithField("path", c.Request.URL.Path).Warn("Rejected request with bad API key")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid api key",
				"code":    "unauthorized",
			})
			return
		}
		c.Next()
	}
}

func landing(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html>
<head><title>Hippocampus</title></head>
<body>
<h1>Hippocampus</h1>
<p>Semantic indexing and retrieval API. See <code>/utility/encoding-models</code> for available encoders.</p>
</body>
</html>`)
}
