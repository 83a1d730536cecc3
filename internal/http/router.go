// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medbid/internal/http/handlers"
	"medbid/internal/http/middleware"
	"medbid/internal/modules/assignment"
	"medbid/internal/modules/provider"
	"medbid/internal/modules/ranking"
	"medbid/internal/modules/scoring"
)

type RouterDeps struct {
	Orchestrator *assignment.Orchestrator
	Catalog      *provider.Catalog
	Ranking      *ranking.Service
	Registry     scoring.Registry
	Logger       *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Actor(), middleware.Logging(logger))

	api := r.Group("/api")

	orderHandler := handlers.NewOrderHandler(deps.Orchestrator)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/broadcast", orderHandler.Broadcast)
	api.POST("/orders/:id/rebroadcast", orderHandler.Rebroadcast)
	api.GET("/orders/:id/notified", orderHandler.Notified)
	api.GET("/orders/:id/evaluation", orderHandler.Evaluation)
	api.POST("/orders/:id/award", orderHandler.Award)
	api.POST("/orders/:id/auto-award", orderHandler.AutoAward)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/status", orderHandler.Advance)

	bidHandler := handlers.NewBidHandler(deps.Orchestrator)
	api.POST("/orders/:id/bids", bidHandler.Submit)
	api.GET("/orders/:id/bids", bidHandler.List)
	api.POST("/bids/:id/respond", bidHandler.Respond)

	providerHandler := handlers.NewProviderHandler(deps.Catalog, deps.Ranking)
	api.PUT("/providers/:id", providerHandler.Upsert)
	api.GET("/providers/:id", providerHandler.Get)
	api.POST("/providers/rank", providerHandler.Rank)

	scoringHandler := handlers.NewScoringHandler(deps.Registry)
	api.POST("/scoring-configs", scoringHandler.Create)
	api.PUT("/scoring-configs/:name", scoringHandler.Update)
	api.GET("/scoring-configs/:name/versions", scoringHandler.Versions)
	api.POST("/scoring-configs/:name/versions/:version/activate", scoringHandler.Activate)
	api.GET("/scoring-configs/active/:category", scoringHandler.Active)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
