package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tutorat/internal/bootstrap"
	"tutorat/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	searchHandler := handler.NewSearchHandler(app.Retrieval)
	adminHandler := handler.NewAdminHandler(
		app.Documents,
		app.Ingest,
		app.ReindexPublisher,
		app.Qdrant,
		app.SearchCache,
	)

	v1 := router.Group("/api/v1")
	v1.POST("/search", searchHandler.Search)
	v1.GET("/stats", adminHandler.Stats)

	admin := v1.Group("/admin")
	admin.POST("/documents", adminHandler.UpsertDocument)
	admin.GET("/documents", adminHandler.ListDocuments)
	admin.GET("/documents/:id", adminHandler.GetDocument)
	admin.DELETE("/documents/:id", adminHandler.DeleteDocument)
	admin.POST("/ingest", adminHandler.Ingest)
	admin.POST("/reindex/:id", adminHandler.Reindex)

	return router
}
