package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samargunners/par-delta-dashboard/internal/bootstrap"
	"github.com/samargunners/par-delta-dashboard/internal/transport/http/handler"
	"github.com/samargunners/par-delta-dashboard/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Log), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var refresher handler.RefreshPublisher
	if app.RefreshPublisher != nil {
		refresher = app.RefreshPublisher
	}
	ragHandler := handler.NewRAGHandler(app.RAG, refresher, app.Log)

	v1 := router.Group("/api/v1")
	ragGroup := v1.Group("/rag")
	ragGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	ragGroup.POST("/ask", ragHandler.Ask)
	ragGroup.POST("/retrieve", ragHandler.Retrieve)
	ragGroup.POST("/refresh", ragHandler.Refresh)
	ragGroup.GET("/status", ragHandler.Status)

	return router
}

// ShutdownTimeout bounds graceful shutdown of in-flight requests.
const ShutdownTimeout = 10 * time.Second
