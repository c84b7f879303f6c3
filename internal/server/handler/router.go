package handler

import (
	"forge/internal/server/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret string
	Events    gin.HandlerFunc // optional SSE endpoint
}

func NewRouter(svc PipelineService, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", Healthz)

	h := NewPipelineHandler(svc, logger)
	g := r.Group("/", middleware.Identity(cfg.JWTSecret))
	g.POST("/pipeline", h.CreatePipeline)
	g.GET("/pipeline", h.ListPipelines)
	g.GET("/pipeline/:id", h.GetPipeline)
	if cfg.Events != nil {
		g.GET("/events", cfg.Events)
	}
	return r
}
