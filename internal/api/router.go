package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/healthcheck", h.Health)

	api := r.Group("/api")
	api.GET("/models", h.ListModels)

	sessions := api.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.POST("", h.CreateSession)

	s := sessions.Group("/:id")
	s.GET("", h.GetSession)
	s.DELETE("", h.DeleteSession)
	s.PUT("/settings", h.UpdateSettings)
	s.DELETE("/error", h.DismissError)
	s.GET("/export", h.Export)
	s.GET("/events", h.Events)

	s.POST("/personas", h.AddPersona)
	s.PATCH("/personas/:pid", h.UpdatePersona)
	s.DELETE("/personas/:pid", h.DeletePersona)
	s.POST("/personas/:pid/sources", h.UploadPersonaSources)
	s.POST("/personas/:pid/links", h.AddPersonaLink)
	s.DELETE("/personas/:pid/sources/:sid", h.RemovePersonaSource)
	s.POST("/personas/:pid/analyze", h.AnalyzePersona)

	s.PATCH("/show", h.UpdateShow)
	s.POST("/show/sources", h.UploadContextSources)
	s.POST("/show/links", h.AddContextLink)
	s.DELETE("/show/sources/:sid", h.RemoveContextSource)
	s.POST("/show/analyze", h.AnalyzeShowContext)

	s.POST("/script/generate", h.GenerateScript)
	s.POST("/script/lines/:lid/refine", h.RefineLine)
	s.POST("/script/continue", h.ContinueScript)

	s.POST("/search", h.Search)

	s.POST("/steps/next", h.NextStep)
	s.POST("/steps/prev", h.PrevStep)
	s.POST("/steps/:step", h.GoToStep)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
