package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/transcription-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")

	mediaGroup := group.Group("/media")
	mediaGroup.POST("/upload", r.handlers.Media.Upload)
	mediaGroup.GET("", r.handlers.Media.List)
	mediaGroup.GET("/events", r.handlers.Events.WebSocket)
	mediaGroup.GET("/events/stream", r.handlers.Events.Stream)
	mediaGroup.GET("/:id", r.handlers.Media.Get)
	mediaGroup.DELETE("/:id", r.handlers.Media.Delete)
	mediaGroup.PATCH("/:id/status", r.handlers.Media.UpdateStatus)
	mediaGroup.POST("/:id/transcribe", r.handlers.Media.Transcribe)
	mediaGroup.GET("/:id/transcription", r.handlers.Media.Transcription)
	mediaGroup.POST("/:id/summarize", r.handlers.Media.Summarize)
	mediaGroup.GET("/:id/summary", r.handlers.Media.Summary)

	group.GET("/queues", r.handlers.Queues.List)
}
