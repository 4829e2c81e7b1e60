package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/carelane/docqueue/api/handlers"
	"github.com/carelane/docqueue/api/middleware"
)

// SetupRoutes wires all endpoints.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	docs := v1.Group("/documents")
	{
		docs.POST("", h.Queue.RegisterDocument)
		docs.GET("/:documentId", h.Queue.GetDocument)
	}

	jobs := v1.Group("/jobs")
	{
		jobs.POST("", h.Queue.EnqueueJob)
		jobs.GET("/:jobId", h.Queue.GetJob)
		jobs.POST("/:jobId/transition", h.Queue.TransitionJob)
	}

	v1.GET("/health/queue", h.Queue.QueueHealth)

	admin := v1.Group("/admin")
	{
		admin.POST("/reaper", h.Queue.RunReaper)
		admin.POST("/retry-sweep", h.Queue.RunRetrySweep)
	}
}
