package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Tutor     *TutorHandler
	Health    *HealthHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/documents", deps.Documents.Submit)
	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.GET("/documents/:id/chunks", deps.Documents.Chunks)
	api.POST("/documents/:id/reingest", deps.Documents.Reingest)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.POST("/ask", deps.Tutor.Ask)
	api.GET("/traces", deps.Tutor.Traces)

	api.GET("/health", deps.Health.Check)
}
