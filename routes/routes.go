// Package routes wires the HTTP API: ingestion, chat and file listing.
package routes

import (
	"net/http"

	"ingestloom-backend/internal/chat"
	"ingestloom-backend/internal/config"
	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// Deps carries everything the handlers need. Queue may be nil, in which case
// oversized ingests are processed inline instead of deferred.
type Deps struct {
	Cfg     *config.Config
	Storage storage.Store
	Indexer *indexer.Indexer
	Chat    *chat.Orchestrator
	Queue   *asynq.Client
}

// Setup registers all API routes on the router.
func Setup(router *gin.Engine, deps *Deps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	{
		api.POST("/ingest", handleIngest(deps))
		api.POST("/chat", handleChat(deps))
		api.GET("/user-files", handleUserFiles(deps))
	}
}
