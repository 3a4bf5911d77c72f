package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ingestloom-backend/internal/ai"
	"ingestloom-backend/internal/chat"
	"ingestloom-backend/internal/config"
	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/retrieval"
	"ingestloom-backend/internal/storage"
	"ingestloom-backend/internal/telemetry"
	"ingestloom-backend/internal/vectorstore"
	"ingestloom-backend/middleware"
	"ingestloom-backend/routes"
	"ingestloom-backend/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("ingestloom-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
		} else {
			defer shutdown()
		}
	}

	store, err := newVectorStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	streamer, err := ai.NewChatStreamer(cfg)
	if err != nil {
		log.Fatal("Failed to initialize chat streamer:", err)
	}

	uploads := storage.NewLocalStore(cfg.UploadBaseDir)
	ix := indexer.New(cfg, embedder, store, uploads)
	engine := retrieval.NewEngine(embedder, store)
	orchestrator := chat.NewOrchestrator(engine, streamer)

	// Redis is optional: without it there is no rate limiting and no
	// deferred indexing, but the API still works.
	var queueClient *asynq.Client
	rdb, redisErr := config.NewRedisClient(cfg)
	if redisErr != nil {
		logger.Warn("Redis unavailable; rate limiting and deferred indexing disabled", "error", redisErr)
	} else {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	routes.Setup(router, &routes.Deps{
		Cfg:     cfg,
		Storage: uploads,
		Indexer: ix,
		Chat:    orchestrator,
		Queue:   queueClient,
	})

	sweeper := services.NewReindexSweeper(uploads, ix, cfg.ReindexInterval)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start re-index sweep", "error", err)
	}
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "vector_backend", cfg.VectorBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}

func newVectorStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return vectorstore.NewMongo(ctx, vectorstore.MongoConfig{
			URI:        cfg.MongoURI,
			DBName:     cfg.DBName,
			Collection: cfg.CollectionName,
			IndexName:  cfg.VectorIndexName,
		})
	case "memory":
		return vectorstore.NewMemory(), nil
	default:
		return vectorstore.NewQdrant(vectorstore.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
		}), nil
	}
}
