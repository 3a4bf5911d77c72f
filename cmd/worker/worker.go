package main

import (
	"context"
	"log"
	"strings"

	"ingestloom-backend/internal/ai"
	"ingestloom-backend/internal/config"
	"ingestloom-backend/internal/indexer"
	"ingestloom-backend/internal/logger"
	"ingestloom-backend/internal/queue"
	"ingestloom-backend/internal/storage"
	"ingestloom-backend/internal/vectorstore"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	store, err := newVectorStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}

	uploads := storage.NewLocalStore(cfg.UploadBaseDir)
	ix := indexer.New(cfg, embedder, store, uploads)

	redisOpt := asynq.RedisClientOpt{
		Addr:     redisAddr(cfg),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ix)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIndexUploads, processor.HandleIndexUploads)

	logger.Info("starting indexing worker", "redis", redisOpt.Addr)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

func redisAddr(cfg *config.Config) string {
	addr := cfg.RedisURL
	addr = strings.TrimPrefix(addr, "redis://")
	addr = strings.TrimPrefix(addr, "rediss://")
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

func newVectorStore(cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case "mongo":
		return vectorstore.NewMongo(context.Background(), vectorstore.MongoConfig{
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
