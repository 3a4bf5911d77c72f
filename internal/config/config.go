package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Upload storage
	UploadBaseDir       string
	MaxFileSize         int64
	SyncProcessingLimit int64

	// Vector store
	VectorBackend   string // "qdrant" (default), "mongo", "memory"
	QdrantURL       string
	QdrantAPIKey    string
	CollectionName  string
	MongoURI        string
	DBName          string
	VectorIndexName string

	// Embeddings / chat providers
	EmbeddingsProvider    string // "openai" (default), "google"
	OpenAIAPIKey          string
	OpenAIAPIURL          string
	OpenAIEmbeddingsModel string
	OpenAIChatModel       string
	EmbedBatchSize        int
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	GeminiChatModel       string
	ModelTier             string

	// Text chunking for plain-text loaders
	MaxChunkSize int
	ChunkOverlap int
	MinChunkSize int

	// Crawling
	CrawlTimeout time.Duration

	// Redis (rate limiting + task queue)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Background re-index sweep; zero disables it
	ReindexInterval time.Duration

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		UploadBaseDir:       getEnv("UPLOAD_DIR", "./data/uploads"),
		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600),        // 100MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // 20MB; larger ingests are queued

		VectorBackend:   getEnv("VECTOR_BACKEND", "qdrant"),
		QdrantURL:       getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:    getEnv("QDRANT_API_KEY", ""),
		CollectionName:  getEnv("QDRANT_COLLECTION", "ingestloom-uploads"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017/ingestloom"),
		DBName:          getEnv("DB_NAME", "ingestloom"),
		VectorIndexName: getEnv("MONGODB_VECTOR_INDEX", "segments_vector"),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "openai"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:          getEnv("OPENAI_API_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-large"),
		OpenAIChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 10),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiChatModel:       getEnv("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		ModelTier:             getEnv("MODEL_TIER", "free"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 4000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		MinChunkSize: getEnvInt("MIN_CHUNK_SIZE", 100),

		CrawlTimeout: time.Duration(getEnvInt("CRAWL_TIMEOUT_SECONDS", 30)) * time.Second,

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ReindexInterval: time.Duration(getEnvInt("REINDEX_INTERVAL_MINUTES", 0)) * time.Minute,

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	switch cfg.VectorBackend {
	case "qdrant", "mongo", "memory":
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND: %s", cfg.VectorBackend)
	}

	switch cfg.EmbeddingsProvider {
	case "openai", "google":
	default:
		return nil, fmt.Errorf("unknown EMBEDDINGS_PROVIDER: %s", cfg.EmbeddingsProvider)
	}

	return cfg, nil
}

// EmbeddingsCredential returns the API key for the configured embeddings
// provider. Empty means indexing must short-circuit before touching files.
func (c *Config) EmbeddingsCredential() string {
	if c.EmbeddingsProvider == "google" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
