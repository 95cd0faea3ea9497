package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Vector store backends.
const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

type Config struct {
	Port string

	// Auth. Empty disables bearer auth on the API.
	APIKey string

	// Gemini
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbedModel     string
	EmbedDim             int
	LLMRequestsPerSecond float64

	// Vector store
	VectorBackend   string
	ChromemPath     string
	ChromemCompress bool
	PostgresURL     string

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentEmbed int
	EmbedBatchSize     int

	// Upload limits
	MaxUploadBytes    int64
	MaxFilesPerUpload int

	// Chunking defaults
	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Retrieval
	DefaultTopK   int
	MaxTopK       int
	MinSimilarity float64
	PreviewChars  int

	// State lifetimes
	JobTTL     time.Duration
	SessionTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PDFRAG_API_KEY"),

		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbedModel:     envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),
		EmbedDim:             envInt("EMBED_DIM", 768),
		LLMRequestsPerSecond: envFloat("LLM_REQUESTS_PER_SECOND", 5),

		VectorBackend:   strings.ToLower(envOr("VECTOR_BACKEND", BackendChromem)),
		ChromemPath:     envOr("CHROMEM_PATH", "./data/processed"),
		ChromemCompress: envBool("CHROMEM_COMPRESS", false),
		PostgresURL:     os.Getenv("POSTGRES_URL"),

		WorkerCount:        envInt("WORKER_COUNT", 2),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentEmbed: envInt("MAX_CONCURRENT_EMBED", 4),
		EmbedBatchSize:     envInt("EMBED_BATCH_SIZE", 50),

		MaxUploadBytes:    envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxFilesPerUpload: envInt("MAX_FILES_PER_UPLOAD", 20),

		DefaultChunkSize:    envInt("DEFAULT_CHUNK_SIZE", 1000),
		DefaultChunkOverlap: envInt("DEFAULT_CHUNK_OVERLAP", 200),

		DefaultTopK:   envInt("DEFAULT_TOP_K", 5),
		MaxTopK:       envInt("MAX_TOP_K", 10),
		MinSimilarity: envFloat("MIN_SIMILARITY", 0),
		PreviewChars:  envInt("PREVIEW_CHARS", 200),

		JobTTL:     envDuration("JOB_TTL", 1*time.Hour),
		SessionTTL: envDuration("SESSION_TTL", 24*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", "json")),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 50
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 768
	}
	if cfg.LLMRequestsPerSecond <= 0 {
		cfg.LLMRequestsPerSecond = 5
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxFilesPerUpload <= 0 {
		cfg.MaxFilesPerUpload = 20
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 1000
	}
	// Zero overlap is a legitimate setting.
	if cfg.DefaultChunkOverlap < 0 {
		cfg.DefaultChunkOverlap = 200
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 10
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 200
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.DefaultChunkOverlap >= c.DefaultChunkSize {
		return fmt.Errorf("DEFAULT_CHUNK_OVERLAP (%d) must be smaller than DEFAULT_CHUNK_SIZE (%d)", c.DefaultChunkOverlap, c.DefaultChunkSize)
	}
	if c.DefaultTopK > c.MaxTopK {
		return fmt.Errorf("DEFAULT_TOP_K (%d) exceeds MAX_TOP_K (%d)", c.DefaultTopK, c.MaxTopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("MIN_SIMILARITY must be within [0, 1], got %g", c.MinSimilarity)
	}
	switch c.VectorBackend {
	case BackendChromem:
	case BackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
