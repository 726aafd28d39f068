// Package config provides configuration management for the ENT desk service.
// It loads settings from environment variables with the ENTDESK_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Triage    TriageConfig
	Scheduler SchedulerConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int     // Server port (default: 6480)
	Host         string  // Server host (default: 127.0.0.1)
	SecurityMode string  // Security mode: development, production (default: development)
	APIToken     string  // API authentication token (required in production mode)
	RateLimit    float64 // Requests per second per client (default: 10)
	RateBurst    int     // Burst size for the rate limiter (default: 20)
}

// StorageConfig contains index and appointment storage configuration.
type StorageConfig struct {
	IndexEngine string // Vector index engine: memory, postgres (default: memory)
	PostgresDSN string // Postgres connection string (required when IndexEngine is postgres)
	DataPath    string // Path to data directory for the appointment database and events (default: ./data)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	OllamaURL      string        // Ollama API URL (default: http://localhost:11434)
	Model          string        // Embedding model name (default: nomic-embed-text)
	Dimension      int           // Embedding vector dimension (default: 768)
	Timeout        time.Duration // Per-request timeout (default: 15s)
	RequestsPerSec float64       // Outbound request rate limit, 0 disables (default: 0)
}

// RetrievalConfig contains ingestion and search configuration.
type RetrievalConfig struct {
	ChunkSize    int // Chunk window size in words (default: 300)
	ChunkOverlap int // Chunk window overlap in words (default: 50)
	TopK         int // Candidates returned per query (default: 5)
	MaxAttempts  int // Embedding retry attempts (default: 3)
}

// TriageConfig contains triage engine configuration.
type TriageConfig struct {
	Threshold      float64 // Minimum confidence to answer from the knowledge base (default: 0.35)
	VocabularyPath string  // Optional YAML severity vocabulary file; empty uses the built-in vocabulary
}

// SchedulerConfig contains appointment scheduler configuration.
type SchedulerConfig struct {
	DedupeWindow time.Duration // Window in which identical submissions dedupe (default: 10m)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the ENTDESK_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("ENTDESK_PORT", 6480),
			Host:         getEnv("ENTDESK_HOST", "127.0.0.1"),
			SecurityMode: getEnv("ENTDESK_SECURITY_MODE", "development"),
			APIToken:     getEnv("ENTDESK_API_TOKEN", ""),
			RateLimit:    getEnvFloat("ENTDESK_RATE_LIMIT", 10),
			RateBurst:    getEnvInt("ENTDESK_RATE_BURST", 20),
		},
		Storage: StorageConfig{
			IndexEngine: getEnv("ENTDESK_INDEX_ENGINE", "memory"),
			PostgresDSN: getEnv("ENTDESK_POSTGRES_DSN", ""),
			DataPath:    getEnv("ENTDESK_DATA_PATH", "./data"),
		},
		Embedding: EmbeddingConfig{
			OllamaURL:      getEnv("ENTDESK_OLLAMA_URL", "http://localhost:11434"),
			Model:          getEnv("ENTDESK_EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension:      getEnvInt("ENTDESK_EMBEDDING_DIMENSION", 768),
			Timeout:        getEnvDuration("ENTDESK_EMBEDDING_TIMEOUT", 15*time.Second),
			RequestsPerSec: getEnvFloat("ENTDESK_EMBEDDING_RATE_LIMIT", 0),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    getEnvInt("ENTDESK_CHUNK_SIZE", 300),
			ChunkOverlap: getEnvInt("ENTDESK_CHUNK_OVERLAP", 50),
			TopK:         getEnvInt("ENTDESK_TOP_K", 5),
			MaxAttempts:  getEnvInt("ENTDESK_EMBED_MAX_ATTEMPTS", 3),
		},
		Triage: TriageConfig{
			Threshold:      getEnvFloat("ENTDESK_TRIAGE_THRESHOLD", 0.35),
			VocabularyPath: getEnv("ENTDESK_VOCABULARY_PATH", ""),
		},
		Scheduler: SchedulerConfig{
			DedupeWindow: getEnvDuration("ENTDESK_DEDUPE_WINDOW", 10*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.SecurityMode == "production" && c.Server.APIToken == "" {
		return fmt.Errorf("config: ENTDESK_API_TOKEN is required in production mode")
	}
	switch c.Storage.IndexEngine {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: ENTDESK_POSTGRES_DSN is required for the postgres index engine")
		}
	default:
		return fmt.Errorf("config: unknown index engine %q", c.Storage.IndexEngine)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("config: chunk overlap %d must be smaller than chunk size %d",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	if c.Triage.Threshold < 0 || c.Triage.Threshold > 1 {
		return fmt.Errorf("config: triage threshold %f outside [0,1]", c.Triage.Threshold)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "30s", "10m")
// or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
