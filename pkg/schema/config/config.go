package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds configuration for database and model-client operations
type Config struct {
	// PostgreSQL
	PostgresURI string

	// Embeddings
	EmbeddingProvider   string // "ollama" or "vertex"
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	// Ollama (completion + default embedding backend)
	OllamaURL        string
	OllamaModel      string
	OllamaEmbedModel string
	OllamaTimeout    time.Duration

	// Vertex AI (when EmbeddingProvider = "vertex")
	GCPProjectID string
	GCPLocation  string
	VertexModel  string

	// Reranker HTTP service
	RerankerURL     string
	RerankerTimeout time.Duration

	// Morphological analyzer HTTP service
	MorphURL     string
	MorphEnabled bool
	MorphTimeout time.Duration
}

var (
	config *Config
	once   sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		config = loadConfig()
	})
	return config
}

func loadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),

		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIM", 768),
		EmbeddingTimeout:    getEnvSeconds("EMBEDDING_TIMEOUT_SEC", 5),

		OllamaURL:        getEnv("OLLAMA_URL", "http://ollama:11434"),
		OllamaModel:      getEnv("OLLAMA_MODEL", "llama3.1"),
		OllamaEmbedModel: getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaTimeout:    getEnvSeconds("OLLAMA_TIMEOUT_SEC", 60),

		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),
		GCPLocation:  getEnv("GCP_LOCATION", "us-central1"),
		VertexModel:  getEnv("VERTEX_MODEL", "gemini-embedding-001"),

		RerankerURL:     getEnv("RERANKER_URL", ""),
		RerankerTimeout: getEnvSeconds("RERANKER_TIMEOUT_SEC", 10),

		MorphURL:     getEnv("MORPH_URL", ""),
		MorphEnabled: getEnv("ENABLE_MORPH_ANALYZER", "1") == "1",
		MorphTimeout: getEnvSeconds("MORPH_TIMEOUT_SEC", 2),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return i
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue float64) time.Duration {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(defaultValue * float64(time.Second))
}
