package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// API Settings
	APITitle   string
	APIVersion string
	APIPrefix  string
	Port       string

	// CORS
	CORSOrigins []string

	// Retrieval pipeline
	TrgmSimilarityThreshold float64
	MinCitationRank         float64
	MinCitationTrgm         float64
	MinCitationKeywordHits  int
	CitationLimit           int
	MaxQueryTerms           int
	SynonymsPerTerm         int

	// Vector search
	VectorEnabled    bool
	VectorTopK       int
	VectorWindowSize int
	VectorBackend    string // "pgvector" or "vertex"

	// Vertex AI Vector Search settings (used when VectorBackend = "vertex")
	VertexProjectID            string
	VertexLocation             string
	VertexIndexEndpointID      string
	VertexDeployedIndexID      string
	VertexPublicEndpointDomain string

	// Reranker
	RerankMode       string // "model" or "off"
	RerankCandidates int

	// Conversation memory
	RecentTurns         int
	SummaryTriggerTurns int
	SummaryMaxChars     int

	// Ops-only fallback: serve the curated comfort verses when a needed
	// citation could not be retrieved. Off by default so retrieval
	// failures stay visible.
	ForceFallbackCitations bool

	// Telemetry
	EventLogPath    string
	LogIDSalt       string
	LLMSlowMs       int
	RetrievalSlowMs int
	SearchSlowMs    int

	// Shutdown
	ShutdownTimeout time.Duration
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
	trgm := getEnvFloat("TRGM_SIMILARITY_THRESHOLD", 0.3)
	return &Config{
		APITitle:    getEnv("API_TITLE", "Counsel Scripture API"),
		APIVersion:  getEnv("API_VERSION", "1.0.0"),
		APIPrefix:   getEnv("API_PREFIX", "/v1"),
		Port:        getEnv("PORT", "9000"),
		CORSOrigins: parseCORSOrigins(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		TrgmSimilarityThreshold: trgm,
		MinCitationRank:         getEnvFloat("MIN_CITATION_RANK", 0.05),
		MinCitationTrgm:         getEnvFloat("MIN_CITATION_TRGM", trgm),
		MinCitationKeywordHits:  getEnvInt("MIN_CITATION_KEYWORD_HITS", 1),
		CitationLimit:           getEnvInt("CITATION_LIMIT", 2),
		MaxQueryTerms:           getEnvInt("MAX_QUERY_TERMS", 20),
		SynonymsPerTerm:         getEnvInt("SYNONYMS_PER_TERM", 3),

		VectorEnabled:    getEnv("VECTOR_ENABLED", "1") == "1",
		VectorTopK:       getEnvInt("VECTOR_TOPK", 50),
		VectorWindowSize: getEnvInt("VECTOR_WINDOW_SIZE", 5),
		VectorBackend:    getEnv("VECTOR_BACKEND", "pgvector"),

		VertexProjectID:            getEnv("VERTEX_PROJECT_ID", ""),
		VertexLocation:             getEnv("VERTEX_LOCATION", "us-central1"),
		VertexIndexEndpointID:      getEnv("VERTEX_INDEX_ENDPOINT_ID", ""),
		VertexDeployedIndexID:      getEnv("VERTEX_DEPLOYED_INDEX_ID", ""),
		VertexPublicEndpointDomain: getEnv("VERTEX_PUBLIC_ENDPOINT_DOMAIN", ""),

		RerankMode:       getEnv("RERANK_MODE", "model"),
		RerankCandidates: getEnvInt("RERANK_CANDIDATES", 30),

		RecentTurns:         getEnvInt("RECENT_TURNS", 8),
		SummaryTriggerTurns: getEnvInt("SUMMARY_TRIGGER_TURNS", 30),
		SummaryMaxChars:     getEnvInt("SUMMARY_MAX_CHARS", 800),

		ForceFallbackCitations: getEnv("FORCE_FALLBACK_CITATIONS", "0") == "1",

		EventLogPath:    getEnv("EVENT_LOG_PATH", "logs/events.log"),
		LogIDSalt:       getEnv("LOG_ID_SALT", ""),
		LLMSlowMs:       getEnvInt("LLM_SLOW_MS", 2000),
		RetrievalSlowMs: getEnvInt("RETRIEVAL_SLOW_MS", 500),
		SearchSlowMs:    getEnvInt("SEARCH_SLOW_MS", 500),

		ShutdownTimeout: 10 * time.Second,
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return defaultValue
		}
		return f
	}
	return defaultValue
}

func parseCORSOrigins(value string) []string {
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
