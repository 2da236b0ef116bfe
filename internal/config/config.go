package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath           string
	VectorBackend    string
	QdrantURL        string
	QdrantCollection string

	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string

	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	VectorSize        int
	EmbedRetries      int
	EmbedRPS          float64

	RAG RAGConfig

	AliasesFile string
}

// RAGConfig holds retrieval and prompt assembly tuning.
type RAGConfig struct {
	ContextBudgetTokens int
	MaxHistoryTurns     int
	RetrievalK          int
	Oversample          int
	TopKGroups          int
	MaxSnippetsPerGroup int
	DiversityLambda     float64
	MinSimilarity       float64
}

// Vector backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// A .env file in the current directory or one of its parents is loaded first;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		APIPort:           getEnv("API_PORT", "9000"),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DBPath:            getEnv("DB_PATH", "./data/docrag.db"),
		VectorBackend:     strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:         getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:  getEnv("QDRANT_COLLECTION", "chunks"),
		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderLocal)),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModel:          getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:         getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderLocal)),
		EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:   getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "dummy-key")),
		AliasesFile:       getEnv("ALIASES_FILE", ""),
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.VectorBackend != BackendQdrant && cfg.VectorBackend != BackendMemory {
		return nil, fmt.Errorf("VECTOR_BACKEND must be %s or %s, got %q", BackendQdrant, BackendMemory, cfg.VectorBackend)
	}
	for key, provider := range map[string]string{"LLM_PROVIDER": cfg.LLMProvider, "EMBEDDING_PROVIDER": cfg.EmbeddingProvider} {
		if provider != ProviderOpenAI && provider != ProviderLocal {
			return nil, fmt.Errorf("%s must be %s or %s, got %q", key, ProviderOpenAI, ProviderLocal, provider)
		}
	}

	// Must match the output size of the embeddings model. Changing it
	// requires recreating the vector collection.
	vectorSizeStr := getEnv("EMBEDDING_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required")
	}
	if cfg.VectorSize, err = positiveInt("EMBEDDING_VECTOR_SIZE", vectorSizeStr); err != nil {
		return nil, err
	}

	if cfg.EmbedRetries, err = positiveInt("EMBEDDING_RETRIES", getEnv("EMBEDDING_RETRIES", "3")); err != nil {
		return nil, err
	}
	if cfg.EmbedRPS, err = nonNegativeFloat("EMBEDDING_RPS", getEnv("EMBEDDING_RPS", "0")); err != nil {
		return nil, err
	}

	if cfg.RAG, err = loadRAG(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// DefaultRAG returns the retrieval tuning used when no overrides are set.
func DefaultRAG() RAGConfig {
	return RAGConfig{
		ContextBudgetTokens: 3000,
		MaxHistoryTurns:     6,
		RetrievalK:          12,
		Oversample:          5,
		TopKGroups:          5,
		MaxSnippetsPerGroup: 3,
		DiversityLambda:     0.7,
		MinSimilarity:       0.2,
	}
}

func loadRAG() (RAGConfig, error) {
	rag := DefaultRAG()
	ints := []struct {
		key string
		dst *int
	}{
		{"CONTEXT_BUDGET_TOKENS", &rag.ContextBudgetTokens},
		{"MAX_HISTORY_TURNS", &rag.MaxHistoryTurns},
		{"RETRIEVAL_K", &rag.RetrievalK},
		{"RETRIEVAL_OVERSAMPLE", &rag.Oversample},
		{"TOP_K_GROUPS", &rag.TopKGroups},
		{"MAX_SNIPPETS_PER_GROUP", &rag.MaxSnippetsPerGroup},
	}
	for _, v := range ints {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		n, err := positiveInt(v.key, raw)
		if err != nil {
			return RAGConfig{}, err
		}
		*v.dst = n
	}

	if raw := os.Getenv("DIVERSITY_LAMBDA"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			return RAGConfig{}, fmt.Errorf("DIVERSITY_LAMBDA must be a number between 0 and 1")
		}
		rag.DiversityLambda = f
	}
	if raw := os.Getenv("MIN_SIMILARITY"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < -1 || f > 1 {
			return RAGConfig{}, fmt.Errorf("MIN_SIMILARITY must be a number between -1 and 1")
		}
		rag.MinSimilarity = f
	}
	return rag, nil
}

// loadDotEnv loads the first .env found in the working directory or its parents.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

func positiveInt(key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func nonNegativeFloat(key, raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return f, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
