// Package config provides configuration management for ontograph.
// Settings come from environment variables (most with the ONTOGRAPH_ prefix,
// Neo4j settings under their conventional NEO4J_ names), optionally seeded
// from a .env file, with sensible defaults for everything.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidNeo4jSchemes lists the URI schemes accepted for NEO4J_URI.
var ValidNeo4jSchemes = []string{
	"bolt://",
	"bolt+s://",
	"bolt+ssc://",
	"neo4j://",
	"neo4j+s://",
	"neo4j+ssc://",
}

// Config holds all configuration settings for ontograph.
type Config struct {
	Ontology   OntologyConfig
	Storage    StorageConfig
	Neo4j      Neo4jConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

// OntologyConfig locates the ontology and the corpus.
type OntologyConfig struct {
	Path    string // Ontology YAML path (default: config/ontology.yaml)
	DataDir string // Corpus directory (default: data)
}

// StorageConfig selects the graph and idempotency backends.
type StorageConfig struct {
	Engine           string // Graph store: sqlite, postgres, neo4j (default: sqlite)
	SQLitePath       string // SQLite database file (default: ./ontograph.db)
	PostgresDSN      string // PostgreSQL connection string
	IdempotencyStore string // Document record store: graph, redis (default: graph)
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI      string // NEO4J_URI (default: bolt://localhost:7687)
	Username string // NEO4J_USERNAME (default: neo4j)
	Password string // NEO4J_PASSWORD (default: password)
	Database string // NEO4J_DATABASE (default: neo4j)
}

// RedisConfig contains settings for the Redis document record store.
type RedisConfig struct {
	Addr     string // Redis address (default: localhost:6379)
	Password string // Redis password
	DB       int    // Redis database number (default: 0)
	Prefix   string // Key prefix (default: ontograph:)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider       string // openai, ollama, anthropic (default: openai)
	Model          string // Completion model; empty selects the provider default
	BaseURL        string // Provider base URL override
	APIKey         string // Falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY
	EmbeddingModel string // Embedding model; empty disables node embeddings
	Timeout        time.Duration
}

// ExtractionConfig tunes the extractor.
type ExtractionConfig struct {
	MaxTripletsPerChunk int           // Triplet budget per chunk (default: 2)
	Parallelism         int           // Concurrent chunk workers (default: 4)
	ChunkSize           int           // Chunk size in tokens (default: 512)
	ChunkOverlap        int           // Chunk overlap in tokens (default: 20)
	ChunkTimeout        time.Duration // Per-chunk oracle timeout (default: 90s)
	MaxRetries          int           // Retries per chunk on rate limiting (default: 3)
	RetryBackoff        time.Duration // Initial backoff between retries (default: 500ms)
	RequestsPerSecond   float64       // Oracle request rate limit; 0 disables (default: 0)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   // Serve /metrics and /healthz (default: false)
	Addr    string // Listen address (default: :9090)
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // text or json (default: text)
}

// LoadConfig loads .env (if present) and then reads the environment.
// Existing environment variables win over .env entries. The returned
// config has not been validated.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: failed to read .env", "error", err)
	}
	return buildBaseConfig(), nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	provider := strings.ToLower(getEnv("ONTOGRAPH_LLM_PROVIDER", "openai"))
	return &Config{
		Ontology: OntologyConfig{
			Path:    getEnv("ONTOGRAPH_ONTOLOGY_PATH", "config/ontology.yaml"),
			DataDir: getEnv("ONTOGRAPH_DATA_DIR", "data"),
		},
		Storage: StorageConfig{
			Engine:           strings.ToLower(getEnv("ONTOGRAPH_STORAGE_ENGINE", "sqlite")),
			SQLitePath:       getEnv("ONTOGRAPH_SQLITE_PATH", "./ontograph.db"),
			PostgresDSN:      getEnv("ONTOGRAPH_POSTGRES_DSN", ""),
			IdempotencyStore: strings.ToLower(getEnv("ONTOGRAPH_IDEMPOTENCY_STORE", "graph")),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USERNAME", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "password"),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ONTOGRAPH_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ONTOGRAPH_REDIS_PASSWORD", ""),
			DB:       getEnvInt("ONTOGRAPH_REDIS_DB", 0),
			Prefix:   getEnv("ONTOGRAPH_REDIS_PREFIX", "ontograph:"),
		},
		LLM: LLMConfig{
			Provider:       provider,
			Model:          getEnv("ONTOGRAPH_LLM_MODEL", ""),
			BaseURL:        getEnv("ONTOGRAPH_LLM_BASE_URL", ""),
			APIKey:         getEnv("ONTOGRAPH_LLM_API_KEY", providerKey(provider)),
			EmbeddingModel: getEnv("ONTOGRAPH_EMBEDDING_MODEL", ""),
			Timeout:        getEnvDuration("ONTOGRAPH_LLM_TIMEOUT", 60*time.Second),
		},
		Extraction: ExtractionConfig{
			MaxTripletsPerChunk: getEnvInt("ONTOGRAPH_MAX_TRIPLETS_PER_CHUNK", 2),
			Parallelism:         getEnvInt("ONTOGRAPH_PARALLELISM", 4),
			ChunkSize:           getEnvInt("ONTOGRAPH_CHUNK_SIZE", 512),
			ChunkOverlap:        getEnvInt("ONTOGRAPH_CHUNK_OVERLAP", 20),
			ChunkTimeout:        getEnvDuration("ONTOGRAPH_CHUNK_TIMEOUT", 90*time.Second),
			MaxRetries:          getEnvInt("ONTOGRAPH_MAX_RETRIES", 3),
			RetryBackoff:        getEnvDuration("ONTOGRAPH_RETRY_BACKOFF", 500*time.Millisecond),
			RequestsPerSecond:   getEnvFloat("ONTOGRAPH_REQUESTS_PER_SECOND", 0),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("ONTOGRAPH_METRICS_ENABLED", false),
			Addr:    getEnv("ONTOGRAPH_METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("ONTOGRAPH_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("ONTOGRAPH_LOG_FORMAT", "text")),
		},
	}
}

// providerKey returns the provider's conventional API key variable.
func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

// Validate checks enumerated settings, the Neo4j URI (when Neo4j is the
// graph store) and numeric bounds. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	switch c.Storage.Engine {
	case "sqlite", "postgres", "neo4j":
	default:
		problems = append(problems, fmt.Sprintf("unsupported storage engine %q", c.Storage.Engine))
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		problems = append(problems, "ONTOGRAPH_POSTGRES_DSN is required for the postgres engine")
	}
	if c.Storage.Engine == "neo4j" {
		if err := c.Neo4j.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	switch c.Storage.IdempotencyStore {
	case "graph", "redis":
	default:
		problems = append(problems, fmt.Sprintf("unsupported idempotency store %q", c.Storage.IdempotencyStore))
	}

	switch c.LLM.Provider {
	case "openai", "ollama", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("unsupported LLM provider %q", c.LLM.Provider))
	}

	if c.Extraction.MaxTripletsPerChunk < 1 {
		problems = append(problems, "ONTOGRAPH_MAX_TRIPLETS_PER_CHUNK must be at least 1")
	}
	if c.Extraction.Parallelism < 1 {
		problems = append(problems, "ONTOGRAPH_PARALLELISM must be at least 1")
	}
	if c.Extraction.ChunkSize < 1 {
		problems = append(problems, "ONTOGRAPH_CHUNK_SIZE must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks that the URI is present, uses a supported scheme, and that
// credentials are set.
func (n Neo4jConfig) Validate() error {
	if n.URI == "" {
		return errors.New("NEO4J_URI cannot be empty")
	}
	valid := false
	for _, scheme := range ValidNeo4jSchemes {
		if strings.HasPrefix(n.URI, scheme) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("NEO4J_URI must start with a valid scheme: %s. Got: %q",
			strings.Join(ValidNeo4jSchemes, ", "), n.URI)
	}
	if n.Username == "" || n.Password == "" {
		return errors.New("NEO4J_USERNAME and NEO4J_PASSWORD must be set")
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable, falling back to the
// default when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvBool recognizes true/1/yes and false/0/no, case-insensitively.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
