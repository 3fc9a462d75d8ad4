package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	LLM           LLMConfig
	Retrieval     RetrievalConfig
	Personas      PersonaConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds PostgreSQL configuration for audit persistence.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
// Persistence is disabled when neither DATABASE_URL nor DB_HOST is set.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// LLMConfig holds the generation provider configuration
type LLMConfig struct {
	Provider string // openai, groq or gemini
	OpenAI   ProviderEndpoint
	Groq     ProviderEndpoint
	Gemini   ProviderEndpoint

	Temperature        float32
	MaxTokens          int
	VanillaTemperature float32
	VanillaMaxTokens   int
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

// ProviderEndpoint holds credentials and model for one OpenAI-compatible API
type ProviderEndpoint struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RetrievalConfig holds corpus indexing and search configuration
type RetrievalConfig struct {
	CorporaDir     string
	TopK           int
	ChunkSize      int
	ChunkOverlap   int
	MinChunkChars  int
	MinScore       float64
	Embedder       string // hash or openai
	EmbeddingDims  int
	EmbeddingModel string
	WatchCorpus    bool
}

// PersonaConfig holds persona registry configuration
type PersonaConfig struct {
	NamespacesFile string // .json, .yaml or .yml
}

// AuditConfig holds audit log configuration
type AuditConfig struct {
	Capacity    int // 0 keeps every entry for the process lifetime
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: loadDatabaseConfig(),
		LLM: LLMConfig{
			Provider: strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
			OpenAI: ProviderEndpoint{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Groq: ProviderEndpoint{
				APIKey:  getEnv("GROQ_API_KEY", ""),
				BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
				Model:   getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			},
			Gemini: ProviderEndpoint{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
				Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			Temperature:        float32(getEnvAsFloat("LLM_TEMPERATURE", 0.1)),
			MaxTokens:          getEnvAsInt("LLM_MAX_TOKENS", 2048),
			VanillaTemperature: float32(getEnvAsFloat("LLM_VANILLA_TEMPERATURE", 0.7)),
			VanillaMaxTokens:   getEnvAsInt("LLM_VANILLA_MAX_TOKENS", 1024),
			Timeout:            getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:         getEnvAsInt("LLM_MAX_RETRIES", 2),
			RetryDelay:         getEnvAsDuration("LLM_RETRY_DELAY", time.Second),
		},
		Retrieval: RetrievalConfig{
			CorporaDir:     getEnv("CORPORA_DIR", "data/corpora"),
			TopK:           getEnvAsInt("RETRIEVAL_TOP_K", 5),
			ChunkSize:      getEnvAsInt("CHUNK_SIZE", 512),
			ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 64),
			MinChunkChars:  getEnvAsInt("MIN_CHUNK_CHARS", 50),
			MinScore:       getEnvAsFloat("RETRIEVAL_MIN_SCORE", 0.0),
			Embedder:       strings.ToLower(getEnv("EMBEDDER", "hash")),
			EmbeddingDims:  getEnvAsInt("EMBEDDING_DIMS", 512),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			WatchCorpus:    getEnvAsBool("WATCH_CORPUS", true),
		},
		Personas: PersonaConfig{
			NamespacesFile: getEnv("NAMESPACES_FILE", "data/namespaces.json"),
		},
		Audit: AuditConfig{
			Capacity:    getEnvAsInt("AUDIT_CAPACITY", 0),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.Provider {
	case "openai", "groq", "gemini":
	default:
		problems = append(problems, fmt.Sprintf("unknown LLM provider %q (want openai, groq or gemini)", c.LLM.Provider))
	}
	if c.IsProduction() && c.ActiveEndpoint().APIKey == "" {
		problems = append(problems, fmt.Sprintf("API key for provider %q is required in production", c.LLM.Provider))
	}

	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval top_k must be positive")
	}
	if c.Retrieval.ChunkSize <= 0 || c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		problems = append(problems, "chunk overlap must be non-negative and smaller than chunk size")
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		problems = append(problems, "retrieval min score must be within [0,1]")
	}
	switch c.Retrieval.Embedder {
	case "hash":
		if c.Retrieval.EmbeddingDims <= 0 {
			problems = append(problems, "embedding dimensions must be positive")
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			problems = append(problems, "openai embedder requires OPENAI_API_KEY")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown embedder %q (want hash or openai)", c.Retrieval.Embedder))
	}

	ext := strings.ToLower(filepath.Ext(c.Personas.NamespacesFile))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		problems = append(problems, "namespaces file must end in .json, .yaml or .yml")
	}

	if c.Audit.Capacity < 0 || c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0 {
		problems = append(problems, "audit capacity must be non-negative and buffer/workers positive")
	}

	if c.Observability.LogLevel == "" {
		problems = append(problems, "log level is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// ActiveEndpoint returns the endpoint for the configured provider
func (c *Config) ActiveEndpoint() ProviderEndpoint {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.OpenAI
	case "gemini":
		return c.LLM.Gemini
	default:
		return c.LLM.Groq
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Enabled reports whether audit persistence to PostgreSQL is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "smeplug")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "smeplug_audit")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated variable, dropping empty items
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
