package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"triage_server/pkg/apperr"

	"gopkg.in/yaml.v3"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "triage"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Sink types
const (
	SinkMongo    = "mongo"
	SinkPostgres = "postgres"
	SinkNeo4j    = "neo4j"
)

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Result sinks
	Sinks          []string
	DatabaseURL    string
	PostgresSchema string
	MongoDBURL     string
	MongoDBName    string
	RedisURL       string

	// Neo4j
	Neo4jURL      string
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// API auth (optional)
	JWTSecret string

	// LLM
	LLMProvider    string
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Vertex AI
	VertexProjectID string
	VertexLocation  string
	VertexModel     string

	// Mailbox (Gmail)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GmailUser          string

	// Triage
	ProcessedLabel         string
	ManualLabel            string
	ExcludedPrefixes       []string
	DeferLabels            []string
	DefaultLabels          []string
	BatchLimit             int
	BodyMaxChars           int
	ExtendedFields         bool
	MarkReadOnApply        bool
	ArchiveOnApply         bool
	PreserveUnreadOnManual bool
	MinConfidence          int
	ExampleCacheTTL        time.Duration

	// Worker
	WorkerID         string
	SchedulerEnabled bool
	ScheduleInterval time.Duration
	RunTimeout       time.Duration
	RunStream        string
	ConsumerGroup    string
	ConsumerBlockMS  int

	// HTTP trigger
	TriggerRateLimit int

	// CORS
	AllowedOrigins []string
}

// fileValues holds keys read from the optional YAML file. Keys use the same
// names as the environment variables; the environment always wins.
var fileValues map[string]string

// Load reads CONFIG_FILE (if set), then the environment, and validates the result.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		fileValues = values
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		Sinks:          getEnvSlice("RESULT_SINKS", []string{SinkMongo}),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		PostgresSchema: getEnv("POSTGRES_SCHEMA", ""),
		MongoDBURL:     getEnv("MONGODB_URL", ""),
		MongoDBName:    getEnv("MONGODB_DATABASE", "mail_triage"),
		RedisURL:       getEnv("REDIS_URL", ""),

		Neo4jURL:      getEnv("NEO4J_URL", ""),
		Neo4jUsername: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),

		JWTSecret: getEnv("API_JWT_SECRET", ""),

		LLMProvider:    getEnv("LLM_PROVIDER", ProviderOpenAI),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		VertexProjectID: getEnv("VERTEX_PROJECT_ID", ""),
		VertexLocation:  getEnv("VERTEX_LOCATION", "us-central1"),
		VertexModel:     getEnv("VERTEX_MODEL", "gemini-1.5-flash"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GmailUser:          getEnv("GMAIL_USER", "me"),

		ProcessedLabel:         getEnv("PROCESSED_LABEL", "AIProcessed"),
		ManualLabel:            getEnv("MANUAL_LABEL", "Manual Sort"),
		ExcludedPrefixes:       getEnvSlice("EXCLUDED_LABEL_PREFIXES", []string{"AI-Old-"}),
		DeferLabels:            getEnvSlice("DEFER_LABELS", []string{"Manual Sort", "Other"}),
		DefaultLabels:          getEnvSlice("DEFAULT_LABELS", []string{"Personal", "Work", "Promotions", "Updates"}),
		BatchLimit:             getEnvInt("BATCH_LIMIT", 25),
		BodyMaxChars:           getEnvInt("BODY_MAX_CHARS", 5000),
		ExtendedFields:         getEnvBool("EXTENDED_FIELDS", true),
		MarkReadOnApply:        getEnvBool("MARK_READ_ON_APPLY", false),
		ArchiveOnApply:         getEnvBool("ARCHIVE_ON_APPLY", false),
		PreserveUnreadOnManual: getEnvBool("PRESERVE_UNREAD_ON_MANUAL", true),
		MinConfidence:          getEnvInt("MIN_CONFIDENCE", 0),
		ExampleCacheTTL:        getEnvDuration("EXAMPLE_CACHE_TTL", 6*time.Hour),

		WorkerID:         getEnv("WORKER_ID", generateWorkerID()),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", 10*time.Minute),
		RunTimeout:       getEnvDuration("RUN_TIMEOUT", 30*time.Minute),
		RunStream:        getEnv("RUN_STREAM", "triage:run"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", "triage-workers"),
		ConsumerBlockMS:  getEnvInt("CONSUMER_BLOCK_MS", 5000),

		TriggerRateLimit: getEnvInt("TRIGGER_RATE_LIMIT", 6),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.BatchLimit <= 0 {
		return apperr.ConfigError("BATCH_LIMIT must be positive")
	}
	if c.BodyMaxChars <= 0 {
		return apperr.ConfigError("BODY_MAX_CHARS must be positive")
	}
	if strings.TrimSpace(c.ProcessedLabel) == "" {
		return apperr.ConfigError("PROCESSED_LABEL is required")
	}
	if strings.TrimSpace(c.ManualLabel) == "" {
		return apperr.ConfigError("MANUAL_LABEL is required")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 10 {
		return apperr.ConfigError("MIN_CONFIDENCE must be between 0 and 10")
	}

	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return apperr.ConfigError("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderVertex:
		if c.VertexProjectID == "" {
			return apperr.ConfigError("VERTEX_PROJECT_ID is required for the vertex provider")
		}
	default:
		return apperr.ConfigError(fmt.Sprintf("unknown LLM_PROVIDER: %s", c.LLMProvider))
	}

	if len(c.Sinks) == 0 {
		return apperr.ConfigError("at least one result sink is required")
	}
	for _, sink := range c.Sinks {
		switch sink {
		case SinkMongo:
			if c.MongoDBURL == "" {
				return apperr.ConfigError("MONGODB_URL is required for the mongo sink")
			}
		case SinkPostgres:
			if c.DatabaseURL == "" {
				return apperr.ConfigError("DATABASE_URL is required for the postgres sink")
			}
		case SinkNeo4j:
			if c.Neo4jURL == "" {
				return apperr.ConfigError("NEO4J_URL is required for the neo4j sink")
			}
		default:
			return apperr.ConfigError(fmt.Sprintf("unknown result sink: %s", sink))
		}
	}
	if !c.HasSink(SinkMongo) && !c.HasSink(SinkPostgres) {
		return apperr.ConfigError("RESULT_SINKS needs mongo or postgres to serve the dashboard")
	}

	if c.GoogleRefreshToken == "" || c.GoogleClientID == "" {
		return apperr.ConfigError("mailbox credentials are required (GOOGLE_CLIENT_ID, GOOGLE_REFRESH_TOKEN)")
	}
	return nil
}

func readFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("failed to open %s", path)).WithError(err)
	}
	defer f.Close()

	raw := make(map[string]any)
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("failed to decode %s", path)).WithError(err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(k)
		switch typed := v.(type) {
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ",")
		case nil:
		default:
			values[key] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

func lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fileValues[key]
}

func getEnv(key, defaultValue string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := lookup(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := lookup(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := lookup(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := lookup(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasSink reports whether the named result sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}
