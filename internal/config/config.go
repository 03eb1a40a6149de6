package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// LLM backends.
const (
	LLMMock   = "mock"
	LLMVertex = "vertex"
	LLMGemini = "gemini"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage
	StoreBackend string
	RedisURL     string
	DatabaseURL  string
	SQLitePath   string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from HTTP rate limiting
	ReadReceiptLimit   int
	ReadReceiptWindow  time.Duration

	// Shared-secret gate. Empty AuthUser disables it.
	AuthUser         string
	AuthPassword     string
	AuthPasswordHash string

	// Text generation
	LLMBackend        string
	GCPProject        string
	GCPLocation       string
	ModelName         string
	GeminiAPIKey      string
	GenerationTimeout time.Duration

	// Agents and mentions
	AgentHistorySize   int
	AgentResponseDelay time.Duration
	MentionsCrossRoom  bool

	SeedFile string

	// WebSocket and browser access
	WSInsecureSkipVerify bool
	AllowedOrigins       []string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		StoreBackend: strings.ToLower(os.Getenv("STORE_BACKEND")),
		RedisURL:     os.Getenv("REDIS_URL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),

		RateLimitWhitelist: getList("RATE_LIMIT_WHITELIST"),
		ReadReceiptLimit:   getInt("READ_RECEIPT_LIMIT", 10),
		ReadReceiptWindow:  getDuration("READ_RECEIPT_WINDOW", time.Second),

		AuthUser:         os.Getenv("AUTH_USER"),
		AuthPassword:     os.Getenv("AUTH_PASSWORD"),
		AuthPasswordHash: os.Getenv("AUTH_PASSWORD_HASH"),

		LLMBackend:        strings.ToLower(getEnv("LLM_BACKEND", LLMMock)),
		GCPProject:        os.Getenv("GCP_PROJECT"),
		GCPLocation:       getEnv("GCP_LOCATION", "us-central1"),
		ModelName:         os.Getenv("MODEL_NAME"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 30*time.Second),

		AgentHistorySize:   getInt("AGENT_HISTORY_SIZE", 5),
		AgentResponseDelay: getDuration("AGENT_RESPONSE_DELAY", time.Second),
		MentionsCrossRoom:  getEnv("MENTIONS_CROSS_ROOM", "false") == "true",

		SeedFile: os.Getenv("SEED_FILE"),

		WSInsecureSkipVerify: getEnv("WS_INSECURE_SKIP_VERIFY", "false") == "true",
		AllowedOrigins:       getList("ALLOWED_ORIGINS"),
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = inferStoreBackend(cfg)
	}

	// In production, require a persistent store and a real model
	if cfg.Env == "production" {
		switch cfg.StoreBackend {
		case StoreRedis:
			if cfg.RedisURL == "" {
				panic("REDIS_URL is required in production")
			}
		case StorePostgres:
			if cfg.DatabaseURL == "" {
				panic("DATABASE_URL is required in production")
			}
		case StoreSQLite:
		default:
			panic("a persistent STORE_BACKEND is required in production")
		}
		if cfg.LLMBackend == LLMMock {
			panic("LLM_BACKEND must not be mock in production")
		}
	}

	return cfg
}

// inferStoreBackend picks a backend from the connection settings present,
// preferring Redis like the original deployment.
func inferStoreBackend(cfg *Config) string {
	switch {
	case cfg.RedisURL != "":
		return StoreRedis
	case cfg.DatabaseURL != "":
		return StorePostgres
	case cfg.SQLitePath != "":
		return StoreSQLite
	default:
		return StoreMemory
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// AuthEnabled reports whether the shared-secret gate is configured.
func (c *Config) AuthEnabled() bool {
	return c.AuthUser != "" && (c.AuthPassword != "" || c.AuthPasswordHash != "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

// getDuration accepts Go durations ("1500ms") or plain milliseconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getList parses a comma-separated list.
func getList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
