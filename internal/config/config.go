package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the application.
type Config struct {
	GeminiAPIKey string
	GroqAPIKey   string

	DatabasePath       string
	EmbeddingCachePath string

	LLMTimeout        time.Duration
	LLMConnectTimeout time.Duration

	// Generation policy
	RequireFunctionCall bool
	FuzzyMinMatchLength int
	StrategyCacheTTL    time.Duration

	// Ghost Config (recipe catalog source, optional)
	GhostURL        string
	GhostContentKey string
	GhostAdminKey   string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	// HTTP API
	Port         string
	APIJWTSecret string
}

// Load reads an optional .env file and then builds the config from the environment.
func Load() (*Config, error) {
	// A missing .env is normal in deployed environments.
	_ = godotenv.Load()
	return NewFromEnv()
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	groqAPIKey := os.Getenv("GROQ_API_KEY")
	if groqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	llmTimeout, err := envInt("LLM_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := envInt("LLM_CONNECT_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	minMatch, err := envInt("FUZZY_MIN_MATCH_LENGTH", 3)
	if err != nil {
		return nil, err
	}
	ttlHours, err := envInt("STRATEGY_CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	requireFunctionCall := true
	if v := os.Getenv("REQUIRE_FUNCTION_CALL"); v != "" {
		requireFunctionCall, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("REQUIRE_FUNCTION_CALL must be a boolean, got %q", v)
		}
	}

	ghostContentKey := os.Getenv("GHOST_CONTENT_API_KEY")
	ghostAdminKey := os.Getenv("GHOST_ADMIN_API_KEY")
	if ghostAdminKey == "" {
		// Fallback to content key if only one is provided
		ghostAdminKey = ghostContentKey
	}

	allowed, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		adminID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be numeric, got %q", v)
		}
	}

	return &Config{
		GeminiAPIKey:           geminiAPIKey,
		GroqAPIKey:             groqAPIKey,
		DatabasePath:           envOr("DATABASE_PATH", "data/nutriplan.db"),
		EmbeddingCachePath:     envOr("EMBEDDING_CACHE_PATH", "data/embeddings_cache.json"),
		LLMTimeout:             time.Duration(llmTimeout) * time.Second,
		LLMConnectTimeout:      time.Duration(connectTimeout) * time.Second,
		RequireFunctionCall:    requireFunctionCall,
		FuzzyMinMatchLength:    minMatch,
		StrategyCacheTTL:       time.Duration(ttlHours) * time.Hour,
		GhostURL:               os.Getenv("GHOST_API_URL"),
		GhostContentKey:        ghostContentKey,
		GhostAdminKey:          ghostAdminKey,
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        adminID,
		Port:                   envOr("PORT", "8080"),
		APIJWTSecret:           os.Getenv("API_JWT_SECRET"),
	}, nil
}

// RequireGhost reports whether the Ghost catalog source is configured.
func (c *Config) RequireGhost() error {
	if c.GhostURL == "" {
		return fmt.Errorf("GHOST_API_URL environment variable not set")
	}
	if c.GhostContentKey == "" {
		return fmt.Errorf("GHOST_CONTENT_API_KEY environment variable not set")
	}
	return nil
}

// RequireAPI reports whether the HTTP API can authenticate callers.
func (c *Config) RequireAPI() error {
	if c.APIJWTSecret == "" {
		return fmt.Errorf("API_JWT_SECRET environment variable not set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
