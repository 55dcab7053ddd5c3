package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Storage. Both are optional: with an empty RedisURL the relay falls
	// back to in-memory nonce and rate-limit stores, with an empty
	// PostgresDSN bids, escrows and audit stay in-process.
	PostgresDSN string
	RedisURL    string

	// Chain
	RPCURL          string
	ContractAddress string
	DefaultTokenID  int64
	MinTokenBalance int64

	// Relay
	NonceIssueTTL   time.Duration
	NonceConsumeTTL time.Duration
	RateLimit       int
	RateWindow      time.Duration
	AuditMaxEntries int

	// Upstreams. Missing credentials degrade: the action is accepted and
	// recorded but not forwarded.
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	GitHubToken  string
	GitHubRepo   string // "owner/name"

	// Auth
	OperatorJWTSecret  string
	OperatorJWTExpires time.Duration

	// Server
	APIPort string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		RPCURL:          getEnv("RPC_URL", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		DefaultTokenID:  getEnvInt64("DEFAULT_TOKEN_ID", 1),
		MinTokenBalance: getEnvInt64("MIN_TOKEN_BALANCE", 1),

		NonceIssueTTL:   time.Duration(getEnvInt("NONCE_ISSUE_TTL_SECONDS", 600)) * time.Second,
		NonceConsumeTTL: time.Duration(getEnvInt("NONCE_CONSUME_TTL_SECONDS", 300)) * time.Second,
		RateLimit:       getEnvInt("RATE_LIMIT_POINTS", 60),
		RateWindow:      time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		AuditMaxEntries: getEnvInt("AUDIT_MAX_ENTRIES", 2000),

		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
		LLMModel:    getEnv("LLM_MODEL", ""),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),
		GitHubRepo:  getEnv("GITHUB_REPO", ""),

		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", "change-me-in-production"),
		OperatorJWTExpires: time.Duration(getEnvInt("OPERATOR_JWT_EXPIRATION_HOURS", 24)) * time.Hour,

		APIPort: getEnv("API_PORT", "3000"),
	}
}

func (c *Config) Validate(log *zap.Logger) {
	if c.RPCURL == "" {
		log.Warn("RPC_URL is not set, holder-gated actions will be unavailable")
	}
	if c.LLMAPIKey == "" {
		log.Warn("LLM_API_KEY is not set, llm requests will be recorded but not forwarded")
	}
	if c.GitHubToken == "" || c.GitHubRepo == "" {
		log.Warn("GitHub credentials are not set, dispatches will be recorded but not forwarded")
	}
	if c.OperatorJWTSecret == "change-me-in-production" {
		log.Warn("OPERATOR_JWT_SECRET is default, change in production")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
