package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/service"
)

type Config struct {
	Issuer    string   // Issuer claim stamped on self-contained tokens (default: tokensmith)
	Audiences []string // Optional: audiences stamped and required on self-contained tokens

	Algorithm     string // Signing algorithm (EdDSA, HS256) (default: EdDSA)
	SigningSecret string // Required for HS256: shared signing secret
	ProtectKey    string // Optional: base64 32-byte key to encrypt token payloads

	DatabaseFile string // Path to SQLite database file (default: ./tokens.db)
	RedisAddr    string // Optional: redis address for the shared deny list

	AccessTTL         time.Duration // Access token lifetime (default: 24h)
	RefreshTTL        time.Duration // Refresh token lifetime (default: 30 days)
	StoreAccessTokens bool          // Persist access-token metadata (default: false)
	RefreshPerMinute  int           // Per-subject refresh rate limit, 0 disables (default: 0)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	HousekeepingInterval time.Duration // Expired-token purge interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("TOKENS_ISSUER", "tokensmith"),
		Algorithm:            getEnvOrDefault("TOKENS_ALGORITHM", "EdDSA"),
		SigningSecret:        os.Getenv("TOKENS_SIGNING_SECRET"),
		ProtectKey:           os.Getenv("TOKENS_PROTECT_KEY"),
		DatabaseFile:         getEnvOrDefault("TOKENS_DATABASE_FILE", "tokens.db"),
		RedisAddr:            os.Getenv("TOKENS_REDIS_ADDR"),
		AccessTTL:            getEnvDurationOrDefault("TOKENS_ACCESS_TTL", service.DefaultAccessTTL),
		RefreshTTL:           getEnvDurationOrDefault("TOKENS_REFRESH_TTL", service.DefaultRefreshTTL),
		StoreAccessTokens:    getEnvBoolOrDefault("TOKENS_STORE_ACCESS", false),
		RefreshPerMinute:     getEnvIntOrDefault("TOKENS_REFRESH_PER_MINUTE", 0),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if audiences := os.Getenv("TOKENS_AUDIENCES"); audiences != "" {
		for _, aud := range strings.Split(audiences, ",") {
			if aud = strings.TrimSpace(aud); aud != "" {
				cfg.Audiences = append(cfg.Audiences, aud)
			}
		}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are taken as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
