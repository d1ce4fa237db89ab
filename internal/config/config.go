// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	DBPath      string
	CORSOrigins []string

	JWTSecret string
	TokenTTL  time.Duration

	Model   ModelConfig
	ChatLog ChatLogConfig
}

// ModelConfig points the model capability at an OpenAI-compatible endpoint.
type ModelConfig struct {
	APIKey  string
	BaseURL string
	Name    string
}

// ChatLogConfig controls the NDJSON chat audit trail.
type ChatLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CHAT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./data/taskchat.db"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenTTL:    time.Duration(getEnvInt("TOKEN_TTL_MINUTES", 30)) * time.Minute,
		Model: ModelConfig{
			APIKey:  getEnv("MODEL_API_KEY", ""),
			BaseURL: getEnv("MODEL_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			Name:    getEnv("MODEL_NAME", "gemini-2.0-flash"),
		},
		ChatLog: ChatLogConfig{
			Enabled:       getEnvBool("CHAT_LOG_ENABLED", false),
			Dir:           getEnv("CHAT_LOG_DIR", "./data/logs/chat"),
			GlobalEnabled: getEnvBool("CHAT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CHAT_LOG_GLOBAL_PATH", "./data/logs/chat/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be > 0")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if c.ChatLog.Enabled && c.ChatLog.Dir == "" {
		return fmt.Errorf("CHAT_LOG_DIR cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
