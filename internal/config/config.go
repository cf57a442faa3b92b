package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the assistant service.
// Everything is read once at startup; tiers whose connection strings are
// missing stay degraded for the process lifetime.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	DebugMode        bool

	GroqAPIKey   string
	GroqBaseURL  string
	PrimaryModel string
	AudioModel   string
	VisionModel  string

	DatabaseURL string
	RedisURL    string

	ContextWindow     int
	ContentMaxBytes   int
	HistoryPageSize   int
	MemoryOpTimeout   time.Duration
	ReconcileInterval time.Duration

	GuestInactivityTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "groqchat"),
		GroqAPIKey:       trimmedEnv("GROQ_API_KEY"),
		GroqBaseURL:      envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		PrimaryModel:     envOrDefault("PRIMARY_MODEL", "llama-3.3-70b-versatile"),
		AudioModel:       envOrDefault("AUDIO_MODEL", "whisper-large-v3-turbo"),
		VisionModel:      envOrDefault("VISION_MODEL", "meta-llama/llama-4-scout-17b-16e-instruct"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		RedisURL:         trimmedEnv("REDIS_URL"),

		ShutdownTimeout:        15 * time.Second,
		ContextWindow:          5,
		ContentMaxBytes:        8192,
		HistoryPageSize:        10,
		MemoryOpTimeout:        5 * time.Second,
		ReconcileInterval:      30 * time.Second,
		GuestInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryOpTimeout, err = durationFromEnv("MEMORY_OP_TIMEOUT", cfg.MemoryOpTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconcileInterval, err = durationFromEnv("MEMORY_RECONCILE_INTERVAL", cfg.ReconcileInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.GuestInactivityTimeout, err = durationFromEnv("GUEST_INACTIVITY_TIMEOUT", cfg.GuestInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ContentMaxBytes, err = intFromEnv("CONTENT_MAX_BYTES", cfg.ContentMaxBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryPageSize, err = intFromEnv("HISTORY_PAGE_SIZE", cfg.HistoryPageSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false)
	if err != nil {
		return Config{}, err
	}
	cfg.DebugMode, err = boolFromEnv("DEBUG_MODE", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API_KEY is required")
	}
	if cfg.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_WINDOW must be positive")
	}
	if cfg.ContentMaxBytes <= 0 {
		return Config{}, fmt.Errorf("CONTENT_MAX_BYTES must be positive")
	}
	if cfg.HistoryPageSize <= 0 {
		return Config{}, fmt.Errorf("HISTORY_PAGE_SIZE must be positive")
	}
	if cfg.MemoryOpTimeout <= 0 {
		return Config{}, fmt.Errorf("MEMORY_OP_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
