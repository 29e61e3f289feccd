package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the research assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	ContentServiceURL string

	MaxItemsPerBatch    int
	MaxKeywordsPerBatch int
	MaxBatches          int

	SegmentMinLength int

	HistoryRetention int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "notescout"),
		AllowAnyOrigin:   false,
		LLMBaseURL:       envOrDefault("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:        trimmedEnv("LLM_API_KEY"),
		LLMModel:         envOrDefault("LLM_MODEL", "qwen-plus"),
		// Empty URL means the built-in mock content service.
		ContentServiceURL:   trimmedEnv("CONTENT_SERVICE_URL"),
		MaxItemsPerBatch:    5,
		MaxKeywordsPerBatch: 2,
		MaxBatches:          5,
		SegmentMinLength:    10,
		HistoryRetention:    10,
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:     15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.MaxItemsPerBatch, err = intFromEnv("TASK_MAX_ITEMS_PER_BATCH", cfg.MaxItemsPerBatch)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxKeywordsPerBatch, err = intFromEnv("TASK_MAX_KEYWORDS_PER_BATCH", cfg.MaxKeywordsPerBatch)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBatches, err = intFromEnv("TASK_MAX_BATCHES", cfg.MaxBatches)
	if err != nil {
		return Config{}, err
	}
	cfg.SegmentMinLength, err = intFromEnv("SEGMENT_MIN_LENGTH", cfg.SegmentMinLength)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryRetention, err = intFromEnv("CHAT_HISTORY_RETENTION", cfg.HistoryRetention)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxItemsPerBatch <= 0 {
		return Config{}, fmt.Errorf("TASK_MAX_ITEMS_PER_BATCH must be positive")
	}
	if cfg.MaxKeywordsPerBatch <= 0 {
		return Config{}, fmt.Errorf("TASK_MAX_KEYWORDS_PER_BATCH must be positive")
	}
	if cfg.MaxBatches <= 0 {
		return Config{}, fmt.Errorf("TASK_MAX_BATCHES must be positive")
	}
	if cfg.SegmentMinLength <= 0 {
		return Config{}, fmt.Errorf("SEGMENT_MIN_LENGTH must be positive")
	}
	if cfg.HistoryRetention <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_RETENTION must be positive")
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
