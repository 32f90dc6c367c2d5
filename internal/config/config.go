package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr  string
	Version     string
	CORSOrigins []string

	LogLevel  string
	LogFormat string
	LogFile   string

	// Simulation
	TickInterval   time.Duration
	MaxIncrement   float64
	RandomSeed     uint64
	MaxRunDuration time.Duration
	MaxRetries     int
	ArtifactScale  int64

	// Redis is optional. Empty disables the event bus and the search cache.
	RedisURL      string
	EventsChannel string
	CacheTTL      time.Duration

	// S3/MinIO is optional. Empty endpoint keeps artifacts in memory only.
	S3Endpoint   string
	S3Region     string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string
	S3UseSSL     bool
	S3PresignTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		ServerAddr:    getEnvOrDefault("SERVER_ADDR", ":8080"),
		Version:       getEnvOrDefault("APP_VERSION", "dev"),
		CORSOrigins:   splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:       os.Getenv("LOG_FILE"),
		RedisURL:      os.Getenv("REDIS_URL"),
		EventsChannel: getEnvOrDefault("EVENTS_CHANNEL", "mediagrab:events"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3Region:      getEnvOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey:   getEnvOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:   getEnvOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:      getEnvOrDefault("S3_BUCKET", "mediagrab-artifacts"),
	}

	var err error
	if cfg.TickInterval, err = durationEnv("TICK_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MaxRunDuration, err = durationEnv("MAX_RUN_DURATION", 0); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.S3PresignTTL, err = durationEnv("S3_PRESIGN_TTL", time.Hour); err != nil {
		return nil, err
	}

	if cfg.MaxIncrement, err = strconv.ParseFloat(getEnvOrDefault("MAX_INCREMENT", "15"), 64); err != nil || cfg.MaxIncrement <= 0 {
		return nil, fmt.Errorf("MAX_INCREMENT must be a positive number")
	}
	if cfg.RandomSeed, err = strconv.ParseUint(getEnvOrDefault("RANDOM_SEED", "0"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid RANDOM_SEED: %w", err)
	}
	if cfg.MaxRetries, err = strconv.Atoi(getEnvOrDefault("MAX_RETRIES", "0")); err != nil || cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be zero or positive")
	}
	if cfg.ArtifactScale, err = strconv.ParseInt(getEnvOrDefault("ARTIFACT_SCALE", "1024"), 10, 64); err != nil || cfg.ArtifactScale <= 0 {
		return nil, fmt.Errorf("ARTIFACT_SCALE must be a positive integer")
	}
	if cfg.S3UseSSL, err = strconv.ParseBool(getEnvOrDefault("S3_USE_SSL", "false")); err != nil {
		return nil, fmt.Errorf("invalid S3_USE_SSL: %w", err)
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("TICK_INTERVAL must be positive")
	}

	return cfg, nil
}

// RedisEnabled reports whether a Redis URL was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// StorageEnabled reports whether an object store endpoint was configured.
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
