package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jengzang/routes-backend-go/internal/routes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Matching  routes.Config   `yaml:"matching"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port        string `yaml:"port" validate:"required"`
	AllowOrigin string `yaml:"allowOrigin" validate:"required"`
}

// DatabaseConfig configures the SQLite cache store
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// CacheConfig configures the route cache
type CacheConfig struct {
	// Version invalidates every stored signature and group when bumped
	Version        int `yaml:"version" validate:"gte=1"`
	BatchSize      int `yaml:"batchSize" validate:"gte=1"`
	// TrackCacheSize caps the raw traces kept in memory for section queries
	TrackCacheSize int `yaml:"trackCacheSize" validate:"gte=1"`
}

// LogConfig configures zap
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Build creates the process logger: development output at debug, JSON otherwise
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	logConfig := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	return logConfig.Build()
}

// RateLimitConfig configures the per-IP API limiter; Requests 0 disables it
type RateLimitConfig struct {
	Requests int           `yaml:"requests" validate:"gte=0"`
	Window   time.Duration `yaml:"window" validate:"required_with=Requests"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: ":8080", AllowOrigin: "*"},
		Database:  DatabaseConfig{Path: "./data/routes.db"},
		Cache:     CacheConfig{Version: 1, BatchSize: 50, TrackCacheSize: 1000},
		Log:       LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{Requests: 120, Window: time.Minute},
		Matching:  routes.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_PATH and environment overrides, then validates it
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section of the configuration
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if raw := os.Getenv("CACHE_VERSION"); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid CACHE_VERSION %q: %w", raw, err)
		}
		cfg.Cache.Version = version
	}
	return nil
}
