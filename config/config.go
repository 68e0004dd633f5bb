package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	AppName     = "listing-analyzer"
	EnvFileName = "config.env"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// ErrMissingAPIKey is returned by Load when no model API key is configured.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY (or GEMINI_API_KEY) is not set")

// Config is the service configuration. Keys are the lower-cased environment
// variable names, also accepted in a YAML file given by CONFIG_FILE.
type Config struct {
	Port             int           `mapstructure:"port"`
	APIKey           string        `mapstructure:"api_key"`
	GeminiModel      string        `mapstructure:"gemini_model"`
	WorkerPoolSize   int           `mapstructure:"worker_pool_size"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	MaxImagesPerCall int           `mapstructure:"max_images_per_call"`

	CacheBackend    string        `mapstructure:"cache_backend"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSQLitePath string        `mapstructure:"cache_sqlite_path"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory and from .env in the working directory. Errors are
// ignored since the files may not exist. Variables already set win.
func LoadEnvFile() {
	_ = godotenv.Load(".env")
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 50051)
	v.SetDefault("gemini_model", "gemini-flash-latest")
	v.SetDefault("worker_pool_size", 10)
	v.SetDefault("inference_timeout", 60*time.Second)
	v.SetDefault("max_images_per_call", 3)
	v.SetDefault("cache_backend", CacheNone)
	v.SetDefault("cache_ttl", 24*time.Hour)
	v.SetDefault("cache_sqlite_path", "analysis-cache.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, a YAML file. Environment variables take precedence over the file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	// the port and key have legacy aliases
	if err := v.BindEnv("port", "PORT", "GRPC_PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("api_key", "GOOGLE_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("inference_timeout must be positive, got %s", c.InferenceTimeout)
	}
	if c.MaxImagesPerCall < 1 {
		return fmt.Errorf("max_images_per_call must be positive, got %d", c.MaxImagesPerCall)
	}
	switch c.CacheBackend {
	case CacheNone, CacheSQLite, CacheRedis:
	default:
		return fmt.Errorf("cache_backend must be one of none, sqlite, redis, got %q", c.CacheBackend)
	}
	if c.CacheBackend != CacheNone && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
