package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Engine   EngineConfig   `yaml:"engine"`
	Store    StoreConfig    `yaml:"store"`
	Logger   LoggerConfig   `yaml:"logger"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DataConfig struct {
	File         string        `yaml:"file"`
	CacheDir     string        `yaml:"cache_dir"`
	CacheEnabled bool          `yaml:"cache_enabled"`
	LoadTimeout  time.Duration `yaml:"load_timeout"`
}

type EngineConfig struct {
	BucketMaxGroups int     `yaml:"bucket_max_groups"`
	BucketKeep      int     `yaml:"bucket_keep"`
	BucketMinShare  float64 `yaml:"bucket_min_share"`
	// OptionScanLimit caps option resolution at the first N facts; 0 scans all.
	OptionScanLimit int `yaml:"option_scan_limit"`
	TopProducts     int `yaml:"top_products"`
}

type StoreConfig struct {
	// RedisURL selects Redis persistence for the filter selection; empty keeps it in memory.
	RedisURL     string `yaml:"redis_url"`
	SelectionKey string `yaml:"selection_key"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `yaml:"rate_limit_enabled"`
	RateLimitRPS    int      `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Data: DataConfig{
			File:         "data/dashboard.json",
			CacheDir:     ".cache",
			CacheEnabled: true,
			LoadTimeout:  30 * time.Second,
		},
		Engine: EngineConfig{
			BucketMaxGroups: 7,
			BucketKeep:      6,
			BucketMinShare:  0.05,
			TopProducts:     5,
		},
		Store: StoreConfig{
			SelectionKey: "dashboard:selection:default",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    100,
			RateLimitBurst:  10,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables. Later sources win.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Server = ServerConfig{
		Host:            getEnvString("SERVER_HOST", cfg.Server.Host),
		Port:            getEnvInt("SERVER_PORT", cfg.Server.Port),
		ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout),
		WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout),
		IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout),
		ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout),
	}
	cfg.Data = DataConfig{
		File:         getEnvString("DATA_FILE", cfg.Data.File),
		CacheDir:     getEnvString("DATA_CACHE_DIR", cfg.Data.CacheDir),
		CacheEnabled: getEnvBool("DATA_CACHE_ENABLED", cfg.Data.CacheEnabled),
		LoadTimeout:  getEnvDuration("DATA_LOAD_TIMEOUT", cfg.Data.LoadTimeout),
	}
	cfg.Engine = EngineConfig{
		BucketMaxGroups: getEnvInt("ENGINE_BUCKET_MAX_GROUPS", cfg.Engine.BucketMaxGroups),
		BucketKeep:      getEnvInt("ENGINE_BUCKET_KEEP", cfg.Engine.BucketKeep),
		BucketMinShare:  getEnvFloat("ENGINE_BUCKET_MIN_SHARE", cfg.Engine.BucketMinShare),
		OptionScanLimit: getEnvInt("ENGINE_OPTION_SCAN_LIMIT", cfg.Engine.OptionScanLimit),
		TopProducts:     getEnvInt("ENGINE_TOP_PRODUCTS", cfg.Engine.TopProducts),
	}
	cfg.Store = StoreConfig{
		RedisURL:     getEnvString("STORE_REDIS_URL", cfg.Store.RedisURL),
		SelectionKey: getEnvString("STORE_SELECTION_KEY", cfg.Store.SelectionKey),
	}
	cfg.Logger = LoggerConfig{
		Level:  getEnvString("LOG_LEVEL", cfg.Logger.Level),
		Format: getEnvString("LOG_FORMAT", cfg.Logger.Format),
	}
	cfg.Security = SecurityConfig{
		EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", cfg.Security.EnableRateLimit),
		RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", cfg.Security.RateLimitRPS),
		RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", cfg.Security.RateLimitBurst),
		AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", cfg.Security.AllowedOrigins),
		TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", cfg.Security.TrustedProxies),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.File == "" {
		return fmt.Errorf("data file path cannot be empty")
	}

	if c.Data.CacheEnabled && c.Data.CacheDir == "" {
		return fmt.Errorf("cache directory cannot be empty when the cache is enabled")
	}

	if c.Engine.BucketMaxGroups < 1 || c.Engine.BucketKeep < 1 {
		return fmt.Errorf("bucket max groups and keep must be positive")
	}

	if c.Engine.BucketKeep > c.Engine.BucketMaxGroups {
		return fmt.Errorf("bucket keep (%d) cannot exceed max groups (%d)", c.Engine.BucketKeep, c.Engine.BucketMaxGroups)
	}

	if c.Engine.BucketMinShare < 0 || c.Engine.BucketMinShare >= 1 {
		return fmt.Errorf("bucket min share must be in [0, 1), got %v", c.Engine.BucketMinShare)
	}

	if c.Engine.OptionScanLimit < 0 {
		return fmt.Errorf("option scan limit cannot be negative")
	}

	if c.Engine.TopProducts < 1 {
		return fmt.Errorf("top products must be positive")
	}

	if c.Store.SelectionKey == "" {
		return fmt.Errorf("selection key cannot be empty")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
