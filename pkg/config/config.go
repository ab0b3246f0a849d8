package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Session SessionConfig `mapstructure:"session"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Browser BrowserConfig `mapstructure:"browser"`
	OTel    OTelConfig    `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings for the storefront BFF
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// BackendConfig describes the platform gateway the storefront talks to
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// GetRetryCount is the number of additional attempts for idempotent reads
	GetRetryCount int           `mapstructure:"get_retry_count"`
	GetRetryDelay time.Duration `mapstructure:"get_retry_delay"`
}

// SessionConfig holds credential handling settings
type SessionConfig struct {
	ExpiryBuffer  time.Duration `mapstructure:"expiry_buffer"`
	CredentialKey string        `mapstructure:"credential_key"`
	GuestKey      string        `mapstructure:"guest_key"`
}

// StorageConfig selects the durable client-local store
type StorageConfig struct {
	Driver    string `mapstructure:"driver"` // memory, redis
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// BrowserConfig holds settings for the browsing-context cookie
type BrowserConfig struct {
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	CookieMaxAge time.Duration `mapstructure:"cookie_max_age"`
	// IdleTTL drops browsing contexts from memory after this much inactivity
	// when their storage outlives them; 0 disables eviction
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, environment variables may carry everything
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "ecom-storefront")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Backend gateway defaults
	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8080")
	v.SetDefault("BACKEND_API_VERSION", "v1")
	v.SetDefault("BACKEND_REQUEST_TIMEOUT", "15s")
	v.SetDefault("BACKEND_GET_RETRY_COUNT", 2)
	v.SetDefault("BACKEND_GET_RETRY_DELAY", "500ms")

	// Session defaults
	v.SetDefault("SESSION_EXPIRY_BUFFER", "60s")
	v.SetDefault("SESSION_CREDENTIAL_KEY", "ecom_session")
	v.SetDefault("SESSION_GUEST_KEY", "ecom_guest_id")

	// Storage defaults
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("STORAGE_KEY_PREFIX", "storefront:")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Browser cookie defaults
	v.SetDefault("BROWSER_COOKIE_NAME", "ecom_browser")
	v.SetDefault("BROWSER_COOKIE_SECURE", false)
	v.SetDefault("BROWSER_COOKIE_MAX_AGE", "8760h") // 1 year
	v.SetDefault("BROWSER_IDLE_TTL", "30m")
	v.SetDefault("BROWSER_SWEEP_INTERVAL", "1m")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ecom-storefront")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Backend
	cfg.Backend.BaseURL = strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/")
	cfg.Backend.APIVersion = v.GetString("BACKEND_API_VERSION")
	cfg.Backend.RequestTimeout = v.GetDuration("BACKEND_REQUEST_TIMEOUT")
	cfg.Backend.GetRetryCount = v.GetInt("BACKEND_GET_RETRY_COUNT")
	cfg.Backend.GetRetryDelay = v.GetDuration("BACKEND_GET_RETRY_DELAY")

	// Session
	cfg.Session.ExpiryBuffer = v.GetDuration("SESSION_EXPIRY_BUFFER")
	cfg.Session.CredentialKey = v.GetString("SESSION_CREDENTIAL_KEY")
	cfg.Session.GuestKey = v.GetString("SESSION_GUEST_KEY")

	// Storage
	cfg.Storage.Driver = strings.ToLower(v.GetString("STORAGE_DRIVER"))
	cfg.Storage.KeyPrefix = v.GetString("STORAGE_KEY_PREFIX")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Browser
	cfg.Browser.CookieName = v.GetString("BROWSER_COOKIE_NAME")
	cfg.Browser.CookieSecure = v.GetBool("BROWSER_COOKIE_SECURE")
	cfg.Browser.CookieMaxAge = v.GetDuration("BROWSER_COOKIE_MAX_AGE")
	cfg.Browser.IdleTTL = v.GetDuration("BROWSER_IDLE_TTL")
	cfg.Browser.SweepInterval = v.GetDuration("BROWSER_SWEEP_INTERVAL")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.Backend.BaseURL)
	}

	if c.Backend.APIVersion == "" {
		return fmt.Errorf("BACKEND_API_VERSION is required")
	}

	if c.Backend.GetRetryCount < 0 {
		return fmt.Errorf("BACKEND_GET_RETRY_COUNT must not be negative: %d", c.Backend.GetRetryCount)
	}

	if c.Backend.GetRetryDelay < 0 {
		return fmt.Errorf("BACKEND_GET_RETRY_DELAY must not be negative: %s", c.Backend.GetRetryDelay)
	}

	switch c.Storage.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER: %q", c.Storage.Driver)
	}

	if c.Browser.CookieName == "" {
		return fmt.Errorf("BROWSER_COOKIE_NAME is required")
	}

	if c.Browser.IdleTTL > 0 && c.Browser.SweepInterval <= 0 {
		return fmt.Errorf("BROWSER_SWEEP_INTERVAL must be positive when BROWSER_IDLE_TTL is set")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
