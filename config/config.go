package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// Config holds all configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Session  SessionConfig  `yaml:"session"`
	Payment  PaymentConfig  `yaml:"payment"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level           string `yaml:"level"`
	Environment     string `yaml:"environment"`
	ViewerEnabled   bool   `yaml:"viewer_enabled"`
	SQLiteDBPath    string `yaml:"sqlite_db_path"`
	AsyncBufferSize int    `yaml:"async_buffer_size"`
	RetentionDays   int    `yaml:"retention_days"`
}

// SessionConfig holds wizard session lifecycle configuration.
type SessionConfig struct {
	// InactivityTimeout is the idle period after which an active session is abandoned.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	// TotalSteps is the number of wizard steps (PIN, details, payment, filing).
	TotalSteps int `yaml:"total_steps"`
	// CacheTTL bounds how long the local snapshot survives without writes.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// PaymentConfig holds mobile-money payment configuration.
type PaymentConfig struct {
	Amount       int           `yaml:"amount"`
	PollAttempts int           `yaml:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UpstreamConfig holds the external collaborator endpoints.
type UpstreamConfig struct {
	IdentityURL string        `yaml:"identity_url"`
	PaymentURL  string        `yaml:"payment_url"`
	FilingURL   string        `yaml:"filing_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	// FilingTimeout is longer because submission drives a remote portal.
	FilingTimeout time.Duration `yaml:"filing_timeout"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	TokenSecret      string        `yaml:"token_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	SecureCookies    bool          `yaml:"secure_cookies"`
	CookieDomain     string        `yaml:"cookie_domain"`
	AdminToken       string        `yaml:"admin_token"`
	RateLimitEnabled bool          `yaml:"rate_limit_enabled"`
	RateLimitRPS     int           `yaml:"rate_limit_rps"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "filing",
			Database:        "tax_filing",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			PoolSize:     10,
			MinIdleConns: 5,
		},
		Logging: LoggingConfig{
			Level:           "info",
			Environment:     "development",
			SQLiteDBPath:    logger.DefaultSQLitePath,
			AsyncBufferSize: 1000,
			RetentionDays:   7,
		},
		Session: SessionConfig{
			InactivityTimeout: 5 * time.Minute,
			TotalSteps:        4,
			CacheTTL:          24 * time.Hour,
		},
		Payment: PaymentConfig{
			Amount:       50,
			PollAttempts: 24,
			PollInterval: 5 * time.Second,
		},
		Upstream: UpstreamConfig{
			IdentityURL:   "http://localhost:9001",
			PaymentURL:    "http://localhost:9002",
			FilingURL:     "http://localhost:9003",
			Timeout:       15 * time.Second,
			FilingTimeout: 2 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			TokenTTL:         24 * time.Hour,
			SecureCookies:    true,
			RateLimitEnabled: true,
			RateLimitRPS:     50,
			RateLimitBurst:   100,
		},
	}
}

// Load builds configuration from defaults, the optional CONFIG_FILE overlay
// and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", c.Redis.MinIdleConns)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Environment = getEnv("ENVIRONMENT", c.Logging.Environment)
	c.Logging.ViewerEnabled = getEnvBool("LOG_VIEWER_ENABLED", c.Logging.ViewerEnabled)
	c.Logging.SQLiteDBPath = getEnv("LOG_SQLITE_PATH", c.Logging.SQLiteDBPath)
	c.Logging.AsyncBufferSize = getEnvInt("LOG_BUFFER_SIZE", c.Logging.AsyncBufferSize)
	c.Logging.RetentionDays = getEnvInt("LOG_RETENTION_DAYS", c.Logging.RetentionDays)

	c.Session.InactivityTimeout = getEnvDuration("SESSION_INACTIVITY_TIMEOUT", c.Session.InactivityTimeout)
	c.Session.TotalSteps = getEnvInt("SESSION_TOTAL_STEPS", c.Session.TotalSteps)
	c.Session.CacheTTL = getEnvDuration("SESSION_CACHE_TTL", c.Session.CacheTTL)

	c.Payment.Amount = getEnvInt("PAYMENT_AMOUNT", c.Payment.Amount)
	c.Payment.PollAttempts = getEnvInt("PAYMENT_POLL_ATTEMPTS", c.Payment.PollAttempts)
	c.Payment.PollInterval = getEnvDuration("PAYMENT_POLL_INTERVAL", c.Payment.PollInterval)

	c.Upstream.IdentityURL = getEnv("IDENTITY_URL", c.Upstream.IdentityURL)
	c.Upstream.PaymentURL = getEnv("PAYMENT_URL", c.Upstream.PaymentURL)
	c.Upstream.FilingURL = getEnv("FILING_URL", c.Upstream.FilingURL)
	c.Upstream.APIKey = getEnv("UPSTREAM_API_KEY", c.Upstream.APIKey)
	c.Upstream.Timeout = getEnvDuration("UPSTREAM_TIMEOUT", c.Upstream.Timeout)
	c.Upstream.FilingTimeout = getEnvDuration("FILING_TIMEOUT", c.Upstream.FilingTimeout)

	c.Security.AllowedOrigins = getEnvSlice("ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.TokenSecret = getEnv("TOKEN_SECRET", c.Security.TokenSecret)
	c.Security.TokenTTL = getEnvDuration("TOKEN_TTL", c.Security.TokenTTL)
	c.Security.SecureCookies = getEnvBool("SECURE_COOKIES", c.Security.SecureCookies)
	c.Security.CookieDomain = getEnv("COOKIE_DOMAIN", c.Security.CookieDomain)
	c.Security.AdminToken = getEnv("ADMIN_TOKEN", c.Security.AdminToken)
	c.Security.RateLimitEnabled = getEnvBool("RATE_LIMIT_ENABLED", c.Security.RateLimitEnabled)
	c.Security.RateLimitRPS = getEnvInt("RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.Security.RateLimitBurst)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Security.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}
	if c.Session.TotalSteps < 2 {
		return fmt.Errorf("session total steps must be at least 2, got %d", c.Session.TotalSteps)
	}
	if c.Session.InactivityTimeout <= 0 {
		return fmt.Errorf("session inactivity timeout must be positive")
	}
	if c.Payment.PollAttempts <= 0 || c.Payment.PollInterval <= 0 {
		return fmt.Errorf("payment polling budget must be positive")
	}
	if c.Payment.Amount <= 0 {
		return fmt.Errorf("payment amount must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
