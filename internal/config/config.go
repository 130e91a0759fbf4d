// Package config provides configuration management for the Alexander library server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Inventory    InventoryConfig    `mapstructure:"inventory"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings.
// Supports PostgreSQL, SQLite and a volatile in-memory backend.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres", "sqlite" or "memory".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres").
	// URL, when set, replaces the discrete connection fields.
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF

	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite or memory).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite" || c.Driver == "memory"
}

// RedisConfig holds Redis connection settings.
// When enabled, Redis backs the per-book lock and the category cache so
// several server instances can share them.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds identity token settings.
type AuthConfig struct {
	// JWTSecret signs and verifies HS256 bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`

	// Issuer is written to and required in the iss claim.
	Issuer string `mapstructure:"issuer"`

	// TokenTTL is the lifetime of tokens issued by the admin CLI.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// InventoryConfig tunes per-book serialization.
type InventoryConfig struct {
	// LockTTL bounds how long a crashed holder can block a book.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// LockRetries is the number of extra acquisition attempts before
	// failing with a busy error.
	LockRetries int `mapstructure:"lock_retries"`

	// LockRetryDelay is the pause between acquisition attempts.
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`

	// MaxConflictRetries is the number of attempts for a unit of work
	// that lost a version check.
	MaxConflictRetries int `mapstructure:"max_conflict_retries"`

	// ConflictBaseDelay is the first backoff delay after a lost version check.
	ConflictBaseDelay time.Duration `mapstructure:"conflict_base_delay"`
}

// NotificationConfig holds email notification settings.
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Sender selects the delivery backend: "log" or "smtp".
	Sender string `mapstructure:"sender"`

	// Workers is the number of delivery goroutines.
	Workers int `mapstructure:"workers"`

	// QueueSize bounds pending messages. A full queue drops new messages.
	QueueSize int `mapstructure:"queue_size"`

	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	From string     `mapstructure:"from"`
	SMTP SMTPConfig `mapstructure:"smtp"`

	// ReminderInterval is how often the server queues due-date reminders.
	// Zero disables the scheduler; reminders can still be sent on demand.
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`

	// ReminderWindow selects reservations due within this duration.
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Addr returns the SMTP address in host:port format.
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds read-through cache settings.
type CacheConfig struct {
	// CategoryTTL is how long category lookups stay cached.
	CategoryTTL time.Duration `mapstructure:"category_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled determines if rate limiting is active.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the rate of token refill per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// BurstSize is the maximum number of tokens (burst capacity).
	BurstSize int `mapstructure:"burst_size"`

	// ClientTTL is how long an idle client's limiter is kept.
	ClientTTL time.Duration `mapstructure:"client_ttl"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with ALEXANDER_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("ALEXANDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alexander")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 1*1024*1024) // 1MB

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "alexander")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "alexander")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	// SQLite defaults
	v.SetDefault("database.path", "./data/library.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "") // Must be provided
	v.SetDefault("auth.issuer", "alexander-library")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	// Inventory defaults
	v.SetDefault("inventory.lock_ttl", 10*time.Second)
	v.SetDefault("inventory.lock_retries", 20)
	v.SetDefault("inventory.lock_retry_delay", 25*time.Millisecond)
	v.SetDefault("inventory.max_conflict_retries", 6)
	v.SetDefault("inventory.conflict_base_delay", 10*time.Millisecond)

	// Notification defaults
	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.sender", "log")
	v.SetDefault("notification.workers", 2)
	v.SetDefault("notification.queue_size", 256)
	v.SetDefault("notification.send_timeout", 10*time.Second)
	v.SetDefault("notification.from", "library@localhost")
	v.SetDefault("notification.smtp.host", "localhost")
	v.SetDefault("notification.smtp.port", 25)
	v.SetDefault("notification.reminder_interval", 0)
	v.SetDefault("notification.reminder_window", 48*time.Hour)

	// Cache defaults
	v.SetDefault("cache.category_ttl", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst_size", 40)
	v.SetDefault("rate_limit.client_ttl", 10*time.Minute)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	validDrivers := map[string]bool{"postgres": true, "sqlite": true, "memory": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres', 'sqlite' or 'memory'")
	}

	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	}

	// Validate auth configuration
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	// Validate inventory configuration
	if c.Inventory.LockTTL <= 0 {
		return fmt.Errorf("inventory.lock_ttl must be positive")
	}
	if c.Inventory.LockRetries < 0 {
		return fmt.Errorf("inventory.lock_retries must not be negative")
	}
	if c.Inventory.MaxConflictRetries < 1 {
		return fmt.Errorf("inventory.max_conflict_retries must be at least 1")
	}

	// Validate notification configuration
	if c.Notification.Enabled {
		if c.Notification.Sender != "log" && c.Notification.Sender != "smtp" {
			return fmt.Errorf("notification.sender must be 'log' or 'smtp'")
		}
		if c.Notification.Workers < 1 {
			return fmt.Errorf("notification.workers must be at least 1")
		}
		if c.Notification.QueueSize < 1 {
			return fmt.Errorf("notification.queue_size must be at least 1")
		}
		if c.Notification.ReminderInterval < 0 {
			return fmt.Errorf("notification.reminder_interval must not be negative")
		}
		if c.Notification.ReminderInterval > 0 && c.Notification.ReminderWindow <= 0 {
			return fmt.Errorf("notification.reminder_window must be positive")
		}
	}

	// Validate rate limit configuration
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize < 1) {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst_size must be positive")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
