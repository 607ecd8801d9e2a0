package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Lims        LimsConfig       `mapstructure:"lims"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	OrderForm   OrderFormConfig  `mapstructure:"orderform"`
	Archive     ArchiveConfig    `mapstructure:"archive"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Submission  SubmissionConfig `mapstructure:"submission"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres", "sqlite"
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// LimsConfig represents the connection to the laboratory information management system
type LimsConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	ResearcherID string        `mapstructure:"researcher_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    int           `mapstructure:"rate_limit"` // requests per second
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the LIMS.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL     string        `mapstructure:"redis_url"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	TagCacheSize int           `mapstructure:"tag_cache_size"`
	TagCacheTTL  time.Duration `mapstructure:"tag_cache_ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// OrderFormConfig describes the order form spreadsheet.
type OrderFormConfig struct {
	SheetName string `mapstructure:"sheet_name"`
}

// ArchiveConfig selects where uploaded order forms are archived.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"` // "fs", "s3", "none"
	Root      string `mapstructure:"root"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// SubmissionConfig tunes the submission pipeline.
type SubmissionConfig struct {
	UpgradeTrioTags bool `mapstructure:"upgrade_trio_tags"`
}
