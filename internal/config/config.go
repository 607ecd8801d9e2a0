package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/cg-order-portal/internal/database"
	"github.com/cg-order-portal/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. CGADMIN_LIMS_BASE_URL.
const EnvPrefix = "CGADMIN"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager loads configuration from configFile, or from config.yaml in the
// usual search paths when configFile is empty.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cgadmin/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	applyLiteDefaults(config)

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_size", 10<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "cgadmin")
	v.SetDefault("database.username", "cgadmin")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.sqlite_path", "")
	v.SetDefault("database.migrations_path", database.DefaultMigrationsPath)

	v.SetDefault("lims.base_url", "http://localhost:9080/api/v2")
	v.SetDefault("lims.username", "")
	v.SetDefault("lims.password", "")
	v.SetDefault("lims.researcher_id", "3")
	v.SetDefault("lims.timeout", "30s")
	v.SetDefault("lims.rate_limit", 5)
	v.SetDefault("lims.breaker.max_requests", 1)
	v.SetDefault("lims.breaker.interval", "60s")
	v.SetDefault("lims.breaker.timeout", "30s")
	v.SetDefault("lims.breaker.min_requests", 3)
	v.SetDefault("lims.breaker.failure_ratio", 0.6)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.lock_ttl", "10m")
	v.SetDefault("cache.tag_cache_size", 256)
	v.SetDefault("cache.tag_cache_ttl", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	v.SetDefault("orderform.sheet_name", "order form")

	v.SetDefault("archive.driver", "fs")
	v.SetDefault("archive.root", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.path_style", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "cg-order-portal")
	v.SetDefault("telemetry.environment", "")

	v.SetDefault("submission.upgrade_trio_tags", true)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetLimsConfig returns the LIMS connection configuration
func (m *Manager) GetLimsConfig() *domain.LimsConfig {
	return &m.config.Lims
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

var (
	validLogLevels = map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true, "fatal": true, "panic": true,
	}
	validLogFormats     = map[string]bool{"json": true, "text": true}
	validArchiveDrivers = map[string]bool{"": true, "none": true, "fs": true, "s3": true}
)

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Driver {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("database sqlite_path is required")
		}
	default:
		return fmt.Errorf("invalid database driver: %q", config.Database.Driver)
	}

	base, err := url.Parse(config.Lims.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid LIMS base URL: %q", config.Lims.BaseURL)
	}
	if config.Lims.RateLimit < 0 {
		return fmt.Errorf("invalid LIMS rate limit: %d", config.Lims.RateLimit)
	}
	if ratio := config.Lims.Breaker.FailureRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("invalid LIMS breaker failure ratio: %v", ratio)
	}

	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	if !validArchiveDrivers[config.Archive.Driver] {
		return fmt.Errorf("invalid archive driver: %q", config.Archive.Driver)
	}
	if config.Archive.Driver == "s3" && config.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required for the s3 driver")
	}

	if config.Telemetry.Enabled && config.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	return database.ConnectionString(m.config.Database)
}

// GetDatabaseURL returns the postgres:// URL of the database
func (m *Manager) GetDatabaseURL() string {
	return database.URL(m.config.Database)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

var _ domain.ConfigManager = (*Manager)(nil)
