package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all server configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Auth         AuthConfig
	Cache        CacheConfig
	InspectionDB InspectionDBConfig
	NCRDB        NCRDBConfig
	Sync         SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxBodyBytes    int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"16777216"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"siteproof-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"2.0.0"`
}

// AuthConfig holds API key settings. An empty key list disables the key check.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS" default:""`
}

// CacheConfig holds settings for the sync idempotency cache.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"siteproof"`
}

// InspectionDBConfig holds the inspection/template store settings.
type InspectionDBConfig struct {
	Type string `envconfig:"INSPECTION_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"INSPECTION_DB_PATH" default:"./data/inspections.db"`
	// PostgreSQL settings
	Host     string `envconfig:"INSPECTION_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"INSPECTION_DB_PORT" default:"5432"`
	Name     string `envconfig:"INSPECTION_DB_NAME" default:"siteproof"`
	User     string `envconfig:"INSPECTION_DB_USER" default:"postgres"`
	Password string `envconfig:"INSPECTION_DB_PASS" default:""`
	SSLMode  string `envconfig:"INSPECTION_DB_SSLMODE" default:"disable"`
}

// NCRDBConfig holds the NCR store settings.
type NCRDBConfig struct {
	Type string `envconfig:"NCR_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Path string `envconfig:"NCR_DB_PATH" default:"./data/ncrs.db"`
	// MySQL settings
	Host     string `envconfig:"NCR_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"NCR_DB_PORT" default:"3306"`
	Name     string `envconfig:"NCR_DB_NAME" default:"siteproof"`
	User     string `envconfig:"NCR_DB_USER" default:"root"`
	Password string `envconfig:"NCR_DB_PASS" default:""`
}

// SyncConfig holds reconciliation limits.
type SyncConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SYNC_IDEMPOTENCY_TTL" default:"10m"`
	MaxBatch       int           `envconfig:"SYNC_MAX_BATCH" default:"500"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (i *InspectionDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		i.User, i.Password, i.Host, i.Port, i.Name, i.SSLMode)
}

// DSN returns the MySQL data source name.
func (n *NCRDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		n.User, n.Password, n.Host, n.Port, n.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate rejects combinations envconfig cannot catch on its own.
func (c *Config) Validate() error {
	switch c.InspectionDB.Type {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unknown INSPECTION_DB_TYPE %q", c.InspectionDB.Type)
	}
	switch c.NCRDB.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown NCR_DB_TYPE %q", c.NCRDB.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_TYPE %q", c.Cache.Type)
	}
	if c.Sync.MaxBatch <= 0 {
		return fmt.Errorf("SYNC_MAX_BATCH must be positive, got %d", c.Sync.MaxBatch)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
