// Package config provides centralized configuration management for the
// ingest service. Configuration is read from environment variables with
// defaults and validated on startup to fail fast on misconfiguration.
//
// The ingest toggles (INGEST_TO_KUSTO, FORCE_INGESTION, ALLOW_EMPTY_REPLACE)
// are fixed for the lifetime of the process.
package config

import (
	"strconv"
	"time"
)

// Destination backends.
const (
	BackendKusto    = "kusto"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Security    SecurityConfig
	Catalog     CatalogConfig
	Destination DestinationConfig
	Kusto       KustoConfig
	Database    DatabaseConfig
	Ingest      IngestConfig
	Schedule    ScheduleConfig
	Logging     LoggingConfig
}

// ServerConfig holds ops HTTP server settings.
type ServerConfig struct {
	// Enabled starts the ops HTTP server alongside the scheduler (default: true)
	Enabled bool `env:"SERVER_ENABLED" default:"true"`

	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig guards the ops API.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on POST /api/runs (default: false)
	RequireAPIKey bool `env:"OPS_REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted keys
	APIKeys []string `env:"OPS_API_KEYS"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// CatalogConfig describes where catalog documents come from.
type CatalogConfig struct {
	// Environments lists the environments to collect, in order (default: prod,preprod)
	Environments []string `env:"CATALOG_ENVIRONMENTS" default:"prod,preprod"`

	// URLTemplate is the catalog URL with {env} standing for the environment
	URLTemplate string `env:"CATALOG_URL_TEMPLATE" default:"https://{env}.releases.sphere.azure.net/versions/mt3620an.json"`

	// SourcesFile is an optional YAML file listing environment/url pairs.
	// When set it replaces Environments and URLTemplate.
	SourcesFile string `env:"CATALOG_SOURCES_FILE"`

	// Timeout bounds one HTTP request (default: 30s)
	Timeout time.Duration `env:"CATALOG_TIMEOUT" default:"30s"`

	// RetryAttempts is the total number of fetch attempts (default: 10)
	RetryAttempts int `env:"CATALOG_RETRY_ATTEMPTS" default:"10"`

	// RetryDelay is the first back-off delay, doubled per retry (default: 250ms)
	RetryDelay time.Duration `env:"CATALOG_RETRY_DELAY" default:"250ms"`

	// RetryMaxDelay caps the back-off delay (default: 30s)
	RetryMaxDelay time.Duration `env:"CATALOG_RETRY_MAX_DELAY" default:"30s"`
}

// DestinationConfig selects the destination table.
type DestinationConfig struct {
	// Backend is "kusto" or "postgres" (default: kusto)
	Backend string `env:"DESTINATION_BACKEND" default:"kusto"`

	// Table is the destination table name (default: OsVersionImages)
	Table string `env:"DESTINATION_TABLE" default:"OsVersionImages"`
}

// KustoConfig holds Azure Data Explorer settings.
type KustoConfig struct {
	// Cluster is the cluster URL
	Cluster string `env:"KUSTO_CLUSTER" default:"https://azsphere.eastus.kusto.windows.net"`

	// Database is the database holding the destination table
	Database string `env:"KUSTO_DATABASE" default:"DeviceInsightsProd"`

	// Auth is "managed-identity" or "default" (default: managed-identity)
	Auth string `env:"KUSTO_AUTH" default:"managed-identity"`

	// ClientID selects a user-assigned managed identity (optional)
	ClientID string `env:"KUSTO_CLIENT_ID" envAlt:"AZURE_CLIENT_ID"`

	// MaxRetries bounds retries of read queries (default: 3)
	MaxRetries int `env:"KUSTO_MAX_RETRIES" default:"3"`

	// Timeout bounds one request (default: 2m)
	Timeout time.Duration `env:"KUSTO_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds PostgreSQL settings for the postgres backend.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required for the postgres backend)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds the deploy-time ingest toggles.
type IngestConfig struct {
	// Enabled executes write commands; false only logs them (default: true)
	Enabled bool `env:"INGEST_TO_KUSTO" envAlt:"INGEST_ENABLED" default:"true"`

	// Force always replaces the table with the full catalog (default: false)
	Force bool `env:"FORCE_INGESTION" default:"false"`

	// AllowEmptyReplace permits clearing the table when the catalogs are empty (default: false)
	AllowEmptyReplace bool `env:"ALLOW_EMPTY_REPLACE" default:"false"`
}

// ScheduleConfig holds scheduler settings.
type ScheduleConfig struct {
	// Interval is how often to run (default: 1h)
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"1h"`

	// RunOnStart runs once immediately at startup (default: true)
	RunOnStart bool `env:"SCHEDULE_RUN_ON_START" default:"true"`

	// RunTimeout bounds a single run (default: 5m)
	RunTimeout time.Duration `env:"RUN_TIMEOUT" default:"5m"`

	// HistorySize is the number of runs kept for the ops API (default: 50)
	HistorySize int `env:"RUN_HISTORY_SIZE" default:"50"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
