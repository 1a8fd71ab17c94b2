package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/osversion-ingest/internal/catalog"
)

// environmentPattern restricts environment names to what is safe inside a
// host name and a table literal.
var environmentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// tableNamePattern is a conservative identifier check shared by both backends.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = os.Getenv(alt)
			}
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
		}
		if c.Server.ShutdownTimeout <= 0 {
			errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
		}
	}

	if c.Server.Enabled && c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "OPS_API_KEYS must be set when OPS_REQUIRE_API_KEY is enabled")
	}

	// Catalog validation
	if c.Catalog.SourcesFile == "" {
		if len(c.Catalog.Environments) == 0 {
			errs = append(errs, "CATALOG_ENVIRONMENTS must list at least one environment")
		}
		for _, env := range c.Catalog.Environments {
			if !environmentPattern.MatchString(env) {
				errs = append(errs, fmt.Sprintf("CATALOG_ENVIRONMENTS entry %q must match %s", env, environmentPattern))
			}
		}
		if !strings.Contains(c.Catalog.URLTemplate, catalog.EnvPlaceholder) {
			errs = append(errs, fmt.Sprintf("CATALOG_URL_TEMPLATE must contain %s", catalog.EnvPlaceholder))
		}
	}
	if c.Catalog.RetryAttempts <= 0 {
		errs = append(errs, "CATALOG_RETRY_ATTEMPTS must be positive")
	}
	if c.Catalog.RetryDelay <= 0 {
		errs = append(errs, "CATALOG_RETRY_DELAY must be positive")
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, "CATALOG_TIMEOUT must be positive")
	}

	// Destination validation
	if !tableNamePattern.MatchString(c.Destination.Table) {
		errs = append(errs, fmt.Sprintf("DESTINATION_TABLE (%q) must be a plain identifier", c.Destination.Table))
	}
	switch c.Destination.Backend {
	case BackendKusto:
		if !strings.HasPrefix(c.Kusto.Cluster, "https://") {
			errs = append(errs, "KUSTO_CLUSTER must be an https URL")
		}
		if c.Kusto.Database == "" {
			errs = append(errs, "KUSTO_DATABASE is required")
		}
		if c.Kusto.Auth != "managed-identity" && c.Kusto.Auth != "default" {
			errs = append(errs, fmt.Sprintf("KUSTO_AUTH (%q) must be one of: managed-identity, default", c.Kusto.Auth))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres backend")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
	default:
		errs = append(errs, fmt.Sprintf("DESTINATION_BACKEND (%q) must be one of: kusto, postgres", c.Destination.Backend))
	}

	// Schedule validation
	if c.Schedule.Interval <= 0 {
		errs = append(errs, "SCHEDULE_INTERVAL must be positive")
	}
	if c.Schedule.RunTimeout <= 0 {
		errs = append(errs, "RUN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// sourcesFile is the layout of CATALOG_SOURCES_FILE.
type sourcesFile struct {
	Sources []catalog.Source `yaml:"sources" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Sources returns the catalog sources: from SourcesFile when set, otherwise
// one per environment from URLTemplate.
func (c *CatalogConfig) Sources() ([]catalog.Source, error) {
	if c.SourcesFile == "" {
		return catalog.SourcesFromTemplate(c.URLTemplate, c.Environments), nil
	}

	data, err := os.ReadFile(c.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("read catalog sources: %w", err)
	}
	return parseSources(data)
}

func parseSources(data []byte) ([]catalog.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog sources: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("catalog sources: %w", err)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, src := range f.Sources {
		if !environmentPattern.MatchString(src.Environment) {
			return nil, fmt.Errorf("catalog source %d: environment %q must match %s", i, src.Environment, environmentPattern)
		}
		if seen[src.Environment] {
			return nil, fmt.Errorf("catalog source %d: duplicate environment %q", i, src.Environment)
		}
		seen[src.Environment] = true
	}
	return f.Sources, nil
}

// IngestMode returns a short label for the active toggles.
func (c *Config) IngestMode() string {
	switch {
	case !c.Ingest.Enabled:
		return "dry-run"
	case c.Ingest.Force:
		return "force-replace"
	default:
		return "diff"
	}
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Enabled: %v, Host: %q, Port: %d}, ", c.Server.Enabled, c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: [%d MASKED], TrustedProxies: %v}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys), c.Security.TrustedProxies))
	b.WriteString(fmt.Sprintf("Catalog: {Environments: %v, SourcesFile: %q, RetryAttempts: %d}, ",
		c.Catalog.Environments, c.Catalog.SourcesFile, c.Catalog.RetryAttempts))
	b.WriteString(fmt.Sprintf("Destination: {Backend: %q, Table: %q}, ", c.Destination.Backend, c.Destination.Table))
	b.WriteString(fmt.Sprintf("Kusto: {Cluster: %q, Database: %q, Auth: %q}, ", c.Kusto.Cluster, c.Kusto.Database, c.Kusto.Auth))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d}, ", c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("Ingest: {Enabled: %v, Force: %v, AllowEmptyReplace: %v}, ",
		c.Ingest.Enabled, c.Ingest.Force, c.Ingest.AllowEmptyReplace))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
