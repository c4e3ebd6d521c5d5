// Package config loads settings from an optional .env file, an optional
// config.yaml and RECUR_-prefixed environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// EnvPrefix prefixes every environment override, e.g. RECUR_SERVER_PORT=9000.
const EnvPrefix = "RECUR"

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

type JobsConfig struct {
	Buffer     int           `mapstructure:"buffer"`
	Workers    int           `mapstructure:"workers"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Store    StoreConfig    `mapstructure:"store"`
}

var defaults = map[string]interface{}{
	"database.url":       "",
	"database.max_conns": 10,
	"server.port":        8080,
	"log.level":          "info",
	"log.format":         "console",
	"gcs.bucket":         "",
	"bigquery.project":   "",
	"bigquery.dataset":   "finance",
	"notion.token":       "",
	"notion.database_id": "",
	"jobs.buffer":        100,
	"jobs.workers":       5,
	"jobs.max_retries":   3,
	"jobs.backoff":       "1s",
	"store.driver":       DriverPostgres,
}

// Load reads configuration. With an empty path, config.yaml in the working
// directory is used if present; an explicit path must exist. A .env file in
// the working directory is loaded first without overriding variables that
// are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names used by the deployment tooling.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("bigquery.project", EnvPrefix+"_BIGQUERY_PROJECT", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("gcs.bucket", EnvPrefix+"_GCS_BUCKET", "GCS_BUCKET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings every command depends on. Service-specific
// settings such as the Notion token are checked where they are used.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: store.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Store.Driver)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be positive, got %d", c.Database.MaxConns)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	if c.Jobs.Workers < 1 || c.Jobs.Buffer < 1 {
		return fmt.Errorf("config: jobs.workers and jobs.buffer must be positive")
	}
	return nil
}

// RequireDatabase reports an error when the postgres driver is selected
// without a connection URL.
func (c *Config) RequireDatabase() error {
	if c.Store.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("config: database.url (RECUR_DATABASE_URL or DATABASE_URL) is required for the postgres store")
	}
	return nil
}
