package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dvloznov/momo-tracker/internal/domain"
	"github.com/dvloznov/momo-tracker/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingDatabaseURL is returned when the postgres driver is selected
// without a DATABASE_URL or DB_HOST.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL or DB_HOST is required for the postgres driver")

// Config holds settings shared by the API server, the CLI and the worker.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`

	UploadDir        string `mapstructure:"UPLOAD_DIR"`
	MaxContentLength int64  `mapstructure:"MAX_CONTENT_LENGTH"`

	SenderAddress string `mapstructure:"SENDER_ADDRESS"`
	NamesFile     string `mapstructure:"NAMES_FILE"`
	ImportMode    string `mapstructure:"IMPORT_MODE"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`

	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	ImportEventsExchange string `mapstructure:"IMPORT_EVENTS_EXCHANGE"`

	GCSBucket       string `mapstructure:"GCS_BUCKET"`
	BigQueryProject string `mapstructure:"BIGQUERY_PROJECT"`
	BigQueryDataset string `mapstructure:"BIGQUERY_DATASET"`

	ImportSchedule  string `mapstructure:"IMPORT_SCHEDULE"`
	ImportSourceURI string `mapstructure:"IMPORT_SOURCE_URI"`
}

var keys = []string{
	"SERVER_PORT",
	"DATABASE_DRIVER", "DATABASE_URL", "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME",
	"UPLOAD_DIR", "MAX_CONTENT_LENGTH",
	"SENDER_ADDRESS", "NAMES_FILE", "IMPORT_MODE", "LOG_LEVEL",
	"RABBITMQ_URL", "IMPORT_EVENTS_EXCHANGE",
	"GCS_BUCKET", "BIGQUERY_PROJECT", "BIGQUERY_DATASET",
	"IMPORT_SCHEDULE", "IMPORT_SOURCE_URI",
}

// LoadDotEnv loads variables from the given files, or .env when none are
// given. Missing files are ignored; existing environment variables win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// LoadConfig reads configuration from environment variables, fills
// defaults, resolves the database URL and validates the result.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_NAME", "momo_analysis")
	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("MAX_CONTENT_LENGTH", 16<<20)
	viper.SetDefault("SENDER_ADDRESS", "M-Money")
	viper.SetDefault("IMPORT_MODE", string(domain.ImportModeReplace))
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("IMPORT_EVENTS_EXCHANGE", "momo.imports")
	viper.SetDefault("BIGQUERY_DATASET", "momo")
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("LoadConfig: unmarshalling: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = cfg.inferDriver()
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.defaultDatabaseURL()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	return &cfg, nil
}

// inferDriver picks postgres when the URL or DB_HOST point at a server and
// sqlite otherwise.
func (c *Config) inferDriver() string {
	if c.DBHost != "" || isPostgresURL(c.DatabaseURL) {
		return store.DriverPostgres
	}
	return store.DriverSQLite
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (c *Config) defaultDatabaseURL() string {
	switch {
	case c.DBHost != "":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     c.DBHost,
			Path:     "/" + c.DBName,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	case c.DatabaseDriver == store.DriverSQLite:
		return "momo.db"
	default:
		return ""
	}
}

// Validate rejects unknown drivers and import modes, a missing postgres URL
// and a postgres URL handed to sqlite.
func (c *Config) Validate() error {
	if _, err := store.DialectFor(c.DatabaseDriver); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.DatabaseDriver == store.DriverSQLite && isPostgresURL(c.DatabaseURL) {
		return fmt.Errorf("DATABASE_DRIVER sqlite cannot open postgres DATABASE_URL")
	}
	if !domain.ImportMode(c.ImportMode).Valid() {
		return fmt.Errorf("unknown IMPORT_MODE %q", c.ImportMode)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	return nil
}

// Mode returns the configured default import mode.
func (c *Config) Mode() domain.ImportMode {
	return domain.ImportMode(c.ImportMode)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.ServerPort
}
