package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"soci/internal/core"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	// HTTP Server
	Port string `envconfig:"PORT" default:"8081"`

	// Storage
	DataBackend  string `envconfig:"DATA_BACKEND" default:"memory"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data"`
	SQLiteDBPath string `envconfig:"SQLITE_DB_PATH" default:"./data/soci.db"`

	// Partnership
	Partners         string  `envconfig:"PARTNERS" default:"partner1:Partner 1,partner2:Partner 2"`
	CorporateTaxRate float64 `envconfig:"CORPORATE_TAX_RATE" default:"0.20"`
	DividendTaxRate  float64 `envconfig:"DIVIDEND_TAX_RATE" default:"0.05"`
	Currency         string  `envconfig:"CURRENCY" default:"EUR"`
	AllowOverdraw    bool    `envconfig:"ALLOW_OVERDRAW" default:"false"`

	// Financials cache
	CacheBackend string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	RedisAddr    string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	// AMQP, disabled when the URL is empty
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"soci"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"ledger_changed"`

	// Google Sheets statement export
	GoogleSpreadsheetID   string        `envconfig:"GOOGLE_SPREADSHEET_ID"`
	GoogleStatementsSheet string        `envconfig:"GOOGLE_STATEMENTS_SHEET" default:"Statements"`
	GoogleCredentialsFile string        `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	GoogleCredentialsJSON string        `envconfig:"GOOGLE_CREDENTIALS_JSON"`
	ExportInterval        time.Duration `envconfig:"EXPORT_INTERVAL" default:"5m"`

	// Narrative report
	GeminiAPIKey  string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	ReportTimeout time.Duration `envconfig:"REPORT_TIMEOUT" default:"30s"`

	// Logging
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return &cfg, nil
}

// Roster parses PARTNERS.
func (c *Config) Roster() (core.Roster, error) {
	return core.ParseRoster(c.Partners)
}

func (c *Config) Tax() core.TaxConfig {
	return core.TaxConfig{CorporateRate: c.CorporateTaxRate, DividendRate: c.DividendTaxRate}
}

// ExportEnabled reports whether a spreadsheet is configured.
func (c *Config) ExportEnabled() bool {
	return strings.TrimSpace(c.GoogleSpreadsheetID) != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(filepath.Dir(c.SQLiteDBPath)); msg != "" {
			errors = append(errors, msg)
		}
	case BackendMemory:
		if c.DataDir != "" {
			if msg := ensureDir(c.DataDir); msg != "" {
				errors = append(errors, msg)
			}
		}
	}

	if _, err := c.Roster(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid partners '%s': %v", c.Partners, err))
	}
	if err := c.Tax().Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	validCaches := []string{CacheMemory, CacheRedis}
	if !slices.Contains(validCaches, c.CacheBackend) {
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.CacheBackend, validCaches))
	}
	if c.CacheBackend == CacheRedis && c.RedisAddr == "" {
		errors = append(errors, "Redis address cannot be empty when using redis cache")
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}
	if c.ExportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
	} else if c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
	}

	if c.ReportTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid report timeout %v: must be positive", c.ReportTimeout))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureDir(dir string) string {
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Sprintf("cannot create directory '%s': %v", dir, err)
		}
	}
	return ""
}
