// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Analysis modes.
const (
	ModeClassify = "classify" // three-way SPATIAL_QUERY / CLIENT_COMMAND / GENERAL_ANSWER
	ModeSQL      = "sql"      // model answers with a bare SQL statement
)

// Config is built once at startup and handed to the components that need it.
type Config struct {
	Env            string   `env:"APP_ENV" envDefault:"development"`
	Addr           string   `env:"ADDR" envDefault:":8000"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"console"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	DB      DB
	LLM     LLM
	Analyze Analyze
	History History
}

// DB holds the spatial database connection settings.
type DB struct {
	Driver       string        `env:"DB_DRIVER" envDefault:"postgres"` // postgres (lib/pq) or pgx
	Host         string        `env:"DB_HOST"`
	Port         string        `env:"DB_PORT" envDefault:"5432"`
	Name         string        `env:"DB_NAME"`
	User         string        `env:"DB_USER"`
	Password     string        `env:"DB_PASS"`
	SSLMode      string        `env:"DB_SSLMODE" envDefault:"disable"`
	QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"15s"`
	Guard        bool          `env:"SQL_GUARD" envDefault:"true"`
}

// LLM holds the model provider settings.
type LLM struct {
	Provider    string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	APIKey      string        `env:"LLM_API_KEY"`
	Model       string        `env:"LLM_MODEL"`
	BaseURL     string        `env:"LLM_BASE_URL"`
	Temperature float32       `env:"LLM_TEMPERATURE" envDefault:"0"`
	MaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"2048"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Provider specific keys, used when LLM_API_KEY is unset.
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// Analyze controls how user text is turned into a reply.
type Analyze struct {
	Mode             string `env:"ANALYZE_MODE" envDefault:"classify"`
	SchemaFile       string `env:"SCHEMA_FILE"`
	IntrospectSchema bool   `env:"SCHEMA_INTROSPECT" envDefault:"false"`
	RepairJSON       bool   `env:"LLM_REPAIR_JSON" envDefault:"false"`
}

// History configures the optional audit trail.
type History struct {
	MongoURI   string `env:"HISTORY_MONGODB_URI"`
	Database   string `env:"HISTORY_MONGODB_DB" envDefault:"geoquery"`
	Collection string `env:"HISTORY_MONGODB_COLLECTION" envDefault:"analyses"`
}

// Enabled reports whether an audit store is configured.
func (h History) Enabled() bool {
	return strings.TrimSpace(h.MongoURI) != ""
}

// Load reads envFile (if it exists) and then the process environment.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Analyze.Mode = strings.ToLower(strings.TrimSpace(cfg.Analyze.Mode))
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Analyze.Mode {
	case ModeClassify, ModeSQL:
	default:
		return fmt.Errorf("invalid ANALYZE_MODE %q (supported: classify, sql)", c.Analyze.Mode)
	}
	switch c.LLM.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q (supported: gemini, openai, anthropic)", c.LLM.Provider)
	}
	switch c.DB.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (supported: postgres, pgx)", c.DB.Driver)
	}
	if c.DB.QueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be positive, got %s", c.DB.QueryTimeout)
	}
	return nil
}

// Key returns the API key for the configured provider.
func (l LLM) Key() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	switch l.Provider {
	case "gemini":
		return l.GoogleAPIKey
	case "openai":
		return l.OpenAIAPIKey
	case "anthropic":
		return l.AnthropicAPIKey
	}
	return ""
}

// Missing lists the connection settings that are not set.
func (d DB) Missing() []string {
	var missing []string
	if strings.TrimSpace(d.Host) == "" {
		missing = append(missing, "DB_HOST")
	}
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "DB_NAME")
	}
	if strings.TrimSpace(d.User) == "" {
		missing = append(missing, "DB_USER")
	}
	if d.Password == "" {
		missing = append(missing, "DB_PASS")
	}
	return missing
}

// DSN returns a postgres:// URL accepted by both lib/pq and pgx.
func (d DB) DSN() string {
	port := d.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", d.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ReadSchemaFile returns the contents of SCHEMA_FILE, or "" when unset.
func (a Analyze) ReadSchemaFile() (string, error) {
	if a.SchemaFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(a.SchemaFile)
	if err != nil {
		return "", fmt.Errorf("read schema file: %w", err)
	}
	return string(b), nil
}
