package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Request-triggered provisioning modes.
const (
	ProvisionInline  = "inline"
	ProvisionEnqueue = "enqueue"
	ProvisionOff     = "off"
)

const devJWTSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"

// Config holds application configuration loaded from an optional YAML file
// and environment variables. Environment variables win.
type Config struct {
	Env         string `yaml:"env"`
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	JournalTimezone    string `yaml:"journal_timezone"`
	ProvisionSchedule  string `yaml:"provision_schedule"`
	ReconcileSchedule  string `yaml:"reconcile_schedule"`
	ProvisionOnRequest string `yaml:"provision_on_request"`

	JWTSecret     string   `yaml:"jwt_secret"`
	CORSOrigins   []string `yaml:"cors_origins"`
	RunMigrations bool     `yaml:"run_migrations"`
	SeedDevData   bool     `yaml:"seed_dev_data"`
}

func defaults() *Config {
	return &Config{
		Env:                "development",
		Port:               "8080",
		DatabaseURL:        "sqlite://givethnotes.db",
		LogLevel:           "info",
		LogFormat:          "text",
		JournalTimezone:    "UTC",
		ProvisionSchedule:  "5 0 * * *",
		ReconcileSchedule:  "30 3 * * *",
		ProvisionOnRequest: ProvisionInline,
		CORSOrigins:        []string{"http://localhost:5173"},
		RunMigrations:      true,
	}
}

// Load reads configuration. CONFIG_FILE names an optional YAML file whose
// keys mirror the environment variables in lower case.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Env = getEnvWithDefault("ENV", cfg.Env)
	cfg.Port = getEnvWithDefault("PORT", cfg.Port)
	cfg.DatabaseURL = getEnvWithDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnvWithDefault("REDIS_URL", cfg.RedisURL)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.JournalTimezone = getEnvWithDefault("JOURNAL_TIMEZONE", cfg.JournalTimezone)
	cfg.ProvisionSchedule = getEnvWithDefault("PROVISION_SCHEDULE", cfg.ProvisionSchedule)
	cfg.ReconcileSchedule = getEnvWithDefault("RECONCILE_SCHEDULE", cfg.ReconcileSchedule)
	cfg.ProvisionOnRequest = strings.ToLower(getEnvWithDefault("PROVISION_ON_REQUEST", cfg.ProvisionOnRequest))
	cfg.JWTSecret = getEnvWithDefault("JWT_SECRET", cfg.JWTSecret)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	var err error
	if cfg.RunMigrations, err = getEnvBool("RUN_MIGRATIONS", cfg.RunMigrations); err != nil {
		return nil, err
	}
	if cfg.SeedDevData, err = getEnvBool("SEED_DEV_DATA", cfg.SeedDevData); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ProvisionOnRequest {
	case ProvisionInline, ProvisionEnqueue, ProvisionOff:
	default:
		return fmt.Errorf("PROVISION_ON_REQUEST must be inline, enqueue or off, got %q", c.ProvisionOnRequest)
	}
	if c.ProvisionOnRequest == ProvisionEnqueue && c.RedisURL == "" {
		return fmt.Errorf("PROVISION_ON_REQUEST=enqueue requires REDIS_URL")
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must list at least one origin")
	}
	if _, err := time.LoadLocation(c.JournalTimezone); err != nil {
		return fmt.Errorf("invalid JOURNAL_TIMEZONE %q: %w", c.JournalTimezone, err)
	}

	// Warn if using default JWT secret (insecure for production)
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = devJWTSecret
		slog.Warn("Using default JWT_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	return nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the journal timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.JournalTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return defaultValue, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean, got %q", key, os.Getenv(key))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
