// Package config defines the application configuration file and its
// defaults. Values come from a YAML file with ${VAR} environment expansion;
// the CLI layers flag and environment overrides on top via viper.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Policy   PolicyConfig   `yaml:"policy"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RatePerMinute   int        `yaml:"rate_per_minute"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls token issuance and verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry string `yaml:"jwt_expiry"`
}

// DatabaseConfig points at the data warehouse being queried.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // postgres, mysql, sqlite, sqlserver
	DSN             string `yaml:"dsn"`
	Schema          string `yaml:"schema"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// LLMConfig controls the generation engine. Disabled means template-only.
type LLMConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	Timeout      string  `yaml:"timeout"`
	Explanations bool    `yaml:"explanations"`
}

// PipelineConfig holds the safety and caching knobs.
type PipelineConfig struct {
	MaxLimit         int    `yaml:"max_limit"`
	DefaultLimit     int    `yaml:"default_limit"`
	StatementTimeout string `yaml:"statement_timeout"`
	CacheMaxEntries  int    `yaml:"cache_max_entries"`
	CacheTTL         string `yaml:"cache_ttl"`
	CatalogTTL       string `yaml:"catalog_ttl"`
	AnalyticsWindow  int    `yaml:"analytics_window"`
}

// PolicyConfig points at the roles file. Empty means the built-in dev policy.
type PolicyConfig struct {
	File string `yaml:"file"`
}

// StorageConfig controls where saved queries and the audit log live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML configuration file. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing. Defaults
// fill any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults: a local sqlite
// warehouse, template-only generation, and conservative limits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			RatePerMinute:   20,
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			},
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "tabletalk-demo.db",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: "5m",
		},
		LLM: LLMConfig{
			Enabled:      false,
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			MaxTokens:    1024,
			Temperature:  0.2,
			Timeout:      "10s",
			Explanations: false,
		},
		Pipeline: PipelineConfig{
			MaxLimit:         1000,
			DefaultLimit:     100,
			StatementTimeout: "15s",
			CacheMaxEntries:  256,
			CacheTTL:         "5m",
			CatalogTTL:       "10m",
			AnalyticsWindow:  10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Addr returns the host:port the server should listen on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
