// Package config defines the service configuration and its processing
// pipeline: parse, expand environment variables, apply defaults, validate.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Assistant AssistantConfig `yaml:"assistant" mapstructure:"assistant"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string      `yaml:"host" mapstructure:"host"`
	Port int         `yaml:"port" mapstructure:"port"`
	CORS *CORSConfig `yaml:"cors,omitempty" mapstructure:"cors"`
	// RateLimitPerMinute caps assistant messages per user per minute.
	// Zero disables throttling.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// CORSConfig configures cross-origin access for the browser client.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials" mapstructure:"allow_credentials"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Supported database drivers.
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverMySQL    = "mysql"
	DatabaseDriverPostgres = "postgres"
)

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver is one of sqlite, mysql, postgres.
	Driver string `yaml:"driver" mapstructure:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is the
	// database file path.
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"`
	MaxIdle  int    `yaml:"max_idle" mapstructure:"max_idle"`
}

// LLMConfig configures the completion-service client.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible chat completions endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
	// Timeout in seconds for a single completion request.
	Timeout     int      `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature *float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`
}

// AuthConfig configures JWT validation for scope resolution.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	JWKSURL  string `yaml:"jwks_url" mapstructure:"jwks_url"`
	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`
}

// AssistantConfig tunes the orchestration engine.
type AssistantConfig struct {
	// MaxRounds caps completion-service round trips in a single turn.
	MaxRounds int `yaml:"max_rounds" mapstructure:"max_rounds"`
	// HistoryWindow is the number of recent conversation entries forwarded
	// to the completion service.
	HistoryWindow int `yaml:"history_window" mapstructure:"history_window"`
	// SessionTTLMinutes is the idle lifetime of cross-turn session state.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	// SweepSchedule is a cron expression for the expired-session sweep.
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`
	// DraftMaxAgeHours is how long an unconfirmed draft survives before
	// the sweep deletes it.
	DraftMaxAgeHours int `yaml:"draft_max_age_hours" mapstructure:"draft_max_age_hours"`
	// MaxCandidates caps the disambiguation candidate list shown to users.
	MaxCandidates int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// SessionTTL returns the session lifetime as a duration.
func (c *AssistantConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// DraftMaxAge returns DraftMaxAgeHours as a duration.
func (c *AssistantConfig) DraftMaxAge() time.Duration {
	return time.Duration(c.DraftMaxAgeHours) * time.Hour
}

// SetDefaults fills unset fields with production defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DatabaseDriverSQLite
	}
	if c.Database.DSN == "" && c.Database.Driver == DatabaseDriverSQLite {
		c.Database.DSN = "concierge.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 2
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.Assistant.MaxRounds == 0 {
		c.Assistant.MaxRounds = 6
	}
	if c.Assistant.HistoryWindow == 0 {
		c.Assistant.HistoryWindow = 10
	}
	if c.Assistant.SessionTTLMinutes == 0 {
		c.Assistant.SessionTTLMinutes = 30
	}
	if c.Assistant.SweepSchedule == "" {
		c.Assistant.SweepSchedule = "@every 5m"
	}
	if c.Assistant.DraftMaxAgeHours == 0 {
		c.Assistant.DraftMaxAgeHours = 72
	}
	if c.Assistant.MaxCandidates == 0 {
		c.Assistant.MaxCandidates = 10
	}
}

// Validate checks the configuration for contradictions after defaults are
// applied.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DatabaseDriverSQLite, DatabaseDriverMySQL, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver must be sqlite, mysql, or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("llm.base_url must be an http(s) URL, got %q", c.LLM.BaseURL)
	}
	if c.Auth.Enabled && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth is enabled")
	}
	if c.Assistant.MaxRounds < 1 {
		return fmt.Errorf("assistant.max_rounds must be at least 1")
	}
	if c.Assistant.HistoryWindow < 0 {
		return fmt.Errorf("assistant.history_window must not be negative")
	}
	return nil
}

// Process runs the full pipeline: defaults then validation.
func Process(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
