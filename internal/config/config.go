// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: YAML or TOML files with .env loading, ${VAR} expansion, duration parsing and defaults

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Tailscale     TailscaleConfig     `yaml:"tailscale" toml:"tailscale"`
	Database      DatabaseConfig      `yaml:"database" toml:"database"`
	LLM           LLMConfig           `yaml:"llm" toml:"llm"`
	Agents        AgentsConfig        `yaml:"agents" toml:"agents"`
	Conversations ConversationsConfig `yaml:"conversations" toml:"conversations"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	HTTPAddr    string   `yaml:"http_addr" toml:"http_addr"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig selects and configures the storage backend
type DatabaseConfig struct {
	Backend       string `yaml:"backend" toml:"backend"`
	Path          string `yaml:"path" toml:"path"`
	RedisURL      string `yaml:"redis_url" toml:"redis_url"`
	MongoURI      string `yaml:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" toml:"mongo_database"`
}

// LLMConfig configures the remote model behind "llm" agents.
// An empty APIKey disables it and those agents echo instead.
type LLMConfig struct {
	Provider string `yaml:"provider" toml:"provider"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`
}

// AgentsConfig holds strategy tuning and agents created at startup
type AgentsConfig struct {
	EchoDelay time.Duration `yaml:"-" toml:"-"`
	Seed      []SeedAgent   `yaml:"seed" toml:"seed"`

	// Raw string values for unmarshaling
	EchoDelayRaw string `yaml:"echo_delay" toml:"echo_delay"`
}

// SeedAgent is an agent created on startup when its name is free
type SeedAgent struct {
	Name    string `yaml:"name" toml:"name"`
	Persona string `yaml:"persona" toml:"persona"`
	Type    string `yaml:"type" toml:"type"`
}

// ConversationsConfig holds conversation write settings
type ConversationsConfig struct {
	Lock LockConfig `yaml:"lock" toml:"lock"`

	// IdempotencyTTL is how long an Idempotency-Key is remembered. Zero disables the check.
	IdempotencyTTL  time.Duration `yaml:"-" toml:"-"`
	IdempotencyKeys int           `yaml:"idempotency_keys" toml:"idempotency_keys"`

	IdempotencyTTLRaw string `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
}

// LockConfig controls the advisory lock around conversation writes
type LockConfig struct {
	Scope      string        `yaml:"scope" toml:"scope"` // none, write or turn
	Attempts   int           `yaml:"attempts" toml:"attempts"`
	RetryDelay time.Duration `yaml:"-" toml:"-"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TTL        time.Duration `yaml:"-" toml:"-"`

	RetryDelayRaw string `yaml:"retry_delay" toml:"retry_delay"`
	TimeoutRaw    string `yaml:"timeout" toml:"timeout"`
	TTLRaw        string `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file in the working directory is loaded first without overriding the
// environment. ${VAR_NAME} references are then expanded. Files ending in .toml
// are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Database.Backend == "" {
		c.Database.Backend = BackendSQLite
	}
	if c.Database.MongoDatabase == "" {
		c.Database.MongoDatabase = "parley"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.Agents.EchoDelayRaw == "" {
		c.Agents.EchoDelay = 300 * time.Millisecond
	}
	if c.Conversations.Lock.Scope == "" {
		c.Conversations.Lock.Scope = "write"
	}
	if c.Conversations.Lock.Attempts == 0 {
		c.Conversations.Lock.Attempts = 5
	}
	if c.Conversations.Lock.RetryDelayRaw == "" {
		c.Conversations.Lock.RetryDelay = time.Second
	}
	if c.Conversations.Lock.TimeoutRaw == "" {
		c.Conversations.Lock.Timeout = 5 * time.Second
	}
	if c.Conversations.Lock.TTLRaw == "" {
		c.Conversations.Lock.TTL = 10 * time.Second
	}
	if c.Conversations.IdempotencyTTLRaw == "" {
		c.Conversations.IdempotencyTTL = 10 * time.Minute
	}
	if c.Conversations.IdempotencyKeys == 0 {
		c.Conversations.IdempotencyKeys = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Database.RedisURL == "" {
			return fmt.Errorf("database.redis_url is required for the redis backend")
		}
	case BackendMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("database.mongo_uri is required for the mongo backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("database.backend %q is not one of sqlite, redis, mongo, memory", c.Database.Backend)
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider %q is not one of openai, gemini", c.LLM.Provider)
	}

	switch c.Conversations.Lock.Scope {
	case "none", "write", "turn":
	default:
		return fmt.Errorf("conversations.lock.scope %q is not one of none, write, turn", c.Conversations.Lock.Scope)
	}
	if c.Conversations.Lock.Attempts < 1 {
		return fmt.Errorf("conversations.lock.attempts must be at least 1")
	}
	if c.Conversations.IdempotencyKeys < 0 {
		return fmt.Errorf("conversations.idempotency_keys must not be negative")
	}

	for i, a := range c.Agents.Seed {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agents.seed[%d].name is required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agents.echo_delay", cfg.Agents.EchoDelayRaw, &cfg.Agents.EchoDelay},
		{"conversations.lock.retry_delay", cfg.Conversations.Lock.RetryDelayRaw, &cfg.Conversations.Lock.RetryDelay},
		{"conversations.lock.timeout", cfg.Conversations.Lock.TimeoutRaw, &cfg.Conversations.Lock.Timeout},
		{"conversations.lock.ttl", cfg.Conversations.Lock.TTLRaw, &cfg.Conversations.Lock.TTL},
		{"conversations.idempotency_ttl", cfg.Conversations.IdempotencyTTLRaw, &cfg.Conversations.IdempotencyTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
