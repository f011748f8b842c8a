// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("PARLEY_TEST_OPENAI_KEY", "sk-from-env")

	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  cors_origins: ["https://example.com"]

database:
  backend: redis
  redis_url: "redis://localhost:6379/2"

llm:
  provider: openai
  api_key: "${PARLEY_TEST_OPENAI_KEY}"
  model: gpt-4o-mini

agents:
  echo_delay: "50ms"
  seed:
    - name: Echo
      persona: Repeats you.
      type: echo
    - name: Rocky
      persona: Plays rock-paper-scissors.
      type: rps

conversations:
  lock:
    scope: turn
    attempts: 3
    retry_delay: "250ms"
    timeout: "2s"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("expected http_addr 0.0.0.0:8080, got %s", cfg.Server.HTTPAddr)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://example.com" {
		t.Errorf("unexpected cors_origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Database.Backend != BackendRedis || cfg.Database.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected api key expanded from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Agents.EchoDelay != 50*time.Millisecond {
		t.Errorf("expected echo_delay 50ms, got %v", cfg.Agents.EchoDelay)
	}
	if len(cfg.Agents.Seed) != 2 || cfg.Agents.Seed[1].Type != "rps" {
		t.Errorf("unexpected seed agents %+v", cfg.Agents.Seed)
	}
	lock := cfg.Conversations.Lock
	if lock.Scope != "turn" || lock.Attempts != 3 || lock.RetryDelay != 250*time.Millisecond || lock.Timeout != 2*time.Second {
		t.Errorf("unexpected lock config %+v", lock)
	}
	if lock.TTL != 10*time.Second {
		t.Errorf("expected default ttl 10s, got %v", lock.TTL)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected default metrics path, got %s", cfg.Metrics.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./parley.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend by default, got %s", cfg.Database.Backend)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected openai provider by default, got %s", cfg.LLM.Provider)
	}
	if cfg.Agents.EchoDelay != 300*time.Millisecond {
		t.Errorf("expected echo delay 300ms, got %v", cfg.Agents.EchoDelay)
	}
	lock := cfg.Conversations.Lock
	if lock.Scope != "write" || lock.Attempts != 5 || lock.RetryDelay != time.Second || lock.Timeout != 5*time.Second {
		t.Errorf("unexpected default lock config %+v", lock)
	}
	if cfg.Conversations.IdempotencyTTL != 10*time.Minute || cfg.Conversations.IdempotencyKeys != 10000 {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Conversations)
	}
}

func TestLoad_ZeroEchoDelay(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: ":8080"
database:
  backend: memory
agents:
  echo_delay: "0s"
conversations:
  idempotency_ttl: "0s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agents.EchoDelay != 0 {
		t.Errorf("expected explicit zero echo delay, got %v", cfg.Agents.EchoDelay)
	}
	if cfg.Conversations.IdempotencyTTL != 0 {
		t.Errorf("expected idempotency disabled, got %v", cfg.Conversations.IdempotencyTTL)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = ":9090"

[database]
backend = "mongo"
mongo_uri = "mongodb://localhost:27017"

[llm]
provider = "gemini"
api_key = "g-key"

[[agents.seed]]
name = "Echo"
persona = "Repeats you."
type = "echo"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Backend != BackendMongo || cfg.Database.MongoDatabase != "parley" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected gemini provider, got %s", cfg.LLM.Provider)
	}
	if len(cfg.Agents.Seed) != 1 {
		t.Errorf("expected one seed agent, got %d", len(cfg.Agents.Seed))
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "database:\n  backend: memory\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "sqlite without path",
			content: "server:\n  http_addr: \":8080\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "unknown backend",
			content: "server:\n  http_addr: \":8080\"\ndatabase:\n  backend: cassandra\n",
			wantErr: "database.backend",
		},
		{
			name:    "bad duration",
			content: "server:\n  http_addr: \":8080\"\ndatabase:\n  backend: memory\nagents:\n  echo_delay: soon\n",
			wantErr: "agents.echo_delay",
		},
		{
			name:    "bad lock scope",
			content: "server:\n  http_addr: \":8080\"\ndatabase:\n  backend: memory\nconversations:\n  lock:\n    scope: global\n",
			wantErr: "conversations.lock.scope",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\ndatabase:\n  backend: memory\n",
			wantErr: "tailscale.hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "gateway.yaml", tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PARLEY_TEST_HOST", "redis.internal")

	got := expandEnvVars("redis://${PARLEY_TEST_HOST}:6379/${PARLEY_TEST_UNSET}")
	if got != "redis://redis.internal:6379/" {
		t.Errorf("unexpected expansion %q", got)
	}
}
