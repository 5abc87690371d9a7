package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"invalid port",
			func(c *Config) { c.HTTP.Port = 0 },
			"http.port must be between 1 and 65535, got 0",
		},
		{
			"missing addrs",
			func(c *Config) { c.Database.Addrs = nil },
			"database.addrs is required",
		},
		{
			"unknown driver",
			func(c *Config) { c.Database.Driver = "postgres" },
			`database.driver must be "redis" or "valkey", got "postgres"`,
		},
		{
			"dimension mismatch",
			func(c *Config) { c.Index.Dimensions = 1024 },
			"embedding.dimensions (1536) must equal index.dimensions (1024)",
		},
		{
			"unknown policy",
			func(c *Config) { c.Auth.Policy = "rbac" },
			`auth.policy must be "noop" or "tenant", got "rbac"`,
		},
		{
			"inverted delays",
			func(c *Config) { c.Retry.MaxDelayMs = 10 },
			"retry.max_delay_ms (10) must be >= retry.base_delay_ms (1000)",
		},
		{
			"negative retries",
			func(c *Config) { n := -1; c.Retry.MaxRetries = &n },
			"retry.max_retries must be >= 0, got -1",
		},
		{
			"static session without role",
			func(c *Config) {
				c.Auth.StaticSessions = map[string]StaticSession{"tok": {UserID: "u1"}}
			},
			`auth.static_sessions: role is required for user "u1"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.want {
				t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected embedding model text-embedding-3-small, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 || cfg.Index.Dimensions != 1536 {
		t.Errorf("expected 1536 dimensions, got embedding=%d index=%d", cfg.Embedding.Dimensions, cfg.Index.Dimensions)
	}
	if cfg.Search.DefaultMaxResults != 25 {
		t.Errorf("expected DefaultMaxResults=25, got %d", cfg.Search.DefaultMaxResults)
	}
	if cfg.Search.MaxCharts != 4 {
		t.Errorf("expected MaxCharts=4, got %d", cfg.Search.MaxCharts)
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 5 || cfg.Retry.BaseDelayMs != 1000 || cfg.Retry.MaxDelayMs != 60000 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if len(cfg.Retry.RetryableStatuses) != 5 {
		t.Errorf("expected 5 retryable statuses, got %v", cfg.Retry.RetryableStatuses)
	}
	if cfg.Auth.Policy != "noop" {
		t.Errorf("expected Policy=noop, got %q", cfg.Auth.Policy)
	}
	if cfg.LLM.SummaryModel != cfg.LLM.Model {
		t.Errorf("summary model should default to the routing model")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:     IndexConfig{Name: "custom_idx", KeyPrefix: "custom:"},
		Embedding: EmbeddingConfig{APIKey: "sk-embed", Model: "text-embedding-3-large", Dimensions: 3072},
		LLM:       LLMConfig{Seed: 7},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.Name != "custom_idx" || cfg.Index.KeyPrefix != "custom:" {
		t.Errorf("index overridden: %+v", cfg.Index)
	}
	if cfg.Index.Dimensions != 3072 {
		t.Errorf("index dimensions should follow embedding dimensions, got %d", cfg.Index.Dimensions)
	}
	if cfg.LLM.Seed != 7 {
		t.Errorf("expected Seed=7, got %d", cfg.LLM.Seed)
	}
	if cfg.LLM.APIKey != "sk-embed" {
		t.Errorf("llm api key should fall back to the embedding key")
	}
}

func TestParse_ZeroRetriesHonored(t *testing.T) {
	cfg, err := Parse([]byte(`
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
retry:
  max_retries: 0
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 0 {
		t.Errorf("explicit max_retries: 0 must survive defaults, got %v", cfg.Retry.MaxRetries)
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("HVAC_TEST_REDIS", "redis.internal:6380")

	cfg, err := Parse([]byte(`
http:
  port: ${HVAC_TEST_PORT:-9090}
database:
  addrs: ["${HVAC_TEST_REDIS}"]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port from default, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "redis.internal:6380" {
		t.Errorf("expected addr from env, got %q", cfg.Database.Addrs[0])
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("HVAC_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HVAC_DOTENV_PROBE", "")
	if err := os.Unsetenv("HVAC_DOTENV_PROBE"); err != nil {
		t.Fatal(err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("HVAC_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("HVAC_DOTENV_PROBE = %q", got)
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("local config should load: %v", err)
	}
	if cfg.Index.Name == "" {
		t.Error("expected index name")
	}
}

func TestSecrets(t *testing.T) {
	cfg := Config{
		Embedding: EmbeddingConfig{APIKey: "sk-emb"},
		LLM:       LLMConfig{APIKey: "sk-emb"},
		Database:  DatabaseConfig{Password: "hunter22"},
	}
	got := cfg.Secrets()
	if len(got) != 2 || got[0] != "sk-emb" || got[1] != "hunter22" {
		t.Errorf("Secrets() = %v", got)
	}
	if len((&Config{}).Secrets()) != 0 {
		t.Error("expected no secrets for an empty config")
	}
}
