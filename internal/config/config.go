package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the hvacsearch service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Retry     RetryConfig     `yaml:"retry"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig describes the pre-populated vector index.
type IndexConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 disables the cache
}

// LLMConfig holds chat completion settings for routing and summarization.
type LLMConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SummaryModel string `yaml:"summary_model"`
	Seed         int    `yaml:"seed"`
	MaxTokens    int    `yaml:"max_tokens"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// SearchConfig holds pipeline limits.
type SearchConfig struct {
	DefaultMaxResults int `yaml:"default_max_results"`
	MaxCharts         int `yaml:"max_charts"`
	ToolConcurrency   int `yaml:"tool_concurrency"`
	VectorTimeoutSec  int `yaml:"vector_timeout_sec"`
}

// RetryConfig holds backoff settings for transient upstream failures.
type RetryConfig struct {
	// MaxRetries is the retry count after the first attempt. Absent means 5; an
	// explicit 0 disables retrying.
	MaxRetries        *int  `yaml:"max_retries"`
	BaseDelayMs       int   `yaml:"base_delay_ms"`
	MaxDelayMs        int   `yaml:"max_delay_ms"`
	RetryableStatuses []int `yaml:"retryable_statuses"`
}

// AuthConfig holds session lookup and data access policy settings.
type AuthConfig struct {
	Policy         string                   `yaml:"policy"` // noop, tenant (default: noop)
	SessionPrefix  string                   `yaml:"session_prefix"`
	SessionCookie  string                   `yaml:"session_cookie"`
	StaticSessions map[string]StaticSession `yaml:"static_sessions"`
	RoleHierarchy  map[string][]string      `yaml:"role_hierarchy"`
}

// StaticSession is a fixed token→principal binding for local and demo deployments.
type StaticSession struct {
	UserID   string `yaml:"user_id"`
	Role     string `yaml:"role"`
	OpCo     string `yaml:"opco_id"`
	VendorID string `yaml:"vendor_id"`
}

// Duration helpers.

// EmbeddingTimeout returns the per-call embedding deadline.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSec) * time.Second
}

// LLMTimeout returns the per-call chat completion deadline.
func (c *Config) LLMTimeout() time.Duration { return time.Duration(c.LLM.TimeoutSec) * time.Second }

// VectorTimeout returns the per-call vector query deadline.
func (c *Config) VectorTimeout() time.Duration {
	return time.Duration(c.Search.VectorTimeoutSec) * time.Second
}

// Secrets returns configured credentials that must never appear in logs or responses.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.Embedding.APIKey, c.LLM.APIKey, c.Database.Password} {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error; existing variables are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, then applies
// defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of independent defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "hvac_records"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "hvac:record:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = c.Embedding.Dimensions
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 15
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.SummaryModel == "" {
		c.LLM.SummaryModel = c.LLM.Model
	}
	if c.LLM.Seed == 0 {
		c.LLM.Seed = 42
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 800
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = c.Embedding.APIKey
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = c.Embedding.BaseURL
	}
	if c.Search.DefaultMaxResults <= 0 {
		c.Search.DefaultMaxResults = 25
	}
	if c.Search.MaxCharts <= 0 {
		c.Search.MaxCharts = 4
	}
	if c.Search.ToolConcurrency <= 0 {
		c.Search.ToolConcurrency = 4
	}
	if c.Search.VectorTimeoutSec <= 0 {
		c.Search.VectorTimeoutSec = 10
	}
	if c.Retry.MaxRetries == nil {
		n := 5
		c.Retry.MaxRetries = &n
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = 1000
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 60000
	}
	if len(c.Retry.RetryableStatuses) == 0 {
		c.Retry.RetryableStatuses = []int{429, 500, 502, 503, 504}
	}
	if c.Auth.Policy == "" {
		c.Auth.Policy = "noop"
	}
	if c.Auth.SessionPrefix == "" {
		c.Auth.SessionPrefix = "hvacsearch:session:"
	}
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = "session"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Dimensions != c.Index.Dimensions {
		return fmt.Errorf(
			"embedding.dimensions (%d) must equal index.dimensions (%d)",
			c.Embedding.Dimensions, c.Index.Dimensions,
		)
	}
	switch c.Auth.Policy {
	case "noop", "tenant":
	default:
		return fmt.Errorf("auth.policy must be \"noop\" or \"tenant\", got %q", c.Auth.Policy)
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", *c.Retry.MaxRetries)
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms (%d) must be >= retry.base_delay_ms (%d)",
			c.Retry.MaxDelayMs, c.Retry.BaseDelayMs)
	}
	for token, s := range c.Auth.StaticSessions {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("auth.static_sessions: empty token")
		}
		if s.Role == "" {
			return fmt.Errorf("auth.static_sessions: role is required for user %q", s.UserID)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
