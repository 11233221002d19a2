package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/paperdex/internal/domain"
)

// Config holds the paperdex configuration shared by every subcommand.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	RetryAfterSec   int `yaml:"retry_after_sec"` // sent with 503 while no index is loaded
}

// Database drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// DatabaseConfig holds document store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, sqlite (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadConsistency  string   `yaml:"read_consistency"` // primary (default), replica
	Path             string   `yaml:"path"`             // sqlite only
	KeyPrefix        string   `yaml:"key_prefix"`
	ScanPageSize     int      `yaml:"scan_page_size"` // rows per SCAN step or SQL page; 0 keeps the driver default
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	TimeoutMs        int      `yaml:"timeout_ms"` // per metadata lookup
}

// EmbeddingConfig holds the encoder and its OpenAI-compatible provider.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // label for metrics and logs
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	ModelVersion        string `yaml:"model_version"` // tag stored with embeddings (default: model)
	Dimensions          int    `yaml:"dimensions"`
	SendDimensions      bool   `yaml:"send_dimensions"`
	MaxInputChars       int    `yaml:"max_input_chars"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	MaxBatchSize        int    `yaml:"max_batch_size"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
	DisableCache        bool   `yaml:"disable_cache"`
}

// PipelineConfig holds embedding pipeline settings.
type PipelineConfig struct {
	Sources           []string `yaml:"sources"`
	BatchSize         int      `yaml:"batch_size"`
	RequestsPerSecond float64  `yaml:"requests_per_second"` // 0 = unlimited
	MaxRetries        int      `yaml:"max_retries"`
	BackoffMs         int      `yaml:"backoff_ms"`
	MaxBackoffMs      int      `yaml:"max_backoff_ms"`
}

// RetrievalConfig holds the k policy and index refresh settings.
type RetrievalConfig struct {
	DefaultK           int `yaml:"default_k"`
	MaxK               int `yaml:"max_k"`
	ClampK             int `yaml:"clamp_k"`
	LookupConcurrency  int `yaml:"lookup_concurrency"`
	RefreshIntervalSec int `yaml:"refresh_interval_sec"` // 0 = only at startup and on SIGHUP
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

// Parse expands environment variables in data, then decodes, defaults and validates it.
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
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.RetryAfterSec <= 0 {
		c.HTTP.RetryAfterSec = 5
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadConsistency == "" {
		c.Database.ReadConsistency = "primary"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "paperdex:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.TimeoutMs <= 0 {
		c.Database.TimeoutMs = 500
	}

	def := domain.DefaultVectorConfig()
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.Model
	}
	if c.Embedding.ModelVersion == "" {
		c.Embedding.ModelVersion = c.Embedding.Model
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = def.Dimensions
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = def.MaxInputChars
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = 5000
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 256
	}

	if len(c.Pipeline.Sources) == 0 {
		for _, s := range domain.AllSources() {
			c.Pipeline.Sources = append(c.Pipeline.Sources, string(s))
		}
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 64
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.BackoffMs <= 0 {
		c.Pipeline.BackoffMs = 200
	}
	if c.Pipeline.MaxBackoffMs <= 0 {
		c.Pipeline.MaxBackoffMs = 5000
	}

	if c.Retrieval.DefaultK <= 0 {
		c.Retrieval.DefaultK = 5
	}
	if c.Retrieval.MaxK <= 0 {
		c.Retrieval.MaxK = 100
	}
	if c.Retrieval.ClampK <= 0 {
		c.Retrieval.ClampK = 10
	}
	if c.Retrieval.LookupConcurrency <= 0 {
		c.Retrieval.LookupConcurrency = 8
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or sqlite, got %q", c.Database.Driver)
	}
	switch c.Database.ReadConsistency {
	case "primary", "replica":
	default:
		return fmt.Errorf(
			"database.read_consistency must be \"primary\" or \"replica\", got %q", c.Database.ReadConsistency,
		)
	}

	if c.Embedding.BaseURL == "" {
		return errors.New("embedding.base_url is required")
	}

	for _, s := range c.Pipeline.Sources {
		if _, err := domain.ParseSource(s); err != nil {
			return fmt.Errorf("pipeline.sources: %w", err)
		}
	}
	if c.Pipeline.RequestsPerSecond < 0 {
		return fmt.Errorf("pipeline.requests_per_second must not be negative, got %v", c.Pipeline.RequestsPerSecond)
	}

	if c.Retrieval.DefaultK > c.Retrieval.MaxK {
		return fmt.Errorf("retrieval.default_k (%d) must not exceed retrieval.max_k (%d)",
			c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}
	if c.Retrieval.RefreshIntervalSec < 0 {
		return fmt.Errorf("retrieval.refresh_interval_sec must not be negative, got %d", c.Retrieval.RefreshIntervalSec)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.HTTP.Port == 0 {
		return errors.New("http.port is required")
	}
	return nil
}

// VectorConfig returns the encoder settings.
func (c *Config) VectorConfig() domain.VectorConfig {
	return domain.VectorConfig{
		Model:         c.Embedding.Model,
		ModelVersion:  c.Embedding.ModelVersion,
		Dimensions:    c.Embedding.Dimensions,
		MaxInputChars: c.Embedding.MaxInputChars,
	}
}

// Sources returns the parsed pipeline sources. Validate has already checked them.
func (c *Config) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Pipeline.Sources))
	for _, s := range c.Pipeline.Sources {
		if src, err := domain.ParseSource(s); err == nil {
			out = append(out, src)
		}
	}
	return out
}

// EmbeddingTimeout is the deadline of one encoder call.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutMs) * time.Millisecond
}

// LookupTimeout is the deadline of one metadata lookup.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutMs) * time.Millisecond
}

// EmbeddingCachePrefix namespaces cached query embeddings under the database key prefix.
func (c *Config) EmbeddingCachePrefix() string {
	return c.Database.KeyPrefix + "emb_cache:"
}

// RefreshInterval is the background index rebuild period, 0 when disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Retrieval.RefreshIntervalSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
