package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
)

// Config holds the lexdex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Judge     JudgeConfig     `yaml:"judge"`
	Graph     GraphConfig     `yaml:"graph"`
	Drift     DriftConfig     `yaml:"drift"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string        `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File  LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotated JSON log file next to the console output.
type LogFileConfig struct {
	Path       string `yaml:"path"` // empty disables the file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
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
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN                string `yaml:"dsn"`
	MaxConns           int32  `yaml:"max_conns"`
	MinConns           int32  `yaml:"min_conns"`
	MaxConnLifetimeMin int    `yaml:"max_conn_lifetime_min"`
	ReadinessTimeout   int    `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds the Redis/Valkey embedding cache settings.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"` // empty disables the shared cache
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTLHours int      `yaml:"ttl_hours"` // 0 = keep forever
	// DialTimeoutMs bounds each connection attempt; 0 uses the client default.
	DialTimeoutMs int `yaml:"dial_timeout_ms"`
	L1Size   int      `yaml:"l1_size"`
}

// StorageConfig holds the S3 bucket raw documents are fetched from.
type StorageConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	UsePathStyle   bool   `yaml:"use_path_style"`
	MaxObjectBytes int64  `yaml:"max_object_bytes"`
}

// Provider kinds.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// EmbeddingConfig holds the provider chain and its guards.
type EmbeddingConfig struct {
	// Providers are tried in order.
	Providers        []ProviderConfig `yaml:"providers"`
	Breaker          BreakerConfig    `yaml:"breaker"`
	InterCallDelayMs int              `yaml:"inter_call_delay_ms"`
	CallTimeoutSec   int              `yaml:"call_timeout_sec"`
}

// ProviderConfig holds one embedding provider.
type ProviderConfig struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"` // openai, gemini
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	MaxBatchSize int    `yaml:"max_batch_size"`
}

// BreakerConfig holds circuit breaker settings shared by every provider.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	WindowSec        int `yaml:"window_sec"`
	CooldownSec      int `yaml:"cooldown_sec"`
}

// ChunkingConfig holds chunk sizing.
type ChunkingConfig struct {
	Tokenizer string                     `yaml:"tokenizer"` // estimate, tiktoken
	Table     map[string]chunking.Params `yaml:"table"`     // per-category overrides
}

// PipelineConfig holds batch processing settings.
type PipelineConfig struct {
	Schedule         string  `yaml:"schedule"` // cron expression, empty disables
	BatchSize        int     `yaml:"batch_size"`
	MaxItems         int     `yaml:"max_items"`
	JobTimeoutMin    int     `yaml:"job_timeout_min"`
	Concurrency      int     `yaml:"concurrency"`
	MaxRetries       int     `yaml:"max_retries"`
	LeaseMin         int     `yaml:"lease_min"`
	ApproveThreshold float64 `yaml:"approve_threshold"`
	RejectThreshold  float64 `yaml:"reject_threshold"`
	ReviewConfidence float64 `yaml:"review_confidence"`
	StripTashkeel    bool    `yaml:"strip_tashkeel"`
}

// RetrievalConfig holds reranking and gating settings.
type RetrievalConfig struct {
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	VectorWeight        float64 `yaml:"vector_weight"`
	LexicalWeight       float64 `yaml:"lexical_weight"`
	GraphBoost          float64 `yaml:"graph_boost"`
	MinRelationStrength float64 `yaml:"min_relation_strength"`
	BoostTopK           int     `yaml:"boost_top_k"`
	PinSimilarity       float64 `yaml:"pin_similarity"`
	IntentConfidence    float64 `yaml:"intent_confidence"`
	BorderLow           float64 `yaml:"border_low"`
	BorderHigh          float64 `yaml:"border_high"`
}

// JudgeConfig holds the LLM relevance judge. An empty API key disables it.
type JudgeConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// GraphConfig holds similarity graph building settings.
type GraphConfig struct {
	MinSimilarity float64 `yaml:"min_similarity"`
	MaxResults    int     `yaml:"max_results"`
	SameCategory  bool    `yaml:"same_category"`
	SameLanguage  bool    `yaml:"same_language"`
}

// DriftConfig holds drift monitor settings.
type DriftConfig struct {
	Schedule    string `yaml:"schedule"`
	WindowHours int    `yaml:"window_hours"`
	MinSamples  int    `yaml:"min_samples"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	if env == "local" {
		// .env is optional
		_ = godotenv.Load()
	}
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables in data, decodes it, applies defaults and validates.
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MaxConnLifetimeMin <= 0 {
		c.Database.MaxConnLifetimeMin = 30
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Cache.L1Size <= 0 {
		c.Cache.L1Size = 2048
	}
	if c.Storage.MaxObjectBytes <= 0 {
		c.Storage.MaxObjectBytes = 50 << 20
	}
	for i := range c.Embedding.Providers {
		p := &c.Embedding.Providers[i]
		if p.Kind == "" {
			p.Kind = ProviderOpenAI
		}
		if p.Name == "" {
			p.Name = p.Kind
		}
	}
	if c.Embedding.Breaker.FailureThreshold <= 0 {
		c.Embedding.Breaker.FailureThreshold = 5
	}
	if c.Embedding.Breaker.WindowSec <= 0 {
		c.Embedding.Breaker.WindowSec = 60
	}
	if c.Embedding.Breaker.CooldownSec <= 0 {
		c.Embedding.Breaker.CooldownSec = 60
	}
	if c.Embedding.CallTimeoutSec <= 0 {
		c.Embedding.CallTimeoutSec = 30
	}
	if c.Chunking.Tokenizer == "" {
		c.Chunking.Tokenizer = chunking.TokenizerTiktoken
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 50
	}
	if c.Pipeline.JobTimeoutMin <= 0 {
		c.Pipeline.JobTimeoutMin = 30
	}
	if c.Judge.Model == "" {
		c.Judge.Model = "gpt-4o-mini"
	}
	if c.Drift.WindowHours <= 0 {
		c.Drift.WindowHours = 168
	}
	if c.Drift.MinSamples <= 0 {
		c.Drift.MinSamples = 30
	}
	if c.Logging.File.Path != "" {
		if c.Logging.File.MaxSizeMB <= 0 {
			c.Logging.File.MaxSizeMB = 100
		}
		if c.Logging.File.MaxBackups <= 0 {
			c.Logging.File.MaxBackups = 5
		}
		if c.Logging.File.MaxAgeDays <= 0 {
			c.Logging.File.MaxAgeDays = 28
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if _, err := chunking.NewTokenCounter(c.Chunking.Tokenizer); err != nil {
		return fmt.Errorf("chunking.tokenizer: %w", err)
	}
	for cat, p := range c.Chunking.Table {
		if p.Target <= 0 || p.Overlap < 0 || p.Overlap >= p.Target || p.Min > p.Target {
			return fmt.Errorf("chunking.table.%s: need 0 <= overlap < target and min <= target, got %+v", cat, p)
		}
	}
	if p := c.Pipeline; p.ApproveThreshold != 0 && p.RejectThreshold > p.ApproveThreshold {
		return fmt.Errorf("pipeline.reject_threshold (%.1f) exceeds approve_threshold (%.1f)",
			p.RejectThreshold, p.ApproveThreshold)
	}
	r := c.Retrieval
	for name, w := range map[string]float64{
		"vector_weight": r.VectorWeight, "lexical_weight": r.LexicalWeight,
		"pin_similarity": r.PinSimilarity, "border_low": r.BorderLow, "border_high": r.BorderHigh,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("retrieval.%s must be within 0..1, got %v", name, w)
		}
	}
	if r.BorderHigh != 0 && r.BorderLow >= r.BorderHigh {
		return fmt.Errorf("retrieval.border_low (%v) must be below border_high (%v)", r.BorderLow, r.BorderHigh)
	}
	if c.Graph.MinSimilarity < 0 || c.Graph.MinSimilarity > 1 {
		return fmt.Errorf("graph.min_similarity must be within 0..1, got %v", c.Graph.MinSimilarity)
	}
	for name, spec := range map[string]string{"pipeline.schedule": c.Pipeline.Schedule, "drift.schedule": c.Drift.Schedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if len(c.Embedding.Providers) == 0 {
		return fmt.Errorf("embedding.providers needs at least one provider")
	}
	seen := make(map[string]struct{}, len(c.Embedding.Providers))
	for i, p := range c.Embedding.Providers {
		switch p.Kind {
		case ProviderOpenAI, ProviderGemini:
			// ok
		default:
			return fmt.Errorf("embedding.providers[%d].kind must be %q or %q, got %q",
				i, ProviderOpenAI, ProviderGemini, p.Kind)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("embedding.providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Model == "" {
			return fmt.Errorf("embedding.providers[%d].model is required", i)
		}
	}
	return nil
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
