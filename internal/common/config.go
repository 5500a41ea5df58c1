package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Claude      ClaudeConfig    `toml:"claude"`
	Catalog     CatalogConfig   `toml:"catalog"`
	Query       QueryConfig     `toml:"query"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// PipelineConfig controls the ingestion pipeline.
type PipelineConfig struct {
	DedupThreshold   float64 `toml:"dedup_threshold"`    // Inclusive cosine similarity cutoff (default 0.70)
	DedupNeighbors   int     `toml:"dedup_neighbors"`    // Top-N neighbors consulted per dedup check
	ReviewBand       float64 `toml:"review_band"`        // Width below threshold flagged for review
	Concurrency      int     `toml:"concurrency"`        // Batch ingestion worker count
	StageTimeout     string  `toml:"stage_timeout"`      // Per-stage timeout, e.g. "30s"
	MinContentLength int     `toml:"min_content_length"` // Normalizer rejection floor
	StorageRetries   int     `toml:"storage_retries"`    // Retry attempts for store/embedding dependencies
	RetryBackoff     string  `toml:"retry_backoff"`      // Base backoff between retries, e.g. "500ms"
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Mode          string  `toml:"mode"`            // "gemini" or "offline"
	Model         string  `toml:"model"`           // Remote model name (default gemini-embedding-001)
	Dimension     int     `toml:"dimension"`       // Fixed output dimension
	GoogleAPIKey  string  `toml:"google_api_key"`  // Gemini API key (or NUNTIUS_EMBEDDING_GOOGLE_API_KEY)
	Timeout       string  `toml:"timeout"`         // Per-call timeout
	RatePerSecond float64 `toml:"rate_per_second"` // Remote call rate limit
	CacheSize     int     `toml:"cache_size"`      // Content-keyed embedding cache entries
}

// ClaudeConfig configures the answer-synthesis collaborator.
type ClaudeConfig struct {
	Enabled     bool    `toml:"enabled"`
	APIKey      string  `toml:"api_key"` // Or ANTHROPIC_API_KEY / NUNTIUS_CLAUDE_API_KEY
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// CatalogConfig points at the entity catalog data file. Empty path means the
// embedded default catalog.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// QueryConfig tunes query-time retrieval.
type QueryConfig struct {
	DefaultLimit    int `toml:"default_limit"`
	CandidateFactor int `toml:"candidate_factor"` // Per-strategy over-fetch multiplier
	SynthesisTopK   int `toml:"synthesis_top_k"`  // Documents handed to answer synthesis
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the built-in defaults applied before any file or
// environment overrides.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/nuntius",
			},
		},
		Pipeline: PipelineConfig{
			DedupThreshold:   0.70,
			DedupNeighbors:   5,
			ReviewBand:       0.15,
			Concurrency:      4,
			StageTimeout:     "30s",
			MinContentLength: 50,
			StorageRetries:   3,
			RetryBackoff:     "500ms",
		},
		Embedding: EmbeddingConfig{
			Mode:          "offline",
			Model:         "gemini-embedding-001",
			Dimension:     256,
			Timeout:       "30s",
			RatePerSecond: 5,
			CacheSize:     2048,
		},
		Claude: ClaudeConfig{
			Enabled:     false,
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     "60s",
		},
		Query: QueryConfig{
			DefaultLimit:    10,
			CandidateFactor: 2,
			SynthesisTopK:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration from a single TOML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration in priority order: defaults, then each
// file (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies NUNTIUS_* environment variables over file values.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("NUNTIUS_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("NUNTIUS_STORAGE_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("NUNTIUS_PIPELINE_DEDUP_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Pipeline.DedupThreshold = f
		}
	}
	if v := os.Getenv("NUNTIUS_EMBEDDING_MODE"); v != "" {
		config.Embedding.Mode = v
	}
	if v := os.Getenv("NUNTIUS_EMBEDDING_GOOGLE_API_KEY"); v != "" {
		config.Embedding.GoogleAPIKey = v
	}
	if v := os.Getenv("NUNTIUS_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("NUNTIUS_CATALOG_PATH"); v != "" {
		config.Catalog.Path = v
	}
	if v := os.Getenv("NUNTIUS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.DedupThreshold <= 0 || c.Pipeline.DedupThreshold > 1 {
		return fmt.Errorf("pipeline.dedup_threshold must be in (0, 1], got %v", c.Pipeline.DedupThreshold)
	}
	if c.Pipeline.DedupNeighbors <= 0 {
		return fmt.Errorf("pipeline.dedup_neighbors must be positive, got %d", c.Pipeline.DedupNeighbors)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Embedding.Mode {
	case "gemini", "offline":
	default:
		return fmt.Errorf("embedding.mode must be \"gemini\" or \"offline\", got %q", c.Embedding.Mode)
	}
	if _, err := c.StageTimeout(); err != nil {
		return err
	}
	return nil
}

// StageTimeout parses the configured per-stage timeout.
func (c *Config) StageTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Pipeline.StageTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid pipeline.stage_timeout %q: %w", c.Pipeline.StageTimeout, err)
	}
	return d, nil
}

// RetryBackoff parses the configured retry backoff.
func (c *Config) RetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.RetryBackoff)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
