// Package config loads docindexd's configuration: a YAML file overridden by
// environment variables (user config first, then env vars take the final
// word).
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete docindexd configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
}

// StoreConfig configures where the durable store file and installation-id
// marker live.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means use the OS-appropriate
	// per-user data directory (DefaultStorePath).
	Path string `yaml:"path" json:"path"`
}

// SearchConfig configures hybrid search tuning. The RRF formula is
// unweighted, so there is no BM25/semantic weight pair here, only the
// smoothing constant.
type SearchConfig struct {
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	MaxResults  int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider and the Store's
// batching policy over it. The Store owns batching, not the provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	APIKey     string `yaml:"api_key" json:"-"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	BatchCount int `yaml:"batch_count" json:"batch_count"`
	BatchChars int `yaml:"batch_chars" json:"batch_chars"`

	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// PipelineConfig configures the Pipeline Manager's scheduling.
type PipelineConfig struct {
	Concurrency int  `yaml:"concurrency" json:"concurrency"`
	Recover     bool `yaml:"recover" json:"recover"`
}

const (
	DefaultRRFConstant = 60
	DefaultMaxResults  = 10

	DefaultBatchCount = 100
	DefaultBatchChars = 50_000
	DefaultCacheSize  = 512

	DefaultConcurrency = 3

	DefaultStoreDimensions = 1536
)

// Default returns the built-in defaults, before any file or env overrides
// are applied.
func Default() Config {
	return Config{
		Store: StoreConfig{},
		Search: SearchConfig{
			RRFConstant: DefaultRRFConstant,
			MaxResults:  DefaultMaxResults,
		},
		Embeddings: EmbeddingsConfig{
			Dimensions: DefaultStoreDimensions,
			BatchCount: DefaultBatchCount,
			BatchChars: DefaultBatchChars,
			CacheSize:  DefaultCacheSize,
		},
		Pipeline: PipelineConfig{
			Concurrency: DefaultConcurrency,
			Recover:     true,
		},
	}
}

// Load reads a YAML config file (if it exists) over the defaults, then
// applies environment variable overrides, and returns the result.
//
// A missing file is not an error: Load then returns defaults-plus-env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return cfg, uerr
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCS_MCP_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDING_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDING_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
	}
	if v, ok := intEnv("DOCINDEX_BATCH_COUNT"); ok {
		cfg.Embeddings.BatchCount = v
	}
	if v, ok := intEnv("DOCINDEX_BATCH_CHARS"); ok {
		cfg.Embeddings.BatchChars = v
	}
	if v, ok := intEnv("DOCINDEX_RRF_CONSTANT"); ok {
		cfg.Search.RRFConstant = v
	}
	if v, ok := intEnv("DOCINDEX_PIPELINE_CONCURRENCY"); ok {
		cfg.Pipeline.Concurrency = v
	}
}

func intEnv(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveStorePath returns the effective store file path: cfg.Store.Path if
// set (Load overwrites it with DOCS_MCP_STORE_PATH whenever that variable is
// set, so the variable wins over the config file), else an OS-appropriate
// per-user data directory.
func ResolveStorePath(cfg Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return DefaultStorePath()
}

// DefaultStorePath returns ~/.docindex/store.db, falling back to the temp
// directory when the home directory can't be resolved.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docindex", "store.db")
	}
	return filepath.Join(home, ".docindex", "store.db")
}
