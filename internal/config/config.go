// Package config loads and validates kb-fusion configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/kbfusion/config.yaml)
//  3. Project config (.kbfusion.yaml in the working directory)
//  4. Environment variables (KBFUSION_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
)

// Version-affecting constants. Bumping either orphans all cache entries
// written under the previous version key.
const (
	// PreprocVersion tracks the text normalization applied before chunking.
	PreprocVersion = 1

	// ChunkerVersion tracks the chunk derivation algorithm.
	ChunkerVersion = 1
)

// Config represents the complete kb-fusion configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "openai" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model identifier. Part of the version key.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding vector dimension. Part of the version key.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the maximum number of texts per embedding request.
	// Larger index batches are split into concurrent microbatches.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OpenAIBaseURL overrides the OpenAI API endpoint (default: https://api.openai.com).
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// QueryCacheSize is the number of query embeddings kept in the in-process LRU.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// ChunkingConfig configures chunk derivation. Sizes are in words.
type ChunkingConfig struct {
	// ChunkSize is the target number of words per chunk.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the number of words shared by adjacent chunks.
	// Must be smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// CacheConfig configures the on-disk cache store.
type CacheConfig struct {
	// Dir is the directory holding the cache database and lock files.
	// Defaults to ~/.kbfusion.
	Dir string `yaml:"dir" json:"dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:       "openai",
			Model:          "text-embedding-3-small",
			Dimensions:     1536,
			BatchSize:      32,
			OpenAIBaseURL:  "",
			QueryCacheSize: 512,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    220,
			ChunkOverlap: 20,
		},
		Cache: CacheConfig{
			Dir: DefaultCacheDir(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultCacheDir returns the default cache directory (~/.kbfusion).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbfusion")
	}
	return filepath.Join(home, ".kbfusion")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/kbfusion/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/kbfusion/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbfusion", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbfusion", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbfusion", "config.yaml")
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// User/global config (if present)
	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	// Project config (overrides user config)
	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	// Environment overrides (highest precedence)
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromDir attempts to load configuration from .kbfusion.yaml or .kbfusion.yml.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".kbfusion.yaml", ".kbfusion.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeConfigNotFound, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return kberrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}
	if other.Embeddings.QueryCacheSize != 0 {
		c.Embeddings.QueryCacheSize = other.Embeddings.QueryCacheSize
	}
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}
	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies KBFUSION_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBFUSION_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KBFUSION_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KBFUSION_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("KBFUSION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("KBFUSION_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("KBFUSION_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("KBFUSION_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("KBFUSION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration for invalid values.
// Violations are ConfigurationErrors: fatal to the call, never retried.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return kberrors.ConfigError(
			fmt.Sprintf("chunk_size must be positive, got %d", c.Chunking.ChunkSize), nil)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return kberrors.ConfigError(
			fmt.Sprintf("chunk_overlap must not be negative, got %d", c.Chunking.ChunkOverlap), nil)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return kberrors.ConfigError(
			fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
				c.Chunking.ChunkOverlap, c.Chunking.ChunkSize), nil)
	}
	if c.Embeddings.Model == "" {
		return kberrors.ConfigError("embeddings.model must not be empty", nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return kberrors.ConfigError(
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Embeddings.BatchSize <= 0 {
		return kberrors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize), nil)
	}
	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return kberrors.ConfigError(
			fmt.Sprintf("unknown embeddings.provider %q (use: openai, static)", c.Embeddings.Provider), nil)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
