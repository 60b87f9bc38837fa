// Package config provides configuration loading and structs for the helpdesk knowledge service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/vector"
)

// Environment variables that override values from the config file.
const (
	EnvOllamaURL    = "HELPDESK_OLLAMA_URL"
	EnvQdrantURL    = "HELPDESK_QDRANT_URL"
	EnvQdrantAPIKey = "HELPDESK_QDRANT_API_KEY"
	EnvDebug        = "HELPDESK_DEBUG"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the tenant database and the in-process index snapshot.
type StorageConfig struct {
	DatabasePath       string `yaml:"database_path"`
	VectorSnapshotPath string `yaml:"vector_snapshot_path"`
}

// EmbeddingConfig holds the Ollama gateway settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // ollama or mock
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	GenerateModel     string        `yaml:"generate_model"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	StatusTimeout     time.Duration `yaml:"status_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
}

// VectorConfig selects the vector index and describes the collection.
type VectorConfig struct {
	Type       string            `yaml:"type"` // qdrant or memory
	URL        string            `yaml:"url"`
	APIKey     string            `yaml:"api_key"`
	Collection string            `yaml:"collection"`
	Distance   string            `yaml:"distance"`
	HNSW       vector.HNSWConfig `yaml:"hnsw"`
	Timeout    time.Duration     `yaml:"timeout"`
}

// IngestConfig holds chunking and worker settings for ingestion runs.
type IngestConfig struct {
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	Workers           int      `yaml:"workers"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	Root              string   `yaml:"root"` // HTTP ingest accepts only documents under this directory
	Manifest          string   `yaml:"manifest"`
	SeedManifest      string   `yaml:"seed_manifest"`
}

// SearchConfig holds retrieval limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// RetryConfig holds the backoff schedule for external calls. Delays[i] is waited before attempt i+1.
type RetryConfig struct {
	Delays []time.Duration `yaml:"delays"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorSnapshotPath = expandPath(cfg.Storage.VectorSnapshotPath, configDir)
	cfg.Ingest.Root = expandPath(cfg.Ingest.Root, configDir)
	cfg.Ingest.Manifest = expandPath(cfg.Ingest.Manifest, configDir)
	cfg.Ingest.SeedManifest = expandPath(cfg.Ingest.SeedManifest, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration built from defaults and the environment alone.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	return &cfg
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides endpoints, credentials and debug from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv(EnvQdrantURL); v != "" {
		cfg.Vector.URL = v
	}
	if v := os.Getenv(EnvQdrantAPIKey); v != "" {
		cfg.Vector.APIKey = v
	}
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "yes":
		cfg.Debug = true
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderMock:
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q (supported: ollama, mock)", models.ErrConfiguration, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive, got %d", models.ErrConfiguration, c.Embedding.Dimensions)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: ingest.chunk_size must be positive, got %d", models.ErrConfiguration, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: ingest.chunk_overlap (%d) must be in [0, chunk_size)", models.ErrConfiguration, c.Ingest.ChunkOverlap)
	}
	if !vector.Distance(c.Vector.Distance).Valid() {
		return fmt.Errorf("%w: unknown vector.distance %q (supported: Cosine, Dot, Euclid)", models.ErrConfiguration, c.Vector.Distance)
	}
	switch vector.IndexType(c.Vector.Type) {
	case vector.IndexTypeQdrant, vector.IndexTypeMemory:
	default:
		return fmt.Errorf("%w: unknown vector.type %q (supported: qdrant, memory)", models.ErrConfiguration, c.Vector.Type)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("%w: search.max_limit (%d) is below default_limit (%d)", models.ErrConfiguration, c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	for _, d := range c.Retry.Delays {
		if d < 0 {
			return fmt.Errorf("%w: retry.delays must not be negative", models.ErrConfiguration)
		}
	}
	return nil
}

// Address returns the host:port the HTTP server listens on.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
