package config

import (
	"time"

	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/extract"
	"github.com/hyperjump/helpdesk/internal/indexer"
	"github.com/hyperjump/helpdesk/internal/retry"
	"github.com/hyperjump/helpdesk/internal/search"
	"github.com/hyperjump/helpdesk/internal/vector"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/helpdesk/data/db/helpdesk.db"
	}
	if cfg.Storage.VectorSnapshotPath == "" {
		cfg.Storage.VectorSnapshotPath = "/usr/local/var/helpdesk/data/indices/vectors.gob"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOllama
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = embedding.DefaultOllamaURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = embedding.DefaultModel
	}
	if cfg.Embedding.GenerateModel == "" {
		cfg.Embedding.GenerateModel = embedding.DefaultGenerateModel
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = embedding.DefaultDimensions
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = indexer.DefaultBatchSize
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = embedding.DefaultTimeout
	}
	if cfg.Embedding.StatusTimeout == 0 {
		cfg.Embedding.StatusTimeout = embedding.DefaultStatusTimeout
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}

	if cfg.Vector.Type == "" {
		cfg.Vector.Type = string(vector.IndexTypeQdrant)
	}
	if cfg.Vector.URL == "" {
		cfg.Vector.URL = vector.DefaultQdrantURL
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = indexer.DefaultCollection
	}
	if cfg.Vector.Distance == "" {
		cfg.Vector.Distance = string(vector.DistanceCosine)
	}
	def := vector.DefaultHNSW()
	if cfg.Vector.HNSW.M == 0 {
		cfg.Vector.HNSW.M = def.M
	}
	if cfg.Vector.HNSW.EfConstruct == 0 {
		cfg.Vector.HNSW.EfConstruct = def.EfConstruct
	}
	if cfg.Vector.HNSW.FullScanThreshold == 0 {
		cfg.Vector.HNSW.FullScanThreshold = def.FullScanThreshold
	}
	if cfg.Vector.Timeout == 0 {
		cfg.Vector.Timeout = vector.DefaultQdrantTimeout
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = indexer.DefaultChunkSize
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = indexer.DefaultChunkOverlap
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = indexer.DefaultWorkers
	}
	if cfg.Ingest.AllowedExtensions == nil {
		cfg.Ingest.AllowedExtensions = append([]string(nil), extract.SupportedExtensions...)
	}
	if cfg.Ingest.Root == "" {
		cfg.Ingest.Root = "./scripts/docs"
	}
	if cfg.Ingest.Manifest == "" {
		cfg.Ingest.Manifest = "./scripts/demo_docs.json"
	}
	if cfg.Ingest.SeedManifest == "" {
		cfg.Ingest.SeedManifest = "./scripts/seed_manifest.json"
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = search.DefaultLimit
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = search.DefaultMaxLimit
	}

	if cfg.Retry.Delays == nil {
		cfg.Retry.Delays = append([]time.Duration(nil), retry.DefaultDelays...)
	}
}
