package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/helpdesk/internal/config"
	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/extract"
	"github.com/hyperjump/helpdesk/internal/indexer"
	"github.com/hyperjump/helpdesk/internal/manifest"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/retry"
	"github.com/hyperjump/helpdesk/internal/search"
	"github.com/hyperjump/helpdesk/internal/server"
	"github.com/hyperjump/helpdesk/internal/storage"
	"github.com/hyperjump/helpdesk/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Config      *config.Config
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Engine      *search.Engine
	Indexer     *indexer.Indexer
	Server      *server.Server
	logger      *zap.Logger
}

// Close persists the in-memory index snapshot, if any, and closes every service.
func (c *Components) Close() error {
	var err error
	if mem, ok := c.VectorIndex.(*vector.MemoryIndex); ok {
		path := c.Config.Storage.VectorSnapshotPath
		if saveErr := mem.Save(path); saveErr != nil {
			err = multierr.Append(err, fmt.Errorf("save vector snapshot %s: %w", path, saveErr))
		} else {
			c.logger.Debug("vector snapshot saved", zap.String("path", path))
		}
	}
	if c.VectorIndex != nil {
		err = multierr.Append(err, c.VectorIndex.Close())
	}
	if c.Embedder != nil {
		err = multierr.Append(err, c.Embedder.Close())
	}
	if c.Storage != nil {
		err = multierr.Append(err, c.Storage.Close())
	}
	return err
}

func newEmbedder(cfg *config.Config, logger *zap.Logger, policy *retry.Policy) (embedding.Embedder, error) {
	if cfg.Embedding.Provider == config.ProviderMock {
		logger.Warn("using the offline mock embedder; results are lexical, not semantic")
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	}
	client, err := embedding.NewOllamaClient(embedding.OllamaConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		GenerateModel:     cfg.Embedding.GenerateModel,
		Dimensions:        cfg.Embedding.Dimensions,
		Timeout:           cfg.Embedding.Timeout,
		StatusTimeout:     cfg.Embedding.StatusTimeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, embedding.WithLogger(logger), embedding.WithRetryPolicy(policy))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newVectorIndex(cfg *config.Config, logger *zap.Logger) (vector.VectorIndex, error) {
	index, err := vector.NewVectorIndex(vector.Options{
		Type: cfg.Vector.Type,
		Qdrant: vector.QdrantConfig{
			URL:     cfg.Vector.URL,
			APIKey:  cfg.Vector.APIKey,
			Timeout: cfg.Vector.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	if mem, ok := index.(*vector.MemoryIndex); ok {
		if err := mem.Load(cfg.Storage.VectorSnapshotPath); err != nil {
			logger.Warn("vector snapshot load skipped (re-run ingest)",
				zap.String("path", cfg.Storage.VectorSnapshotPath), zap.Error(err))
		}
	}
	return index, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Config: cfg, Storage: store, logger: logger}

	policy := retry.NewPolicy(cfg.Retry.Delays, logger)
	if c.Embedder, err = newEmbedder(cfg, logger, policy); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if c.VectorIndex, err = newVectorIndex(cfg, logger); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("components initialized",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("model", c.Embedder.Model()),
		zap.Int("dimensions", c.Embedder.Dimensions()),
		zap.String("vector_index", cfg.Vector.Type),
		zap.String("collection", cfg.Vector.Collection))

	c.Indexer = indexer.NewIndexer(c.Embedder, c.VectorIndex, extract.NewFileLoader(cfg.Ingest.AllowedExtensions...), indexer.Config{
		Collection:   cfg.Vector.Collection,
		Distance:     vector.Distance(cfg.Vector.Distance),
		HNSW:         cfg.Vector.HNSW,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		BatchSize:    cfg.Embedding.BatchSize,
		Workers:      cfg.Ingest.Workers,
	}, indexer.WithLogger(logger), indexer.WithRetryPolicy(policy), indexer.WithRunRecorder(store))

	c.Engine = search.NewEngine(embedding.NewCachedEmbedder(c.Embedder, cfg.Embedding.CacheSize), c.VectorIndex, search.Config{
		Collection:   cfg.Vector.Collection,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	}, search.WithLogger(logger), search.WithRetryPolicy(policy))

	c.Server = server.NewServer(c.Engine, c.Indexer, c.Storage, c.Embedder, c.VectorIndex, cfg, logger)
	return c, nil
}

// resolveManifestTenants maps every tenant reference in entries to a tenant id. The seed
// manifest, when present, is consulted first; references it does not cover are resolved
// against the tenant table.
func resolveManifestTenants(ctx context.Context, store storage.Storage, entries []models.ManifestEntry, seedPath string) (map[string]string, error) {
	tenants := make(map[string]string)
	if seedPath != "" {
		seed, err := manifest.LoadSeed(seedPath)
		switch {
		case err == nil:
			for name, id := range seed.Tenants {
				tenants[name] = id
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	known := make(map[string]bool, len(tenants)*2)
	for name, id := range tenants {
		known[name] = true
		known[id] = true
	}
	var missing []string
	for _, ref := range manifest.Tenants(entries) {
		if !known[ref] {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return tenants, nil
	}
	resolved, err := store.ResolveTenants(ctx, missing)
	if err != nil {
		return nil, err
	}
	for ref, id := range resolved {
		tenants[ref] = id
	}
	return tenants, nil
}

// demoTenants are the tenants created by "helpdesk seed" without --import.
var demoTenants = []storage.TenantSeed{
	{Name: "Acme Corp", Plan: "basic"},
	{Name: "Globex", Plan: "basic"},
}

// seedTenants creates the tenants described by the seed manifest at importPath, or the demo
// tenants when importPath is empty, and writes the resulting mapping to seedPath.
func seedTenants(ctx context.Context, store storage.Storage, importPath, seedPath string) (map[string]string, error) {
	seeds := demoTenants
	if importPath != "" {
		seed, err := manifest.LoadSeed(importPath)
		if err != nil {
			return nil, err
		}
		seeds = nil
		for _, name := range seed.Names() {
			seeds = append(seeds, storage.TenantSeed{ID: seed.Tenants[name], Name: name, Plan: "basic"})
		}
	}
	mapping, err := store.SeedTenants(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("seed tenants: %w", err)
	}
	if seedPath != "" {
		if err := manifest.WriteSeed(seedPath, mapping); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}
