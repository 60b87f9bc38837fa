// Package search answers tenant-scoped queries against the vector index.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/retry"
	"github.com/hyperjump/helpdesk/internal/vector"
)

const (
	DefaultLimit    = 5
	DefaultMaxLimit = 50
)

// Config holds the retrieval settings.
type Config struct {
	Collection   string
	DefaultLimit int
	MaxLimit     int
}

// Engine embeds queries and runs filtered nearest-neighbor search.
type Engine struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	config   Config
	retry    *retry.Policy
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRetryPolicy overrides the backoff used around index searches.
func WithRetryPolicy(p *retry.Policy) EngineOption {
	return func(e *Engine) { e.retry = p }
}

// NewEngine creates a retrieval engine. The embedder must be the one used at ingestion;
// wrap it in embedding.NewCachedEmbedder to memoize repeated queries.
func NewEngine(embedder embedding.Embedder, index vector.VectorIndex, cfg Config, opts ...EngineOption) *Engine {
	if cfg.Collection == "" {
		cfg.Collection = "docs"
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	e := &Engine{embedder: embedder, index: index, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.retry == nil {
		e.retry = retry.NewPolicy(nil, e.logger)
	}
	return e
}

// Query returns the top limit chunks of tenantID most similar to text, ordered by score
// descending with ties broken by point id. No match is an empty result, not an error.
// A hit owned by another tenant is an isolation violation and fails the whole query.
func (e *Engine) Query(ctx context.Context, tenantID, text string, limit int) ([]*models.QueryResult, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: query without tenant", models.ErrIsolation)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if want := e.embedder.Dimensions(); len(vec) != want {
		return nil, fmt.Errorf("%w: query vector has dimension %d, model %s declares %d",
			models.ErrConfiguration, len(vec), e.embedder.Model(), want)
	}

	req := vector.SearchRequest{Vector: vec, Filter: vector.TenantFilter(tenantID), Limit: limit}
	var hits []models.ScoredPoint
	err = e.retry.Do(ctx, "search", func(ctx context.Context) error {
		var err error
		hits, err = e.index.Search(ctx, e.config.Collection, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", e.config.Collection, err)
	}

	for _, h := range hits {
		if h.Payload.TenantID != tenantID {
			e.logger.Error("tenant isolation violation",
				zap.String("tenant_id", tenantID),
				zap.String("point_id", h.ID),
				zap.String("point_tenant_id", h.Payload.TenantID))
			return nil, fmt.Errorf("%w: point %s belongs to tenant %q, query was for %q",
				models.ErrIsolation, h.ID, h.Payload.TenantID, tenantID)
		}
	}

	vector.SortScored(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]*models.QueryResult, len(hits))
	for i, h := range hits {
		results[i] = &models.QueryResult{
			PointID:    h.ID,
			DocID:      h.Payload.DocID,
			ChunkIndex: h.Payload.ChunkIndex,
			Text:       h.Payload.Text,
			Score:      h.Score,
			Rank:       i + 1,
		}
	}
	return results, nil
}

// Search validates req, runs Query for the already resolved tenantID, and wraps the
// results with timing.
func (e *Engine) Search(ctx context.Context, tenantID string, req *models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()
	if err := ProcessQuery(req, e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	results, err := e.Query(ctx, tenantID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := &models.QueryResponse{
		TenantID:  tenantID,
		Query:     req.Query,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	}
	e.logger.Debug("query answered",
		zap.String("tenant_id", tenantID),
		zap.Int("results", resp.Total),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}
