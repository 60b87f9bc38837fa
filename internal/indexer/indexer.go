package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/helpdesk/internal/docid"
	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/extract"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/retry"
	"github.com/hyperjump/helpdesk/internal/vector"
)

const (
	DefaultCollection = "docs"
	DefaultWorkers    = 4
	DefaultBatchSize  = 64
)

// Config holds the pipeline settings drawn from the ingest, embedding and vector sections.
type Config struct {
	Collection   string
	Distance     vector.Distance
	HNSW         vector.HNSWConfig
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Workers      int
}

// RunRecorder persists run summaries. storage.Storage satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *models.RunSummary) error
}

// Indexer runs manifests through load, chunk, embed and upsert.
type Indexer struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	loader   extract.Loader
	chunker  *Chunker
	config   Config
	retry    *retry.Policy
	recorder RunRecorder
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for per-document and per-run events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithRetryPolicy overrides the backoff used around index writes.
func WithRetryPolicy(p *retry.Policy) IndexerOption {
	return func(idx *Indexer) { idx.retry = p }
}

// WithRunRecorder records every finished or aborted run.
func WithRunRecorder(r RunRecorder) IndexerOption {
	return func(idx *Indexer) { idx.recorder = r }
}

// NewIndexer creates a pipeline. Zero config values fall back to the package defaults.
func NewIndexer(embedder embedding.Embedder, index vector.VectorIndex, loader extract.Loader, cfg Config, opts ...IndexerOption) *Indexer {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Distance == "" {
		cfg.Distance = vector.DistanceCosine
	}
	if cfg.HNSW == (vector.HNSWConfig{}) {
		cfg.HNSW = vector.DefaultHNSW()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	idx := &Indexer{
		embedder: embedder,
		index:    index,
		loader:   loader,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	if idx.retry == nil {
		idx.retry = retry.NewPolicy(nil, idx.logger)
	}
	return idx
}

// Collection returns the target collection name.
func (idx *Indexer) Collection() string {
	return idx.config.Collection
}

// EnsureCollection creates the target collection sized to the embedder's dimension.
func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	params := vector.CollectionParams{
		Name:      idx.config.Collection,
		Dimension: idx.embedder.Dimensions(),
		Distance:  idx.config.Distance,
		HNSW:      idx.config.HNSW,
	}
	return idx.retry.Do(ctx, "ensure collection", func(ctx context.Context) error {
		return idx.index.EnsureCollection(ctx, params)
	})
}

// IngestManifest resolves every entry's tenant, then ingests the entries on a bounded
// worker pool. Per-document failures are recorded in the summary and the run continues;
// a fatal error (configuration, isolation, exhausted transient) or cancellation stops
// the remaining workers and is returned alongside the partial summary.
func (idx *Indexer) IngestManifest(ctx context.Context, entries []models.ManifestEntry, tenants map[string]string) (*models.RunSummary, error) {
	tenantIDs, err := resolveEntryTenants(entries, tenants)
	if err != nil {
		return nil, err
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection %s: %w", idx.config.Collection, err)
	}

	summary := &models.RunSummary{RunID: uuid.NewString(), StartedAt: time.Now()}
	idx.logger.Info("ingestion started",
		zap.String("run_id", summary.RunID),
		zap.Int("documents", len(entries)),
		zap.Int("workers", idx.config.Workers))

	outcomes := make([]*models.DocumentOutcome, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)
	for i := range entries {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			// A slot freed by a failing worker is taken after the group is cancelled.
			if gctx.Err() != nil {
				return nil
			}
			o := idx.IngestDocument(gctx, entries[i], tenantIDs[i])
			outcomes[i] = o
			if o.Err != nil && (models.IsFatal(o.Err) || isCancellation(o.Err)) {
				return o.Err
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	for _, o := range outcomes {
		if o != nil {
			summary.Record(o)
		}
	}
	summary.Finish(time.Since(summary.StartedAt))
	if runErr != nil {
		summary.Aborted = true
		summary.Error = runErr.Error()
	}
	idx.logSummary(summary)
	idx.record(ctx, summary)

	if runErr != nil {
		return summary, fmt.Errorf("ingestion run %s aborted: %w", summary.RunID, runErr)
	}
	return summary, nil
}

// IngestDocument drives one document through the state machine and returns its outcome.
// It never panics on bad input; every error lands in the outcome.
func (idx *Indexer) IngestDocument(ctx context.Context, entry models.ManifestEntry, tenantID string) *models.DocumentOutcome {
	o := &models.DocumentOutcome{Path: entry.Path, TenantID: tenantID, State: models.StateLoading}
	if tenantID == "" {
		return idx.fail(o, fmt.Errorf("%w: no tenant for %s", models.ErrIsolation, entry.Path))
	}

	file, err := idx.loader.Load(ctx, entry.Path)
	if err != nil {
		if errors.Is(err, models.ErrContent) {
			return idx.skip(o, err)
		}
		return idx.fail(o, err)
	}
	o.DocID = docid.Checksum(file.Raw)

	idx.transition(o, models.StateChunking)
	chunks := idx.chunker.Chunk(o.DocID, Preprocess(file.Text))
	if len(chunks) == 0 {
		return idx.skip(o, nil)
	}
	o.Chunks = len(chunks)

	idx.transition(o, models.StateEmbedding)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := idx.embed(ctx, texts)
	if err != nil {
		return idx.fail(o, fmt.Errorf("embed %s: %w", entry.Path, err))
	}
	points, err := buildPoints(o.DocID, tenantID, chunks, vectors)
	if err != nil {
		return idx.fail(o, err)
	}

	idx.transition(o, models.StateUpserting)
	err = idx.retry.Do(ctx, "upsert", func(ctx context.Context) error {
		return idx.index.Upsert(ctx, idx.config.Collection, points)
	})
	if err != nil {
		return idx.fail(o, fmt.Errorf("upsert %s: %w", entry.Path, err))
	}
	o.Points = len(points)
	idx.transition(o, models.StateDone)
	idx.logger.Info("document ingested",
		zap.String("doc_id", o.DocID),
		zap.String("path", o.Path),
		zap.String("tenant_id", tenantID),
		zap.Int("chunks", o.Chunks))
	return o
}

// embed requests vectors in sub-batches of BatchSize and checks every batch is answered in full.
func (idx *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += idx.config.BatchSize {
		end := start + idx.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := idx.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: requested %d embeddings, got %d", models.ErrConsistency, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// buildPoints zips chunks with vectors by position. Counts must match exactly.
func buildPoints(docID, tenantID string, chunks []*models.Chunk, vectors [][]float32) ([]models.Point, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors for %s", models.ErrConsistency, len(chunks), len(vectors), docID)
	}
	points := make([]models.Point, len(chunks))
	for i, ch := range chunks {
		points[i] = models.Point{
			ID:     docid.PointID(tenantID, docID, ch.Index),
			Vector: vectors[i],
			Payload: models.Payload{
				TenantID:   tenantID,
				DocID:      docID,
				ChunkIndex: ch.Index,
				Text:       ch.Text,
			},
		}
	}
	return points, nil
}

// resolveEntryTenants maps each entry to a tenant id. The tenant field may hold a mapped
// name or an id that appears among the mapping's values. All unknown tenants are reported at once.
func resolveEntryTenants(entries []models.ManifestEntry, tenants map[string]string) ([]string, error) {
	known := make(map[string]bool, len(tenants))
	for _, id := range tenants {
		known[id] = true
	}
	ids := make([]string, len(entries))
	missing := make(map[string]bool)
	for i, e := range entries {
		switch {
		case tenants[e.Tenant] != "":
			ids[i] = tenants[e.Tenant]
		case known[e.Tenant]:
			ids[i] = e.Tenant
		default:
			missing[e.Tenant] = true
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, fmt.Sprintf("%q", n))
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: no tenant mapping for %s", models.ErrConfiguration, strings.Join(names, ", "))
	}
	return ids, nil
}

func (idx *Indexer) transition(o *models.DocumentOutcome, to models.DocumentState) {
	idx.logger.Debug("document state",
		zap.String("path", o.Path),
		zap.String("from", string(o.State)),
		zap.String("to", string(to)))
	o.State = to
}

func (idx *Indexer) skip(o *models.DocumentOutcome, err error) *models.DocumentOutcome {
	o.State = models.StateSkipped
	fields := []zap.Field{zap.String("path", o.Path), zap.String("tenant_id", o.TenantID), zap.String("doc_id", o.DocID)}
	if err == nil {
		idx.logger.Warn("document skipped: no text extracted", fields...)
		return o
	}
	o.Err = err
	o.Error = err.Error()
	idx.logger.Warn("document skipped", append(fields, zap.Error(err))...)
	return o
}

func (idx *Indexer) fail(o *models.DocumentOutcome, err error) *models.DocumentOutcome {
	from := o.State
	o.State = models.StateFailed
	o.Err = err
	o.Error = err.Error()
	idx.logger.Error("document failed",
		zap.String("path", o.Path),
		zap.String("tenant_id", o.TenantID),
		zap.String("doc_id", o.DocID),
		zap.String("state", string(from)),
		zap.Bool("fatal", models.IsFatal(err)),
		zap.Error(err))
	return o
}

func (idx *Indexer) logSummary(s *models.RunSummary) {
	fields := []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("documents", s.Documents),
		zap.Int("done", s.Done),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("points", s.Points),
		zap.Duration("duration", s.Duration),
		zap.Float64("docs_per_sec", s.DocsPerSec),
		zap.Float64("vectors_per_sec", s.VectorsPerSec),
	}
	if s.Aborted {
		idx.logger.Error("ingestion aborted", append(fields, zap.String("error", s.Error))...)
		return
	}
	idx.logger.Info("ingestion finished", fields...)
}

func (idx *Indexer) record(ctx context.Context, s *models.RunSummary) {
	if idx.recorder == nil {
		return
	}
	if err := idx.recorder.RecordRun(context.WithoutCancel(ctx), s); err != nil {
		idx.logger.Warn("failed to record ingestion run", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
