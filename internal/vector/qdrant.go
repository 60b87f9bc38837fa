package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/retry"
	"go.uber.org/zap"
)

const (
	DefaultQdrantURL     = "http://localhost:6333"
	DefaultQdrantTimeout = 30 * time.Second
	defaultStatusTimeout = 5 * time.Second
)

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantIndex is a VectorIndex backed by a Qdrant server over its REST API.
// Each call is a single attempt; callers wrap calls in a retry.Policy.
type QdrantIndex struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger

	mu   sync.RWMutex
	dims    map[string]int  // collection name -> vector size, filled lazily
	indexed map[string]bool // collections whose tenant_id index this client has ensured
}

var _ VectorIndex = (*QdrantIndex)(nil)

// QdrantOption configures a QdrantIndex.
type QdrantOption func(*QdrantIndex)

// WithLogger sets a logger for collection and upsert events.
func WithLogger(l *zap.Logger) QdrantOption {
	return func(q *QdrantIndex) { q.logger = l }
}

// NewQdrantIndex creates a client for the Qdrant server at cfg.URL.
func NewQdrantIndex(cfg QdrantConfig, opts ...QdrantOption) *QdrantIndex {
	if cfg.URL == "" {
		cfg.URL = DefaultQdrantURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantTimeout
	}
	q := &QdrantIndex{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  zap.NewNop(),
		dims:    make(map[string]int),
		indexed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = zap.NewNop()
	}
	return q
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

type qdrantVectors struct {
	Size     int      `json:"size"`
	Distance Distance `json:"distance"`
}

type createCollectionRequest struct {
	Vectors    qdrantVectors `json:"vectors"`
	HNSWConfig HNSWConfig    `json:"hnsw_config"`
}

type collectionInfoResponse struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors qdrantVectors `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type payloadIndexRequest struct {
	FieldName   string `json:"field_name"`
	FieldSchema string `json:"field_schema"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload models.Payload `json:"payload"`
}

type upsertRequest struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantMatch struct {
	Value interface{} `json:"value"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type searchRequest struct {
	Vector      []float32    `json:"vector"`
	Filter      qdrantFilter `json:"filter"`
	Limit       int          `json:"limit"`
	WithPayload bool         `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload models.Payload  `json:"payload"`
	} `json:"result"`
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// EnsureCollection creates the collection with the given vector size, distance, and HNSW
// settings when it does not exist, and indexes the tenant_id payload field.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, params CollectionParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	size, found, err := q.lookupCollection(ctx, params.Name)
	if err != nil {
		return err
	}
	if found {
		if size != params.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				models.ErrConfiguration, params.Name, size, params.Dimension)
		}
		// A previous attempt may have created the collection and then failed on the index.
		if err := q.ensureTenantIndex(ctx, params.Name); err != nil {
			return err
		}
		q.setDimension(params.Name, size)
		return nil
	}

	body := createCollectionRequest{
		Vectors:    qdrantVectors{Size: params.Dimension, Distance: params.Distance},
		HNSWConfig: params.HNSW,
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath(params.Name), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", params.Name, err)
	}
	if err := q.ensureTenantIndex(ctx, params.Name); err != nil {
		return err
	}
	q.setDimension(params.Name, params.Dimension)
	q.logger.Info("created collection",
		zap.String("collection", params.Name),
		zap.Int("dimension", params.Dimension),
		zap.String("distance", string(params.Distance)),
		zap.Int("hnsw_m", params.HNSW.M),
		zap.Int("hnsw_ef_construct", params.HNSW.EfConstruct))
	return nil
}

// Upsert validates the batch locally and writes it in one request with wait=true,
// so the call returns only after Qdrant has applied every point.
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := q.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if err := ValidatePoints(collection, dim, points); err != nil {
		return err
	}
	body := upsertRequest{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath(collection)+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Search runs a filtered nearest-neighbor query. The request must carry a tenant filter.
func (q *QdrantIndex) Search(ctx context.Context, collection string, req SearchRequest) ([]models.ScoredPoint, error) {
	if err := req.RequireTenant(); err != nil {
		return nil, err
	}
	dim, err := q.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != dim {
		return nil, fmt.Errorf("%w: query dimension %d, collection %s expects %d",
			models.ErrConfiguration, len(req.Vector), collection, dim)
	}
	if req.Limit <= 0 {
		return nil, nil
	}
	body := searchRequest{Vector: req.Vector, Limit: req.Limit, WithPayload: true}
	for _, c := range req.Filter.Must {
		body.Filter.Must = append(body.Filter.Must, qdrantCondition{Key: c.Key, Match: qdrantMatch{Value: c.Value}})
	}
	var out searchResponse
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath(collection)+"/points/search", body, &out); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	hits := make([]models.ScoredPoint, 0, len(out.Result))
	for _, r := range out.Result {
		hits = append(hits, models.ScoredPoint{ID: pointIDString(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context, collection string) (int, error) {
	var out countResponse
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath(collection)+"/points/count", map[string]bool{"exact": true}, &out); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return out.Result.Count, nil
}

// Status probes GET /readyz. Any 2xx counts as ready; the body is ignored.
func (q *QdrantIndex) Status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultStatusTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/readyz", nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant status: %w", models.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: qdrant status returned %d", models.ErrTransient, resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (q *QdrantIndex) dimension(ctx context.Context, collection string) (int, error) {
	q.mu.RLock()
	d, ok := q.dims[collection]
	q.mu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := q.fetchDimension(ctx, collection)
	if err != nil {
		return 0, err
	}
	q.setDimension(collection, d)
	return d, nil
}

// ensureTenantIndex creates the keyword index on tenant_id. Qdrant accepts the request
// again for an existing index, so it is issued once per collection per client.
func (q *QdrantIndex) ensureTenantIndex(ctx context.Context, collection string) error {
	q.mu.RLock()
	done := q.indexed[collection]
	q.mu.RUnlock()
	if done {
		return nil
	}
	index := payloadIndexRequest{FieldName: PayloadTenantID, FieldSchema: "keyword"}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath(collection)+"/index?wait=true", index, nil); err != nil {
		return fmt.Errorf("index tenant_id on %s: %w", collection, err)
	}
	q.mu.Lock()
	q.indexed[collection] = true
	q.mu.Unlock()
	return nil
}

func (q *QdrantIndex) setDimension(collection string, d int) {
	q.mu.Lock()
	q.dims[collection] = d
	q.mu.Unlock()
}

func (q *QdrantIndex) fetchDimension(ctx context.Context, collection string) (int, error) {
	size, found, err := q.lookupCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: collection %s does not exist", models.ErrConfiguration, collection)
	}
	return size, nil
}

// lookupCollection returns the vector size of collection and whether it exists.
func (q *QdrantIndex) lookupCollection(ctx context.Context, collection string) (int, bool, error) {
	var info collectionInfoResponse
	status, err := q.do(ctx, http.MethodGet, q.collectionPath(collection), nil, &info)
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("collection %s: %w", collection, err)
	}
	return info.Result.Config.Params.Vectors.Size, true, nil
}

func (q *QdrantIndex) setHeaders(req *http.Request) {
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

// do sends one request and returns the HTTP status (0 when no response arrived).
// Network failures and 5xx/429 are transient; 404 is a configuration error; other
// non-2xx statuses are permanent.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %w", models.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse("qdrant "+method+" "+path, resp); err != nil {
		return resp.StatusCode, err
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
	}
	return resp.StatusCode, nil
}

func pointIDString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
