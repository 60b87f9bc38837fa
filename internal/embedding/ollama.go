package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultModel         = "nomic-embed-text"
	DefaultDimensions    = 768
	DefaultGenerateModel = "llama3"
	DefaultTimeout       = 30 * time.Second
	DefaultStatusTimeout = 5 * time.Second
)

// OllamaConfig configures the Ollama gateway.
type OllamaConfig struct {
	BaseURL           string
	Model             string
	GenerateModel     string
	Dimensions        int
	Timeout           time.Duration
	StatusTimeout     time.Duration
	RequestsPerSecond float64
}

// OllamaClient talks to an Ollama server for embeddings and generation.
type OllamaClient struct {
	baseURL       string
	model         string
	generateModel string
	dimensions    int
	statusTimeout time.Duration
	client        *http.Client
	limiter       *rate.Limiter
	retry         *retry.Policy
	logger        *zap.Logger
}

var _ Embedder = (*OllamaClient)(nil)

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithLogger sets a logger for request and retry events.
func WithLogger(l *zap.Logger) OllamaOption {
	return func(c *OllamaClient) { c.logger = l }
}

// WithRetryPolicy overrides the default 0/0.5s/1s retry policy.
func WithRetryPolicy(p *retry.Policy) OllamaOption {
	return func(c *OllamaClient) { c.retry = p }
}

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.client = hc }
}

// NewOllamaClient creates a gateway for the Ollama server described by cfg.
func NewOllamaClient(cfg OllamaConfig, opts ...OllamaOption) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.GenerateModel == "" {
		cfg.GenerateModel = DefaultGenerateModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive, got %d", models.ErrConfiguration, cfg.Dimensions)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &OllamaClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		generateModel: cfg.GenerateModel,
		dimensions:    cfg.Dimensions,
		statusTimeout: cfg.StatusTimeout,
		client:        &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, 1),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.retry == nil {
		c.retry = retry.NewPolicy(nil, c.logger)
	}
	return c, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Embed returns the embedding for a single text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Every returned vector is checked against the
// configured dimension, and the response must hold exactly one vector per input.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Model: c.model, Input: texts}, &out); err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: model %s returned %d embeddings for %d inputs",
			models.ErrConsistency, c.model, len(out.Embeddings), len(texts))
	}
	for i, v := range out.Embeddings {
		if len(v) != c.dimensions {
			return nil, fmt.Errorf("%w: model %s returned dimension %d at index %d, expected %d",
				models.ErrConfiguration, c.model, len(v), i, c.dimensions)
		}
	}
	c.logger.Debug("embedded batch", zap.String("model", c.model), zap.Int("texts", len(texts)))
	return out.Embeddings, nil
}

// Generate runs a non-streaming completion with the generation model.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req := generateRequest{
		Model:  c.generateModel,
		Prompt: prompt,
		System: opts.System,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.Stop,
		},
	}
	var out generateResponse
	if err := c.post(ctx, "/api/generate", req, &out); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out.Response, nil
}

// Status probes GET /api/tags once with the status timeout. Any 2xx counts as alive.
func (c *OllamaClient) Status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama status: %w", models.ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: ollama status returned %d", models.ErrTransient, resp.StatusCode)
	}
	return nil
}

// Dimensions returns the configured embedding dimension.
func (c *OllamaClient) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.retry.Do(ctx, "ollama "+path, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}
		defer resp.Body.Close()
		if err := retry.CheckResponse("ollama "+path, resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}
		return nil
	})
}
