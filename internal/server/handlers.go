package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/helpdesk/internal/embedding"
	"github.com/hyperjump/helpdesk/internal/manifest"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/search"
	"github.com/hyperjump/helpdesk/internal/storage"
	"github.com/hyperjump/helpdesk/internal/vector"
)

const recentRuns = 5

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.Ready(r.Context())
	status := http.StatusOK
	if !ready.Ready() {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, ready)
}

// Ready probes the vector index and the model service. Each probe is bounded by the
// gateway's own status timeout.
func (s *Server) Ready(ctx context.Context) *models.ReadyStatus {
	out := &models.ReadyStatus{Status: "ok", Checks: map[string]string{}}
	check := func(name string, probe func(context.Context) error) {
		if err := probe(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			out.Checks[name] = err.Error()
			out.Status = "unavailable"
			return
		}
		out.Checks[name] = "ok"
	}
	check("vector_index", s.index.Status)
	check("embedding", s.embedder.Status)
	return out
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	root := s.config.Ingest.Root
	entries, err := manifest.Parse(data, root)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := manifest.Confine(entries, root); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.ingestMu.TryLock() {
		s.respondError(w, http.StatusConflict, "an ingestion run is already in progress")
		return
	}
	defer s.ingestMu.Unlock()

	ctx := r.Context()
	tenants, err := s.storage.ResolveTenants(ctx, manifest.Tenants(entries))
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, models.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.logger.Debug("ingest request", zap.Int("entries", len(entries)), zap.Int("tenants", len(tenants)))
	summary, err := s.indexer.IngestManifest(ctx, entries, tenants)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondJSON(w, statusFor(err), map[string]interface{}{"error": err.Error(), "summary": summary})
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := search.ProcessQuery(&req, s.config.Search.DefaultLimit, s.config.Search.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	ids, err := s.storage.ResolveTenants(ctx, []string{req.Tenant})
	if err != nil {
		if errors.Is(err, models.ErrConfiguration) {
			s.respondError(w, http.StatusNotFound, "unknown tenant: "+req.Tenant)
			return
		}
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("tenant", req.Tenant), zap.String("query", req.Query), zap.Int("limit", req.Limit))
	response, err := s.engine.Search(ctx, ids[req.Tenant], &req)
	if err != nil {
		s.logger.Error("query failed", zap.String("tenant", req.Tenant), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.respondError(w, http.StatusBadRequest, "prompt cannot be empty")
		return
	}
	opts := embedding.DefaultGenerateOptions()
	opts.System = req.System
	opts.MaxTokens = req.MaxTokens
	if req.Temperature > 0 {
		opts.Temperature = req.Temperature
	}
	text, err := s.embedder.Generate(r.Context(), req.Prompt, opts)
	if err != nil {
		s.logger.Error("generate failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"model": s.config.Embedding.GenerateModel, "response": text})
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.storage.ListTenants(r.Context())
	if err != nil {
		s.logger.Error("list tenants failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tenants == nil {
		tenants = []*models.Tenant{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// Status gathers index, tenant and run statistics. A missing collection reports zero points;
// other index errors are reported in IndexError rather than failing the call.
func (s *Server) Status(ctx context.Context) (*models.Status, error) {
	cfg := s.config
	status := &models.Status{
		Collection: s.indexer.Collection(),
		IndexType:  cfg.Vector.Type,
		Model:      s.embedder.Model(),
		Dimensions: s.embedder.Dimensions(),
		Config: &models.StatusConfig{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			Workers:      cfg.Ingest.Workers,
			Distance:     cfg.Vector.Distance,
			DatabasePath: cfg.Storage.DatabasePath,
		},
	}
	points, err := s.index.Count(ctx, status.Collection)
	switch {
	case err == nil:
		status.Points = points
	case errors.Is(err, models.ErrConfiguration):
		s.logger.Debug("status: collection not created yet", zap.String("collection", status.Collection))
	default:
		status.IndexError = err.Error()
	}

	if status.Tenants, err = s.storage.CountTenants(ctx); err != nil {
		return nil, err
	}
	if status.Runs, err = s.storage.CountRuns(ctx); err != nil {
		return nil, err
	}
	if status.RecentRuns, err = s.storage.ListRuns(ctx, recentRuns); err != nil {
		return nil, err
	}

	snapshot := ""
	if vector.IndexType(cfg.Vector.Type) == vector.IndexTypeMemory {
		snapshot = cfg.Storage.VectorSnapshotPath
		status.Config.VectorSnapshotPath = snapshot
	}
	if usage, err := storage.MeasureDiskUsage(cfg.Storage.DatabasePath, snapshot); err == nil {
		total := usage.Total()
		status.DiskUsageBytes = &total
	}
	return status, nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrContent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
