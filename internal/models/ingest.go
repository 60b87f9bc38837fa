package models

import "time"

// ManifestEntry names one source document and the tenant that owns it.
type ManifestEntry struct {
	Path   string `json:"path"`
	Tenant string `json:"tenant"`
}

// DocumentState is the lifecycle state of one document within an ingestion run.
type DocumentState string

const (
	StateLoading   DocumentState = "loading"
	StateChunking  DocumentState = "chunking"
	StateEmbedding DocumentState = "embedding"
	StateUpserting DocumentState = "upserting"
	StateDone      DocumentState = "done"
	StateSkipped   DocumentState = "skipped"
	StateFailed    DocumentState = "failed"
)

// Terminal reports whether the state ends a document's lifecycle.
func (s DocumentState) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// DocumentOutcome records how ingesting one manifest entry ended.
type DocumentOutcome struct {
	Path     string        `json:"path"`
	TenantID string        `json:"tenant_id"`
	DocID    string        `json:"doc_id,omitempty"`
	State    DocumentState `json:"state"`
	Chunks   int           `json:"chunks"`
	Points   int           `json:"points"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// RunSummary reports the result of an ingestion run.
type RunSummary struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	Duration      time.Duration      `json:"duration_ns"`
	Documents     int                `json:"documents"`
	Done          int                `json:"done"`
	Skipped       int                `json:"skipped"`
	Failed        int                `json:"failed"`
	Points        int                `json:"points"`
	DocsPerSec    float64            `json:"docs_per_sec"`
	VectorsPerSec float64            `json:"vectors_per_sec"`
	Outcomes      []*DocumentOutcome `json:"outcomes,omitempty"`
	Aborted       bool               `json:"aborted"`
	Error         string             `json:"error,omitempty"`
}

// Record adds an outcome to the summary counters.
func (s *RunSummary) Record(o *DocumentOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.Documents++
	switch o.State {
	case StateDone:
		s.Done++
		s.Points += o.Points
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
	}
}

// Finish stamps the duration and computes throughput.
func (s *RunSummary) Finish(elapsed time.Duration) {
	s.Duration = elapsed
	if secs := elapsed.Seconds(); secs > 0 {
		s.DocsPerSec = float64(s.Documents) / secs
		s.VectorsPerSec = float64(s.Points) / secs
	}
}
