package models

// Status describes the knowledge base: index contents, model, tenants and recent runs.
type Status struct {
	Collection     string        `json:"collection"`
	IndexType      string        `json:"index_type"`
	Points         int           `json:"points"`
	IndexError     string        `json:"index_error,omitempty"`
	Model          string        `json:"model"`
	Dimensions     int           `json:"dimensions"`
	Tenants        int64         `json:"tenants"`
	Runs           int64         `json:"runs"`
	RecentRuns     []*RunSummary `json:"recent_runs,omitempty"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig `json:"config,omitempty"`
}

// StatusConfig echoes the settings that shape ingestion.
type StatusConfig struct {
	ChunkSize          int    `json:"chunk_size"`
	ChunkOverlap       int    `json:"chunk_overlap"`
	Workers            int    `json:"workers"`
	Distance           string `json:"distance"`
	DatabasePath       string `json:"database_path,omitempty"`
	VectorSnapshotPath string `json:"vector_snapshot_path,omitempty"`
}

// ReadyStatus reports whether the external services answer.
type ReadyStatus struct {
	Status string            `json:"status"` // "ok" or "unavailable"
	Checks map[string]string `json:"checks"`
}

// Ready reports whether every check passed.
func (r *ReadyStatus) Ready() bool {
	return r.Status == "ok"
}
