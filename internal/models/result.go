package models

// QueryResult is a single ranked match for a tenant query.
type QueryResult struct {
	PointID    string  `json:"point_id"`
	DocID      string  `json:"doc_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// QueryResponse is the response for a query request.
type QueryResponse struct {
	TenantID  string         `json:"tenant_id"`
	Query     string         `json:"query"`
	Results   []*QueryResult `json:"results"`
	Total     int            `json:"total"`
	QueryTime int64          `json:"query_time_ms"`
}
