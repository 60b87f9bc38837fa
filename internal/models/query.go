package models

import "fmt"

// QueryRequest is a tenant-scoped retrieval request.
// Tenant may be a tenant name or id; it is resolved before the search runs.
type QueryRequest struct {
	Tenant string `json:"tenant"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

// Validate ensures the request has a tenant and a query, and clamps the limit.
func (q *QueryRequest) Validate(defaultLimit, maxLimit int) error {
	if q.Tenant == "" {
		return fmt.Errorf("tenant cannot be empty")
	}
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}

// GenerateRequest is a prompt sent through the generation capability.
type GenerateRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}
