package models

import "errors"

// Error classes shared by the gateways, the ingestion pipeline, and retrieval.
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	// ErrTransient marks a network or service failure that survived all retries.
	ErrTransient = errors.New("transient i/o error")
	// ErrConfiguration marks a misconfiguration: dimension mismatch, unknown collection, bad model.
	ErrConfiguration = errors.New("configuration error")
	// ErrContent marks a document that could not be read or decoded.
	ErrContent = errors.New("content error")
	// ErrConsistency marks a violated internal invariant, e.g. chunk and vector counts differ.
	ErrConsistency = errors.New("consistency error")
	// ErrIsolation marks a point or result that crosses a tenant boundary.
	ErrIsolation = errors.New("tenant isolation violation")
)

// IsFatal reports whether err must abort an ingestion run rather than fail a single document.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrIsolation) ||
		errors.Is(err, ErrTransient)
}
