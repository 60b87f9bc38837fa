// Package vector provides the vector index gateway: collection management, point upsert,
// and tenant-filtered nearest-neighbor search.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/helpdesk/internal/models"
)

// VectorIndex stores points in named collections and answers filtered similarity searches.
type VectorIndex interface {
	// EnsureCollection creates the collection if absent. An existing collection with a
	// different dimension is a configuration error.
	EnsureCollection(ctx context.Context, params CollectionParams) error
	// Upsert writes all points or none. Points with an existing id are replaced.
	Upsert(ctx context.Context, collection string, points []models.Point) error
	// Search never returns a point whose payload fails req.Filter.
	Search(ctx context.Context, collection string, req SearchRequest) ([]models.ScoredPoint, error)
	Count(ctx context.Context, collection string) (int, error)
	Status(ctx context.Context) error
	Close() error
}

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// Valid reports whether d is a supported metric.
func (d Distance) Valid() bool {
	return d == DistanceCosine || d == DistanceDot || d == DistanceEuclid
}

// HNSWConfig tunes the approximate-neighbor graph of a collection.
type HNSWConfig struct {
	M                 int `json:"m" yaml:"m"`
	EfConstruct       int `json:"ef_construct" yaml:"ef_construct"`
	FullScanThreshold int `json:"full_scan_threshold" yaml:"full_scan_threshold"`
}

// DefaultHNSW returns the graph settings used when none are configured.
func DefaultHNSW() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruct: 64, FullScanThreshold: 10000}
}

// CollectionParams describes a collection to create.
type CollectionParams struct {
	Name      string
	Dimension int
	Distance  Distance
	HNSW      HNSWConfig
}

// Validate checks the parameters before they reach the index.
func (p CollectionParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: collection name is required", models.ErrConfiguration)
	}
	if p.Dimension <= 0 {
		return fmt.Errorf("%w: collection %s dimension must be positive, got %d", models.ErrConfiguration, p.Name, p.Dimension)
	}
	if !p.Distance.Valid() {
		return fmt.Errorf("%w: unknown distance %q", models.ErrConfiguration, p.Distance)
	}
	return nil
}

// PayloadTenantID is the payload key carrying the owning tenant.
const PayloadTenantID = "tenant_id"

// Condition is an equality match on a payload field.
type Condition struct {
	Key   string
	Value interface{}
}

// Filter holds conditions that must all match.
type Filter struct {
	Must []Condition
}

// TenantFilter returns a filter matching only points owned by tenantID.
func TenantFilter(tenantID string) Filter {
	return Filter{Must: []Condition{{Key: PayloadTenantID, Value: tenantID}}}
}

// TenantID returns the tenant the filter is scoped to.
func (f Filter) TenantID() (string, bool) {
	for _, c := range f.Must {
		if c.Key != PayloadTenantID {
			continue
		}
		if s, ok := c.Value.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Matches reports whether payload satisfies every condition.
func (f Filter) Matches(p models.Payload) bool {
	for _, c := range f.Must {
		switch c.Key {
		case PayloadTenantID:
			if fmt.Sprint(c.Value) != p.TenantID {
				return false
			}
		case "doc_id":
			if fmt.Sprint(c.Value) != p.DocID {
				return false
			}
		case "chunk_index":
			if fmt.Sprint(c.Value) != fmt.Sprint(p.ChunkIndex) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SearchRequest is a filtered nearest-neighbor query.
type SearchRequest struct {
	Vector []float32
	Filter Filter
	Limit  int
}

// RequireTenant rejects searches that are not scoped to a tenant.
func (r SearchRequest) RequireTenant() error {
	if _, ok := r.Filter.TenantID(); !ok {
		return fmt.Errorf("%w: search without tenant_id filter", models.ErrIsolation)
	}
	return nil
}

// ValidatePoints checks a batch against the collection dimension and the tenant invariant.
// The whole batch is rejected on the first bad point.
func ValidatePoints(collection string, dimension int, points []models.Point) error {
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("%w: point %d in %s has no id", models.ErrConsistency, i, collection)
		}
		if p.Payload.TenantID == "" {
			return fmt.Errorf("%w: point %s has no tenant_id", models.ErrIsolation, p.ID)
		}
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: point %s has dimension %d, collection %s expects %d",
				models.ErrConfiguration, p.ID, len(p.Vector), collection, dimension)
		}
	}
	return nil
}
