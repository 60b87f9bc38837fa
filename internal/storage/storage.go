// Package storage defines the relational collaborator: tenant lookup and the ingestion run ledger.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/helpdesk/internal/models"
)

// ErrTenantNotFound is returned when a tenant id or name has no row.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantSeed describes a tenant to create when missing. An empty ID gets a generated UUID.
type TenantSeed struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Plan string `json:"plan,omitempty"`
}

// Storage defines tenant resolution and run bookkeeping.
type Storage interface {
	// Tenant operations
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	SeedTenants(ctx context.Context, seeds []TenantSeed) (map[string]string, error)
	ResolveTenants(ctx context.Context, refs []string) (map[string]string, error)

	// Run ledger
	RecordRun(ctx context.Context, summary *models.RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error)

	// Stats
	CountTenants(ctx context.Context) (int64, error)
	CountRuns(ctx context.Context) (int64, error)

	Close() error
}
