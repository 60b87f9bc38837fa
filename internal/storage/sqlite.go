// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/helpdesk/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ingestion_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		documents INTEGER NOT NULL,
		done INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		points INTEGER NOT NULL,
		docs_per_sec REAL NOT NULL,
		vectors_per_sec REAL NOT NULL,
		aborted INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingestion_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateTenant inserts a tenant. An empty ID is replaced with a random UUID.
func (s *SQLiteStorage) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return createTenant(ctx, s.db, tenant)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func createTenant(ctx context.Context, db execer, tenant *models.Tenant) error {
	if strings.TrimSpace(tenant.Name) == "" {
		return fmt.Errorf("%w: tenant name is required", models.ErrConfiguration)
	}
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	tenant.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, plan, created_at) VALUES (?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.Plan, tenant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant %s: %w", tenant.Name, err)
	}
	return nil
}

// GetTenant returns a tenant by ID.
func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return s.queryTenant(ctx, `SELECT id, name, plan, created_at FROM tenants WHERE id = ?`, id)
}

// GetTenantByName returns a tenant by its unique name.
func (s *SQLiteStorage) GetTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	return s.queryTenant(ctx, `SELECT id, name, plan, created_at FROM tenants WHERE name = ?`, name)
}

func (s *SQLiteStorage) queryTenant(ctx context.Context, query, key string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx, query, key).Scan(&t.ID, &t.Name, &t.Plan, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenants returns all tenants ordered by name.
func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, plan, created_at FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Plan, &t.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// SeedTenants creates every seed whose name is not yet present and returns the full
// name -> id mapping. Re-seeding is a no-op. A seed whose ID disagrees with the stored
// tenant of the same name is a configuration error and nothing is written.
func (s *SQLiteStorage) SeedTenants(ctx context.Context, seeds []TenantSeed) (map[string]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	mapping := make(map[string]string, len(seeds))
	for _, seed := range seeds {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM tenants WHERE name = ?`, seed.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			t := &models.Tenant{ID: seed.ID, Name: seed.Name, Plan: seed.Plan}
			if err := createTenant(ctx, tx, t); err != nil {
				return nil, err
			}
			id = t.ID
		case err != nil:
			return nil, err
		case seed.ID != "" && seed.ID != id:
			return nil, fmt.Errorf("%w: tenant %q already exists with id %s, seed says %s",
				models.ErrConfiguration, seed.Name, id, seed.ID)
		}
		mapping[seed.Name] = id
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return mapping, nil
}

// ResolveTenants maps each reference (a tenant name or id) to a tenant id.
// Every missing reference is reported in a single configuration error.
func (s *SQLiteStorage) ResolveTenants(ctx context.Context, refs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(refs))
	var missing []string
	for _, ref := range refs {
		if _, ok := resolved[ref]; ok {
			continue
		}
		t, err := s.GetTenantByName(ctx, ref)
		if errors.Is(err, ErrTenantNotFound) {
			t, err = s.GetTenant(ctx, ref)
		}
		if errors.Is(err, ErrTenantNotFound) {
			missing = append(missing, ref)
			continue
		}
		if err != nil {
			return nil, err
		}
		resolved[ref] = t.ID
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: unknown tenants: %s", models.ErrConfiguration, strings.Join(missing, ", "))
	}
	return resolved, nil
}

// RecordRun appends a run summary to the ledger.
func (s *SQLiteStorage) RecordRun(ctx context.Context, r *models.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs
		 (id, started_at, duration_ms, documents, done, skipped, failed, points, docs_per_sec, vectors_per_sec, aborted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.UTC(), r.Duration.Milliseconds(), r.Documents, r.Done, r.Skipped, r.Failed,
		r.Points, r.DocsPerSec, r.VectorsPerSec, r.Aborted, r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first, without per-document outcomes.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, documents, done, skipped, failed, points, docs_per_sec, vectors_per_sec, aborted, error
		 FROM ingestion_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		var ms int64
		if err := rows.Scan(&r.RunID, &r.StartedAt, &ms, &r.Documents, &r.Done, &r.Skipped, &r.Failed,
			&r.Points, &r.DocsPerSec, &r.VectorsPerSec, &r.Aborted, &r.Error); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// CountTenants returns the total number of tenants.
func (s *SQLiteStorage) CountTenants(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count)
	return count, err
}

// CountRuns returns the total number of recorded runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingestion_runs`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
