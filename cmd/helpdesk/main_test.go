package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/helpdesk/internal/config"
	"github.com/hyperjump/helpdesk/internal/manifest"
	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/hyperjump/helpdesk/internal/storage"
	"github.com/hyperjump/helpdesk/internal/vector"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"reset password", "-limit", "3"},
			expected: []string{"-limit", "3", "reset password"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-tenant", "Globex", "reset password"},
			expected: []string{"-tenant", "Globex", "reset password"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"reset password"},
			expected: []string{"reset password"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"billing", "cycle", "--tenant", "Acme Corp"},
			expected: []string{"--tenant", "Acme Corp", "billing", "cycle"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"refund"}, "refund"},
		{"multiple words", []string{"refund", "policy"}, "refund policy"},
		{"single quoted phrase", []string{"refund policy"}, "refund policy"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
vector:
  type: memory
storage:
  database_path: "./helpdesk.db"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	assert.Equal(t, configPathCanon, resolvedCanon)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "memory", cfg.Vector.Type)
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "helpdesk.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, resolved, err := loadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, resolved)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address())
}

func TestLoadConfig_defaultsWhenNoFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("system config present")
	}
	chdir(t, t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, config.ProviderOllama, cfg.Embedding.Provider)

	_, _, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit missing path is an error")
}

func TestWatchList(t *testing.T) {
	entries := []models.ManifestEntry{{Path: "/docs/a.md", Tenant: "Globex"}, {Path: "/docs/b.pdf", Tenant: "Globex"}}
	assert.Equal(t, []string{"/kb/manifest.json", "/docs/a.md", "/docs/b.pdf"}, watchList("/kb/manifest.json", entries))
	assert.Equal(t, []string{"/kb/manifest.json"}, watchList("/kb/manifest.json", nil))
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "helpdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSeedTenants_demo(t *testing.T) {
	store := newStore(t)
	seedPath := filepath.Join(t.TempDir(), "seed_manifest.json")

	mapping, err := seedTenants(context.Background(), store, "", seedPath)
	require.NoError(t, err)
	require.Len(t, mapping, 2)
	assert.NotEmpty(t, mapping["Acme Corp"])
	assert.NotEmpty(t, mapping["Globex"])

	seed, err := manifest.LoadSeed(seedPath)
	require.NoError(t, err)
	assert.Equal(t, mapping, seed.Tenants)

	again, err := seedTenants(context.Background(), store, "", seedPath)
	require.NoError(t, err)
	assert.Equal(t, mapping, again, "seeding twice keeps the same ids")
}

func TestSeedTenants_import(t *testing.T) {
	store := newStore(t)
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.json")
	require.NoError(t, manifest.WriteSeed(importPath, map[string]string{"Initech": "9b0c6c86-1f0e-4d4b-9f7e-0c2a3c1e5a11"}))

	mapping, err := seedTenants(context.Background(), store, importPath, filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Initech": "9b0c6c86-1f0e-4d4b-9f7e-0c2a3c1e5a11"}, mapping)

	_, err = seedTenants(context.Background(), store, filepath.Join(dir, "missing.json"), "")
	assert.Error(t, err)
}

func TestResolveManifestTenants(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed_manifest.json")
	mapping, err := seedTenants(ctx, store, "", "")
	require.NoError(t, err)

	entries := []models.ManifestEntry{
		{Path: "a.md", Tenant: "Acme Corp"},
		{Path: "b.md", Tenant: mapping["Globex"]},
	}

	// No seed manifest on disk: everything comes from the tenant table.
	tenants, err := resolveManifestTenants(ctx, store, entries, seedPath)
	require.NoError(t, err)
	assert.Equal(t, mapping["Acme Corp"], tenants["Acme Corp"])
	assert.Equal(t, mapping["Globex"], tenants[mapping["Globex"]])

	// The seed manifest wins for the names it covers.
	require.NoError(t, manifest.WriteSeed(seedPath, map[string]string{"Acme Corp": "seeded-acme"}))
	tenants, err = resolveManifestTenants(ctx, store, entries, seedPath)
	require.NoError(t, err)
	assert.Equal(t, "seeded-acme", tenants["Acme Corp"])

	_, err = resolveManifestTenants(ctx, store, []models.ManifestEntry{{Path: "c.md", Tenant: "Umbrella"}}, seedPath)
	assert.True(t, errors.Is(err, models.ErrConfiguration), "unknown tenant: %v", err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0600))
	_, err = resolveManifestTenants(ctx, store, entries, bad)
	assert.Error(t, err, "a corrupt seed manifest is not ignored")
}

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Embedding.Provider = config.ProviderMock
	cfg.Embedding.Dimensions = 64
	cfg.Vector.Type = string(vector.IndexTypeMemory)
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "helpdesk.db")
	cfg.Storage.VectorSnapshotPath = filepath.Join(dir, "indices", "vectors.gob")
	cfg.Retry.Delays = nil
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestInitializeComponents_snapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)
	docs := t.TempDir()
	doc := filepath.Join(docs, "reset.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Password reset\n\nOpen Settings and click Forgot Password to reset your password."), 0600))

	c, err := initializeComponents(cfg, zap.NewNop())
	require.NoError(t, err)
	mapping, err := seedTenants(ctx, c.Storage, "", "")
	require.NoError(t, err)
	entries := []models.ManifestEntry{{Path: doc, Tenant: "Acme Corp"}}
	tenants, err := resolveManifestTenants(ctx, c.Storage, entries, "")
	require.NoError(t, err)
	summary, err := c.Indexer.IngestManifest(ctx, entries, tenants)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Done)
	require.NoError(t, c.Close())

	_, err = os.Stat(cfg.Storage.VectorSnapshotPath)
	require.NoError(t, err, "snapshot written on close")

	c, err = initializeComponents(cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	n, err := c.VectorIndex.Count(ctx, cfg.Vector.Collection)
	require.NoError(t, err)
	assert.Equal(t, summary.Points, n)

	resp, err := c.Engine.Search(ctx, mapping["Acme Corp"], &models.QueryRequest{Tenant: "Acme Corp", Query: "reset password"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Text, "Forgot Password")

	resp, err = c.Engine.Search(ctx, mapping["Globex"], &models.QueryRequest{Tenant: "Globex", Query: "reset password"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "another tenant never sees Acme documents")
}

func TestQueryViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Tenant != "Globex" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown tenant: " + req.Tenant})
			return
		}
		_ = json.NewEncoder(w).Encode(models.QueryResponse{TenantID: "t-globex", Query: req.Query, Total: 0, Results: []*models.QueryResult{}})
	}))
	defer srv.Close()

	resp, err := queryViaHTTP(srv.URL, &models.QueryRequest{Tenant: "Globex", Query: "invoices"})
	require.NoError(t, err)
	assert.Equal(t, "t-globex", resp.TenantID)
	assert.Equal(t, "invoices", resp.Query)

	_, err = queryViaHTTP(srv.URL, &models.QueryRequest{Tenant: "Umbrella", Query: "invoices"})
	require.Error(t, err)
	assert.Equal(t, "server returned 404: unknown tenant: Umbrella", err.Error())
}

func TestGetJSON_plainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var status models.Status
	err := getJSON(srv.URL+"/api/v1/status", &status)
	require.Error(t, err)
	assert.Equal(t, "server returned 500: boom", err.Error())
}
