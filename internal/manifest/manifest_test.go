package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/helpdesk/internal/models"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo_docs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"path": "docs/reset.md", "tenant": "Acme Corp"},
		{"path": "/abs/faq.txt", "tenant": "Globex"}
	]`), 0644))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(dir, "docs", "reset.md"), entries[0].Path)
	assert.Equal(t, "Acme Corp", entries[0].Tenant)
	assert.Equal(t, "/abs/faq.txt", entries[1].Path)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `[{"path": `},
		{"object instead of array", `{"path": "a.txt", "tenant": "x"}`},
		{"missing tenant", `[{"path": "a.txt"}]`},
		{"empty path", `[{"path": "", "tenant": "x"}]`},
		{"tenant not a string", `[{"path": "a.txt", "tenant": 7}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "")
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	entries, err := Parse([]byte(`[]`), "/base")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestTenants(t *testing.T) {
	got := Tenants([]models.ManifestEntry{
		{Path: "a", Tenant: "Globex"}, {Path: "b", Tenant: "Acme Corp"}, {Path: "c", Tenant: "Globex"},
	})
	assert.Equal(t, []string{"Globex", "Acme Corp"}, got)
}

func TestSeedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts", "seed_manifest.json")
	tenants := map[string]string{"Globex": "g-1", "Acme Corp": "a-1"}
	require.NoError(t, WriteSeed(path, tenants))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.Equal(t, tenants, seed.Tenants)
	assert.Equal(t, []string{"Acme Corp", "Globex"}, seed.Names())
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(`{"tenants": {"Acme Corp": "a-1"}, "users": {"user1@acmecorp.com": "u-1"}, "tickets": {}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Acme Corp": "a-1"}, seed.Tenants)

	for _, bad := range []string{`{}`, `{"tenants": []}`, `{"tenants": {"Acme": ""}}`, `[]`} {
		_, err := ParseSeed([]byte(bad))
		assert.ErrorIs(t, err, models.ErrConfiguration, bad)
	}
}

func TestConfine(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "acme"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "acme", "reset.md"), []byte("reset"), 0o644))

	inside := []models.ManifestEntry{
		{Path: filepath.Join(docs, "acme", "reset.md"), Tenant: "Acme Corp"},
		{Path: filepath.Join(docs, "acme", "not-yet-written.md"), Tenant: "Acme Corp"},
	}
	assert.NoError(t, Confine(inside, docs))

	tests := []struct {
		name string
		path string
	}{
		{"absolute", "/etc/passwd"},
		{"dot dot", filepath.Join(docs, "..", "helpdesk.db")},
		{"sibling prefix", docs + "-private/secret.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Confine([]models.ManifestEntry{{Path: tt.path, Tenant: "Acme Corp"}}, docs)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestConfine_Symlink(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	secret := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("token"), 0o600))
	link := filepath.Join(docs, "notes.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	err := Confine([]models.ManifestEntry{{Path: link, Tenant: "Globex"}}, docs)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestConfine_NoRoot(t *testing.T) {
	err := Confine([]models.ManifestEntry{{Path: "a.txt", Tenant: "Globex"}}, "")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
