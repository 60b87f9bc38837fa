// Package manifest reads the ingestion manifest and the tenant seed manifest.
//
// The ingestion manifest is a JSON array of {"path", "tenant"} objects. The seed manifest
// is a JSON object whose "tenants" member maps tenant names to tenant ids; other members
// (users, tickets) are accepted and ignored.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hyperjump/helpdesk/internal/models"
)

const manifestSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["path", "tenant"],
		"properties": {
			"path": {"type": "string", "minLength": 1},
			"tenant": {"type": "string", "minLength": 1}
		}
	}
}`

const seedSchema = `{
	"type": "object",
	"required": ["tenants"],
	"properties": {
		"tenants": {
			"type": "object",
			"additionalProperties": {"type": "string", "minLength": 1}
		}
	}
}`

var (
	manifestLoader = gojsonschema.NewStringLoader(manifestSchema)
	seedLoader     = gojsonschema.NewStringLoader(seedSchema)
)

// Seed is the tenant name -> id mapping produced by seeding.
type Seed struct {
	Tenants map[string]string `json:"tenants"`
}

// Names returns the tenant names in sorted order.
func (s *Seed) Names() []string {
	names := make([]string, 0, len(s.Tenants))
	for n := range s.Tenants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load reads the ingestion manifest at path. Relative document paths are resolved
// against the manifest's directory.
func Load(path string) ([]models.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", models.ErrConfiguration, err)
	}
	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest directory: %w", err)
	}
	return Parse(data, baseDir)
}

// Parse validates and decodes manifest JSON. Relative paths are joined to baseDir
// when baseDir is not empty.
func Parse(data []byte, baseDir string) ([]models.ManifestEntry, error) {
	if err := validate(manifestLoader, data, "manifest"); err != nil {
		return nil, err
	}
	var entries []models.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", models.ErrConfiguration, err)
	}
	for i := range entries {
		p := entries[i].Path
		if baseDir != "" && !filepath.IsAbs(p) {
			entries[i].Path = filepath.Join(baseDir, p)
		}
	}
	return entries, nil
}

// Confine reports a configuration error naming every entry whose path lies outside root.
// Symlinks are followed where the path, or its directory, exists.
func Confine(entries []models.ManifestEntry, root string) error {
	if root == "" {
		return fmt.Errorf("%w: no document root configured", models.ErrConfiguration)
	}
	base, err := realPath(root)
	if err != nil {
		return fmt.Errorf("document root: %w", err)
	}
	var outside []string
	for _, e := range entries {
		p, err := realPath(e.Path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", e.Path, err)
		}
		rel, err := filepath.Rel(base, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			outside = append(outside, e.Path)
		}
	}
	if len(outside) > 0 {
		return fmt.Errorf("%w: paths outside document root %s: %s",
			models.ErrConfiguration, root, strings.Join(outside, ", "))
	}
	return nil
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}
	return abs, nil
}

// Tenants returns the distinct tenant references of entries in first-seen order.
func Tenants(entries []models.ManifestEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if !seen[e.Tenant] {
			seen[e.Tenant] = true
			out = append(out, e.Tenant)
		}
	}
	return out
}

// LoadSeed reads a seed manifest.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read seed manifest: %w", models.ErrConfiguration, err)
	}
	return ParseSeed(data)
}

// ParseSeed validates and decodes seed manifest JSON.
func ParseSeed(data []byte) (*Seed, error) {
	if err := validate(seedLoader, data, "seed manifest"); err != nil {
		return nil, err
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: decode seed manifest: %w", models.ErrConfiguration, err)
	}
	return &seed, nil
}

// WriteSeed writes the tenant mapping as a seed manifest, creating parent directories.
func WriteSeed(path string, tenants map[string]string) error {
	data, err := json.MarshalIndent(Seed{Tenants: tenants}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seed manifest: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create seed manifest directory: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func validate(schema gojsonschema.JSONLoader, data []byte, what string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %w", models.ErrConfiguration, what, err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s failed validation: %s", models.ErrConfiguration, what, strings.Join(details, "; "))
}
