package vector

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/helpdesk/internal/models"
)

// MemoryIndex is an in-process vector index using brute-force search.
// Suitable for tests, offline runs, and small knowledge bases; it can snapshot to disk.
type MemoryIndex struct {
	collections map[string]*memCollection
	mu          sync.RWMutex
}

type memCollection struct {
	params CollectionParams
	points map[string]models.Point
}

var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// EnsureCollection creates the collection if absent.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, params CollectionParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.collections[params.Name]; ok {
		if existing.params.Dimension != params.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				models.ErrConfiguration, params.Name, existing.params.Dimension, params.Dimension)
		}
		return nil
	}
	m.collections[params.Name] = &memCollection{params: params, points: make(map[string]models.Point)}
	return nil
}

// Upsert validates the whole batch before writing any point.
func (m *MemoryIndex) Upsert(ctx context.Context, collection string, points []models.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col, err := m.collectionLocked(collection)
	if err != nil {
		return err
	}
	if err := ValidatePoints(collection, col.params.Dimension, points); err != nil {
		return err
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		col.points[p.ID] = models.Point{ID: p.ID, Vector: vec, Payload: p.Payload}
	}
	return nil
}

// Search scores every point that passes the filter and returns the best req.Limit,
// ordered by score descending and then by id.
func (m *MemoryIndex) Search(ctx context.Context, collection string, req SearchRequest) ([]models.ScoredPoint, error) {
	if err := req.RequireTenant(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, err := m.collectionLocked(collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != col.params.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, collection %s expects %d",
			models.ErrConfiguration, len(req.Vector), collection, col.params.Dimension)
	}
	if req.Limit <= 0 {
		return nil, nil
	}
	hits := make([]models.ScoredPoint, 0)
	for _, p := range col.points {
		if !req.Filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, models.ScoredPoint{
			ID:      p.ID,
			Score:   Score(col.params.Distance, req.Vector, p.Vector),
			Payload: p.Payload,
		})
	}
	SortScored(hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Count returns the number of points in the collection.
func (m *MemoryIndex) Count(ctx context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, err := m.collectionLocked(collection)
	if err != nil {
		return 0, err
	}
	return len(col.points), nil
}

// Status always succeeds for the in-memory index.
func (m *MemoryIndex) Status(ctx context.Context) error {
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func (m *MemoryIndex) collectionLocked(name string) (*memCollection, error) {
	col, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s does not exist", models.ErrConfiguration, name)
	}
	return col, nil
}

type snapshot struct {
	Collections []snapshotCollection
}

type snapshotCollection struct {
	Params CollectionParams
	Points []models.Point
}

// Save writes all collections to path. The directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	snap := snapshot{}
	for _, col := range m.collections {
		sc := snapshotCollection{Params: col.params, Points: make([]models.Point, 0, len(col.points))}
		for _, p := range col.points {
			sc.Points = append(sc.Points, p)
		}
		sort.Slice(sc.Points, func(i, j int) bool { return sc.Points[i].ID < sc.Points[j].ID })
		snap.Collections = append(snap.Collections, sc)
	}
	m.mu.RUnlock()
	sort.Slice(snap.Collections, func(i, j int) bool {
		return snap.Collections[i].Params.Name < snap.Collections[j].Params.Name
	})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load replaces the in-memory contents with the snapshot at path.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	collections := make(map[string]*memCollection, len(snap.Collections))
	for _, sc := range snap.Collections {
		col := &memCollection{params: sc.Params, points: make(map[string]models.Point, len(sc.Points))}
		for _, p := range sc.Points {
			col.points[p.ID] = p
		}
		collections[sc.Params.Name] = col
	}
	m.mu.Lock()
	m.collections = collections
	m.mu.Unlock()
	return nil
}

// SortScored orders hits by score descending, breaking ties by point id.
func SortScored(hits []models.ScoredPoint) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
