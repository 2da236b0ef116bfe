package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity.
// It backs single-node deployments and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	points    map[string]Point
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection or validates its vector size.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be greater than 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.dimension != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.dimension)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{dimension: vectorSize, points: make(map[string]Point)}
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// Upsert inserts or updates points in the collection.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for _, p := range points {
		if len(p.Vec) != c.dimension {
			return fmt.Errorf("point %s has size %d, expected %d", p.ID, len(p.Vec), c.dimension)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vec))
		copy(vec, p.Vec)
		meta := make(map[string]any, len(p.Meta))
		for k, v := range p.Meta {
			meta[k] = v
		}
		c.points[p.ID] = Point{ID: p.ID, Vec: vec, Meta: meta}
	}
	return nil
}

// Search returns up to k points ordered by descending cosine similarity.
func (s *MemoryStore) Search(_ context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if filter.FileIDs != nil && len(filter.FileIDs) == 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q does not exist", collection)
	}
	if len(query) != c.dimension {
		return nil, fmt.Errorf("query has size %d, expected %d", len(query), c.dimension)
	}

	var allowed map[string]struct{}
	if filter.FileIDs != nil {
		allowed = make(map[string]struct{}, len(filter.FileIDs))
		for _, id := range filter.FileIDs {
			allowed[id] = struct{}{}
		}
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		if allowed != nil {
			fileID, _ := p.Meta[MetaFileID].(string)
			if _, ok := allowed[fileID]; !ok {
				continue
			}
		}
		meta := make(map[string]any, len(p.Meta))
		for k, v := range p.Meta {
			meta[k] = v
		}
		results = append(results, SearchResult{PointID: p.ID, Score: cosine(query, p.Vec), Meta: meta})
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by their IDs. Unknown IDs are ignored.
func (s *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q does not exist", collection)
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

// Count returns the number of points in the collection.
func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %q does not exist", collection)
	}
	return len(c.points), nil
}

// sortResults orders by score descending, then point ID.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
