package vectorstore

import "context"

// Payload keys stored with every point.
const (
	MetaFileID   = "file_id"
	MetaPosition = "position"
)

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// Filter restricts a search. A nil FileIDs slice means no restriction;
// a non-nil empty slice matches nothing.
type Filter struct {
	FileIDs []string
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k points ordered by descending cosine similarity.
	// Equal scores are ordered by point ID.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// EnsureCollection creates the collection if needed and validates its vector size.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)
}
