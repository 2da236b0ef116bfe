package corpus

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a file id is unknown.
	ErrNotFound = errors.New("file not found")
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Chunk is an indexed slice of a document.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a chunk returned from a vector query.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// Filter restricts queries. A nil slice means no restriction on that field;
// a non-nil empty slice matches nothing. Both fields must match when set.
type Filter struct {
	FileIDs   []string
	FileNames []string
}

func (f Filter) matchesNothing() bool {
	return (f.FileIDs != nil && len(f.FileIDs) == 0) || (f.FileNames != nil && len(f.FileNames) == 0)
}

// Document is the metadata of one ingested file.
type Document struct {
	FileID      string    `json:"file_id"`
	FileName    string    `json:"file_name"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
