package storage

import "time"

// DocumentRecord is one ingested file.
type DocumentRecord struct {
	ID          string // UUID, shared by all chunks of the file
	FileName    string
	ContentHash string // SHA256 hex of the raw file content
	SizeBytes   int64
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRecord is one indexed slice of a document. Its ID doubles as the vector point ID.
type ChunkRecord struct {
	ID         string
	FileID     string
	FileName   string
	Position   int
	Text       string
	TokenCount int
}

// ChunkFilter narrows chunk listings. Empty slices mean no restriction.
type ChunkFilter struct {
	FileIDs   []string
	FileNames []string
}
