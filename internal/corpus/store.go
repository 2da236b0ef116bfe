package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"docrag/internal/contextutil"
	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

// ChunkReader is the read side of chunk metadata storage.
type ChunkReader interface {
	storage.ChunkStore
	Stats(ctx context.Context) (*storage.CorpusStats, error)
}

// Store keeps chunk text and metadata in SQLite and embeddings in a vector store.
// Writes take the exclusive lock so a reader never sees one document half
// added, renamed or deleted across the two backends.
type Store struct {
	mu         sync.RWMutex
	docs       storage.DocumentStore
	chunks     ChunkReader
	vectors    vectorstore.VectorStore
	collection string
	dimension  int
}

// NewStore creates a Store. dimension is the fixed embedding size.
func NewStore(docs storage.DocumentStore, chunks ChunkReader, vectors vectorstore.VectorStore, collection string, dimension int) *Store {
	return &Store{
		docs:       docs,
		chunks:     chunks,
		vectors:    vectors,
		collection: collection,
		dimension:  dimension,
	}
}

// Dimension returns the embedding size every chunk must have.
func (s *Store) Dimension() int {
	return s.dimension
}

// Add stores the chunks of doc. Chunks previously stored under doc.FileID are
// replaced. Every chunk must carry an embedding of the store dimension.
func (s *Store) Add(ctx context.Context, doc Document, chunks []Chunk) error {
	logger := contextutil.LoggerFromContext(ctx)

	if doc.FileID == "" {
		return fmt.Errorf("file id is required")
	}
	records := make([]storage.ChunkRecord, 0, len(chunks))
	points := make([]vectorstore.Point, 0, len(chunks))
	newIDs := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.FileID != "" && c.FileID != doc.FileID {
			return fmt.Errorf("chunk %s belongs to file %s, not %s", c.ChunkID, c.FileID, doc.FileID)
		}
		if c.ChunkID == "" {
			return fmt.Errorf("chunk id is required")
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %s: %w: got %d, want %d", c.ChunkID, ErrDimensionMismatch, len(c.Embedding), s.dimension)
		}
		records = append(records, storage.ChunkRecord{
			ID:         c.ChunkID,
			Position:   c.Position,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		})
		points = append(points, vectorstore.Point{
			ID:  c.ChunkID,
			Vec: c.Embedding,
			Meta: map[string]any{
				vectorstore.MetaFileID:   doc.FileID,
				vectorstore.MetaPosition: c.Position,
			},
		})
		newIDs[c.ChunkID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldIDs, err := s.chunks.ListIDsByFile(ctx, doc.FileID)
	if err != nil {
		return fmt.Errorf("failed to list existing chunks: %w", err)
	}

	if err := s.vectors.Upsert(ctx, s.collection, points); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	record := &storage.DocumentRecord{
		ID:          doc.FileID,
		FileName:    doc.FileName,
		ContentHash: doc.ContentHash,
		SizeBytes:   doc.SizeBytes,
	}
	if err := s.docs.Replace(ctx, record, records); err != nil {
		if delErr := s.vectors.Delete(ctx, s.collection, keys(newIDs)); delErr != nil {
			logger.WarnContext(ctx, "failed to roll back embeddings", "file_id", doc.FileID, "error", delErr)
		}
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	var stale []string
	for _, id := range oldIDs {
		if _, ok := newIDs[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := s.vectors.Delete(ctx, s.collection, stale); err != nil {
		// Stale points no longer hydrate, so they never surface in results.
		logger.WarnContext(ctx, "failed to delete stale embeddings", "file_id", doc.FileID, "count", len(stale), "error", err)
	}

	logger.InfoContext(ctx, "stored document", "file_id", doc.FileID, "file_name", doc.FileName, "chunks", len(chunks))
	return nil
}

// QueryByVector returns up to k chunks ordered by descending similarity.
// Points whose chunk rows are gone are dropped.
func (s *Store) QueryByVector(ctx context.Context, vec []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("query vector: %w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimension)
	}
	if filter.matchesNothing() {
		return []ScoredChunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	vf, err := s.resolveFilter(ctx, filter)
	if err != nil {
		return nil, err
	}
	if vf.FileIDs != nil && len(vf.FileIDs) == 0 {
		return []ScoredChunk{}, nil
	}

	results, err := s.vectors.Search(ctx, s.collection, vec, k, vf)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.PointID
	}
	rows, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		row, ok := rows[r.PointID]
		if !ok {
			continue
		}
		out = append(out, ScoredChunk{Chunk: fromRecord(row), Similarity: float64(r.Score)})
	}
	return out, nil
}

// resolveFilter turns file names into file ids for the vector backend.
func (s *Store) resolveFilter(ctx context.Context, filter Filter) (vectorstore.Filter, error) {
	if filter.FileNames == nil {
		return vectorstore.Filter{FileIDs: filter.FileIDs}, nil
	}

	docs, err := s.docs.List(ctx)
	if err != nil {
		return vectorstore.Filter{}, fmt.Errorf("failed to list documents: %w", err)
	}
	names := toSet(filter.FileNames)
	var allowedIDs map[string]struct{}
	if filter.FileIDs != nil {
		allowedIDs = toSet(filter.FileIDs)
	}

	ids := []string{}
	for _, d := range docs {
		if _, ok := names[d.FileName]; !ok {
			continue
		}
		if allowedIDs != nil {
			if _, ok := allowedIDs[d.ID]; !ok {
				continue
			}
		}
		ids = append(ids, d.ID)
	}
	return vectorstore.Filter{FileIDs: ids}, nil
}

// QueryByMetadata returns all chunks matching filter ordered by file name and position.
func (s *Store) QueryByMetadata(ctx context.Context, filter Filter) ([]Chunk, error) {
	if filter.matchesNothing() {
		return []Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.chunks.List(ctx, storage.ChunkFilter{FileIDs: filter.FileIDs, FileNames: filter.FileNames})
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	out := make([]Chunk, len(rows))
	for i, r := range rows {
		out[i] = fromRecord(r)
	}
	return out, nil
}

// Delete removes a file and all of its chunks.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.chunks.ListIDsByFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	if err := s.docs.Delete(ctx, fileID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := s.vectors.Delete(ctx, s.collection, ids); err != nil {
		logger.WarnContext(ctx, "failed to delete embeddings", "file_id", fileID, "count", len(ids), "error", err)
	}

	logger.InfoContext(ctx, "deleted document", "file_id", fileID, "chunks", len(ids))
	return nil
}

// Rename changes the file name of a document and all of its chunks atomically.
func (s *Store) Rename(ctx context.Context, fileID, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.docs.Rename(ctx, fileID, newName); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to rename file: %w", err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "renamed document", "file_id", fileID, "file_name", newName)
	return nil
}

// Documents lists every stored document ordered by file name.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = fromDocumentRecord(r)
	}
	return out, nil
}

// Document returns one document by file id.
func (s *Store) Document(ctx context.Context, fileID string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.docs.GetByID(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc := fromDocumentRecord(*rec)
	return &doc, nil
}

// DocumentByName returns the most recently updated document with the given name.
func (s *Store) DocumentByName(ctx context.Context, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.docs.GetByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc := fromDocumentRecord(*rec)
	return &doc, nil
}

// FileNames returns the sorted, de-duplicated names of all stored documents.
func (s *Store) FileNames(ctx context.Context) ([]string, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(docs))
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.FileName]; ok {
			continue
		}
		seen[d.FileName] = struct{}{}
		names = append(names, d.FileName)
	}
	sort.Strings(names)
	return names, nil
}

// ResolveFileIDs returns the sorted ids of documents whose name is in names.
// The result is never nil, so it can be used directly as a restricting filter.
func (s *Store) ResolveFileIDs(ctx context.Context, names []string) ([]string, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, err
	}
	wanted := toSet(names)
	ids := make(map[string]struct{})
	for _, d := range docs {
		if _, ok := wanted[d.FileName]; ok {
			ids[d.FileID] = struct{}{}
		}
	}
	return keys(ids), nil
}

// Stats summarizes the stored corpus.
func (s *Store) Stats(ctx context.Context) (*storage.CorpusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, err := s.chunks.Stats(ctx)
	if err != nil {
		return nil, err
	}
	points, err := s.vectors.Count(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	stats.VectorPoints = points
	return stats, nil
}

func fromRecord(r storage.ChunkRecord) Chunk {
	return Chunk{
		ChunkID:    r.ID,
		FileID:     r.FileID,
		FileName:   r.FileName,
		Text:       r.Text,
		Position:   r.Position,
		TokenCount: r.TokenCount,
	}
}

func fromDocumentRecord(r storage.DocumentRecord) Document {
	return Document{
		FileID:      r.ID,
		FileName:    r.FileName,
		ContentHash: r.ContentHash,
		SizeBytes:   r.SizeBytes,
		ChunkCount:  r.ChunkCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
