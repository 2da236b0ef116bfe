package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

const testCollection = "chunks"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	vectors := vectorstore.NewMemoryStore()
	require.NoError(t, vectors.EnsureCollection(context.Background(), testCollection, 3))

	return NewStore(storage.NewDocumentRepo(db), storage.NewChunkRepo(db), vectors, testCollection, 3)
}

func addFile(t *testing.T, s *Store, fileID, name string, vecs ...[]float32) {
	t.Helper()
	chunks := make([]Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = Chunk{
			ChunkID:    fmt.Sprintf("%s-%d", fileID, i),
			Text:       fmt.Sprintf("text %d of %s", i, name),
			Position:   i,
			TokenCount: 5,
			Embedding:  v,
		}
	}
	require.NoError(t, s.Add(context.Background(), Document{FileID: fileID, FileName: name, ContentHash: "h"}, chunks))
}

func TestStore_AddAndQueryByVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f1", "NDA.pdf", []float32{1, 0, 0}, []float32{0, 1, 0})
	addFile(t, s, "f2", "MSA.pdf", []float32{0.8, 0.2, 0})

	hits, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "f1-0", hits[0].ChunkID)
	assert.Equal(t, "NDA.pdf", hits[0].FileName)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "f2-0", hits[1].ChunkID)

	filtered, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{FileIDs: []string{"f2"}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "f2", filtered[0].FileID)

	byName, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{FileNames: []string{"NDA.pdf"}})
	require.NoError(t, err)
	for _, h := range byName {
		assert.Equal(t, "f1", h.FileID)
	}
	assert.Len(t, byName, 2)

	none, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{FileIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	unknown, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{FileNames: []string{"ghost.pdf"}})
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestStore_AddValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Add(ctx, Document{FileID: "f1", FileName: "a.txt"}, []Chunk{{ChunkID: "c", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = s.Add(ctx, Document{FileID: "f1", FileName: "a.txt"}, []Chunk{{ChunkID: "c", FileID: "other", Embedding: []float32{1, 0, 0}}})
	assert.Error(t, err)

	err = s.Add(ctx, Document{FileName: "a.txt"}, nil)
	assert.Error(t, err)

	_, err = s.QueryByVector(ctx, []float32{1}, 3, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.QueryByVector(ctx, []float32{1, 0, 0}, 0, Filter{})
	assert.Error(t, err)
}

func TestStore_ReAddReplacesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f1", "a.txt", []float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1})
	addFile(t, s, "f1", "a.txt", []float32{0, 0, 1})

	chunks, err := s.QueryByMetadata(ctx, Filter{FileIDs: []string{"f1"}})
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	hits, err := s.QueryByVector(ctx, []float32{0, 1, 0}, 10, Filter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStore_DeleteCompleteness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f1", "NDA.pdf", []float32{1, 0, 0}, []float32{0.9, 0.1, 0})
	addFile(t, s, "f2", "MSA.pdf", []float32{0, 1, 0})

	require.NoError(t, s.Delete(ctx, "f1"))

	hits, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "f1", h.FileID)
	}

	chunks, err := s.QueryByMetadata(ctx, Filter{})
	require.NoError(t, err)
	for _, c := range chunks {
		assert.NotEqual(t, "f1", c.FileID)
	}

	names, err := s.FileNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSA.pdf"}, names)

	assert.ErrorIs(t, s.Delete(ctx, "f1"), ErrNotFound)
}

func TestStore_Rename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f1", "old.pdf", []float32{1, 0, 0}, []float32{0, 1, 0})

	require.NoError(t, s.Rename(ctx, "f1", "new.pdf"))

	chunks, err := s.QueryByMetadata(ctx, Filter{FileIDs: []string{"f1"}})
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, "new.pdf", c.FileName)
	}
	doc, err := s.DocumentByName(ctx, "new.pdf")
	require.NoError(t, err)
	assert.Equal(t, "f1", doc.FileID)

	assert.ErrorIs(t, s.Rename(ctx, "missing", "x"), ErrNotFound)
	_, err = s.Document(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RenameAtomicUnderConcurrentReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vecs := make([][]float32, 6)
	for i := range vecs {
		vecs[i] = []float32{1, float32(i) / 10, 0}
	}
	addFile(t, s, "f1", "name-0", vecs...)

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan string, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				hits, err := s.QueryByVector(ctx, []float32{1, 0, 0}, 10, Filter{})
				if err != nil {
					errs <- err.Error()
					return
				}
				for _, h := range hits {
					if h.FileName != hits[0].FileName {
						errs <- fmt.Sprintf("mixed names %q and %q", h.FileName, hits[0].FileName)
						return
					}
				}
			}
		}()
	}

	for i := 1; i <= 25; i++ {
		require.NoError(t, s.Rename(ctx, "f1", fmt.Sprintf("name-%d", i)))
	}
	close(done)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

func TestStore_StatsAndDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f2", "b.txt", []float32{1, 0, 0})
	addFile(t, s, "f1", "a.txt", []float32{1, 0, 0}, []float32{0, 1, 0})

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].FileName)
	assert.Equal(t, 2, docs[0].ChunkCount)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.VectorPoints)
}

func TestStore_ResolveFileIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addFile(t, s, "f1", "NDA.pdf", []float32{1, 0, 0})
	addFile(t, s, "f2", "MSA.pdf", []float32{0, 1, 0})

	ids, err := s.ResolveFileIDs(ctx, []string{"MSA.pdf", "ghost.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, ids)

	none, err := s.ResolveFileIDs(ctx, []string{"ghost.pdf"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	names, err := s.FileNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSA.pdf", "NDA.pdf"}, names)
}
