package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks docrag/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ChunkStore defines read operations over stored chunks.
type ChunkStore interface {
	// GetByIDs returns the chunks that still exist, keyed by ID. Missing IDs are omitted.
	GetByIDs(ctx context.Context, ids []string) (map[string]ChunkRecord, error)
	// ListIDsByFile returns all chunk IDs for a file, ordered by position.
	ListIDsByFile(ctx context.Context, fileID string) ([]string, error)
	// List returns chunks matching filter ordered by file name and position.
	List(ctx context.Context, filter ChunkFilter) ([]ChunkRecord, error)
	// TokenCounts returns the token count of every stored chunk.
	TokenCounts(ctx context.Context) ([]int, error)
}

// ChunkRepo implements ChunkStore on SQLite.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// GetByIDs returns the chunks that still exist, keyed by ID.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) (map[string]ChunkRecord, error) {
	result := make(map[string]ChunkRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := "SELECT id, file_id, file_name, position, text, token_count FROM chunks WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// ListIDsByFile returns all chunk IDs for a file, ordered by position.
// Returns an empty slice if no chunks exist (not an error).
func (r *ChunkRepo) ListIDsByFile(ctx context.Context, fileID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM chunks WHERE file_id = ? ORDER BY position", fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// List returns chunks matching filter ordered by file name and position.
func (r *ChunkRepo) List(ctx context.Context, filter ChunkFilter) ([]ChunkRecord, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.FileIDs) > 0 {
		where = append(where, "file_id IN ("+placeholders(len(filter.FileIDs))+")")
		args = append(args, toArgs(filter.FileIDs)...)
	}
	if len(filter.FileNames) > 0 {
		where = append(where, "file_name IN ("+placeholders(len(filter.FileNames))+")")
		args = append(args, toArgs(filter.FileNames)...)
	}

	query := "SELECT id, file_id, file_name, position, text, token_count FROM chunks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY file_name, file_id, position"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}

// TokenCounts returns the token count of every stored chunk.
func (r *ChunkRepo) TokenCounts(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT token_count FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query token counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan token count: %w", err)
		}
		counts = append(counts, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func scanChunk(row rowScanner) (ChunkRecord, error) {
	var c ChunkRecord
	if err := row.Scan(&c.ID, &c.FileID, &c.FileName, &c.Position, &c.Text, &c.TokenCount); err != nil {
		return ChunkRecord{}, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return c, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
