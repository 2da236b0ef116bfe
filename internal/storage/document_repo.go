package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks docrag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

const timeLayout = "2006-01-02 15:04:05"

// DocumentStore defines document level operations. Every method that touches
// more than one row runs in a single transaction.
type DocumentStore interface {
	// Replace stores doc and its chunks, replacing any chunks already stored for doc.ID.
	Replace(ctx context.Context, doc *DocumentRecord, chunks []ChunkRecord) error
	// GetByID returns ErrNotFound if the document does not exist.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByName returns the most recently updated document with the given name.
	GetByName(ctx context.Context, name string) (*DocumentRecord, error)
	// List returns all documents ordered by file name.
	List(ctx context.Context) ([]DocumentRecord, error)
	// Rename updates the document and all of its chunks.
	Rename(ctx context.Context, id, newName string) error
	// Delete removes the document and its chunks.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo implements DocumentStore on SQLite.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Replace stores doc and its chunks. ChunkCount is set from len(chunks) and
// every chunk inherits doc.ID and doc.FileName.
func (r *DocumentRepo) Replace(ctx context.Context, doc *DocumentRecord, chunks []ChunkRecord) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(doc.FileName) == "" {
		return fmt.Errorf("document file name is required")
	}
	doc.ChunkCount = len(chunks)
	now := time.Now().UTC().Format(timeLayout)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, file_name, content_hash, size_bytes, chunk_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   file_name = excluded.file_name,
			   content_hash = excluded.content_hash,
			   size_bytes = excluded.size_bytes,
			   chunk_count = excluded.chunk_count,
			   updated_at = excluded.updated_at`,
			doc.ID, doc.FileName, doc.ContentHash, doc.SizeBytes, doc.ChunkCount, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", doc.ID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO chunks (id, file_id, file_name, position, text, token_count) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, c := range chunks {
			if c.ID == "" {
				return fmt.Errorf("chunk id is required")
			}
			if _, err := stmt.ExecContext(ctx, c.ID, doc.ID, doc.FileName, c.Position, c.Text, c.TokenCount); err != nil {
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return nil
	})
}

// GetByID returns ErrNotFound if the document does not exist.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, file_name, content_hash, size_bytes, chunk_count, created_at, updated_at FROM documents WHERE id = ?",
		id,
	)
	return scanDocument(row)
}

// GetByName returns the most recently updated document with the given name.
func (r *DocumentRepo) GetByName(ctx context.Context, name string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, content_hash, size_bytes, chunk_count, created_at, updated_at
		 FROM documents WHERE file_name = ? ORDER BY updated_at DESC, id LIMIT 1`,
		name,
	)
	return scanDocument(row)
}

// List returns all documents ordered by file name.
func (r *DocumentRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, file_name, content_hash, size_bytes, chunk_count, created_at, updated_at FROM documents ORDER BY file_name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// Rename updates the file name on the document and all of its chunks in one transaction.
func (r *DocumentRepo) Rename(ctx context.Context, id, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("new file name is required")
	}
	now := time.Now().UTC().Format(timeLayout)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE documents SET file_name = ?, updated_at = ? WHERE id = ?", newName, now, id)
		if err != nil {
			return fmt.Errorf("failed to rename document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "UPDATE chunks SET file_name = ? WHERE file_id = ?", newName, id); err != nil {
			return fmt.Errorf("failed to rename chunks: %w", err)
		}
		return nil
	})
}

// Delete removes the document and its chunks in one transaction.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var createdAt, updatedAt string
	err := row.Scan(&doc.ID, &doc.FileName, &doc.ContentHash, &doc.SizeBytes, &doc.ChunkCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

// parseTime accepts the layouts the sqlite3 driver hands back for DATETIME columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
