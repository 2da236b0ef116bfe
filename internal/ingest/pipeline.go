package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"docrag/internal/contextutil"
	"docrag/internal/corpus"
	"docrag/internal/llm"
)

const defaultBatchSize = 32

// Store is the part of the chunk store ingestion writes to.
type Store interface {
	Add(ctx context.Context, doc corpus.Document, chunks []corpus.Chunk) error
	DocumentByName(ctx context.Context, name string) (*corpus.Document, error)
}

// Options tunes the pipeline.
type Options struct {
	ChunkTokens   int
	OverlapTokens int
	// BatchSize is how many chunks are embedded per request.
	BatchSize int
}

// Result describes the outcome of ingesting one file.
type Result struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Chunks   int    `json:"chunks"`
	// Skipped is set when the stored content hash already matched.
	Skipped bool `json:"skipped"`
}

// Summary counts the outcome of a directory ingest.
type Summary struct {
	Files   int `json:"files"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Pipeline extracts, chunks, embeds and stores documents.
type Pipeline struct {
	store     Store
	embedder  llm.Embedder
	extractor *Extractor
	chunker   *Chunker
	batchSize int
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store Store, embedder llm.Embedder, opts Options) *Pipeline {
	if opts.ChunkTokens <= 0 {
		opts.ChunkTokens = DefaultChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Pipeline{
		store:     store,
		embedder:  embedder,
		extractor: NewExtractor(),
		chunker:   NewChunker(opts.ChunkTokens, opts.OverlapTokens),
		batchSize: opts.BatchSize,
	}
}

// Ingest stores content under name. A file whose content hash matches the
// stored one is skipped; a changed file replaces its previous chunks under
// the same file id.
func (p *Pipeline) Ingest(ctx context.Context, name string, content []byte) (*Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidDocument)
	}
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := p.store.DocumentByName(ctx, name)
	if err != nil && !errors.Is(err, corpus.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil && existing.ContentHash == hash {
		logger.DebugContext(ctx, "skipping unchanged file", "file_name", name, "hash", hash)
		return &Result{FileID: existing.FileID, FileName: name, Chunks: existing.ChunkCount, Skipped: true}, nil
	}

	text, err := p.extractor.Extract(name, content)
	if err != nil {
		return nil, err
	}
	pieces := p.chunker.Chunk(text)
	if len(pieces) == 0 {
		logger.WarnContext(ctx, "no text extracted", "file_name", name)
	}

	fileID := uuid.New().String()
	if existing != nil {
		fileID = existing.FileID
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunks := make([]corpus.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = corpus.Chunk{
			ChunkID:    uuid.New().String(),
			FileID:     fileID,
			FileName:   name,
			Text:       piece.Text,
			Position:   piece.Position,
			TokenCount: piece.TokenCount,
			Embedding:  vectors[i],
		}
	}

	doc := corpus.Document{
		FileID:      fileID,
		FileName:    name,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
	}
	if err := p.store.Add(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	logger.InfoContext(ctx, "ingested document", "file_name", name, "file_id", fileID, "chunks", len(chunks))
	return &Result{FileID: fileID, FileName: name, Chunks: len(chunks)}, nil
}

// IngestFile ingests the file at path under its base name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return p.Ingest(ctx, filepath.Base(path), content)
}

// IngestDir ingests every supported file under root. Failures of single
// files are logged and counted without stopping the run.
func (p *Pipeline) IngestDir(ctx context.Context, root string) (*Summary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "starting ingest", "root", root, "total_files", len(files))

	summary := &Summary{Files: len(files)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := p.IngestFile(ctx, f.AbsPath)
		if err != nil {
			summary.Failed++
			logger.ErrorContext(ctx, "failed to ingest file", "rel_path", f.RelPath, "error", err)
			continue
		}
		if res.Skipped {
			summary.Skipped++
		} else {
			summary.Indexed++
		}
	}

	logger.InfoContext(ctx, "ingest completed",
		"total_files", summary.Files,
		"indexed", summary.Indexed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	if summary.Failed > 0 {
		return summary, fmt.Errorf("ingest completed with %d errors", summary.Failed)
	}
	return summary, nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vecs, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
