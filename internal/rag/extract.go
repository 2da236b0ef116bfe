package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/corpus"
	"docrag/internal/llm"
)

// extractTextRunes caps the document text sent for term extraction.
const extractTextRunes = 8000

// DefaultExtractFields are the contract terms extracted when none are requested.
var DefaultExtractFields = []string{
	"parties", "counterparty", "effective_date", "expiration_date",
	"renewal_terms", "termination_clause", "payment_terms",
	"governing_law", "confidentiality", "liability_cap", "indemnification",
}

var extractSystemPrompt = strings.Join([]string{
	"You are a legal document assistant.",
	"Extract contract terms and return ONLY a valid JSON array.",
	"No markdown, no code blocks, no explanations. Start with [ and end with ].",
	`Each object must have exactly these fields: {"field": "term_name", "value": "extracted_value", "confidence": 0.9, "snippet": "brief quote", "location": "section"}`,
	"Keep snippets under 80 characters.",
}, "\n")

// DocumentSource reads stored documents and their chunks.
type DocumentSource interface {
	Document(ctx context.Context, fileID string) (*corpus.Document, error)
	QueryByMetadata(ctx context.Context, filter corpus.Filter) ([]corpus.Chunk, error)
}

// Term is one extracted contract term.
type Term struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"snippet,omitempty"`
	Location   string  `json:"location,omitempty"`
}

// Extraction holds the terms extracted from one stored document.
type Extraction struct {
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	Terms      []Term `json:"terms"`
	TextLength int    `json:"text_length"`
	ChunkCount int    `json:"chunk_count"`
}

// Extractor pulls key contract terms out of a stored document by
// rebuilding its text from chunks and asking the generator.
type Extractor struct {
	docs      DocumentSource
	generator llm.Generator
	params    llm.ChatParams
}

// NewExtractor creates a new Extractor.
func NewExtractor(docs DocumentSource, generator llm.Generator, params llm.ChatParams) *Extractor {
	if params.MaxTokens < 1500 {
		params.MaxTokens = 1500
	}
	return &Extractor{docs: docs, generator: generator, params: params}
}

// Extract returns the terms of the document with fileID. fields defaults
// to DefaultExtractFields. An answer that is not a JSON array yields no terms.
func (x *Extractor) Extract(ctx context.Context, fileID string, fields []string) (*Extraction, error) {
	if isBlank(fileID) {
		return nil, invalidArgument("file_id", "must not be empty")
	}
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := x.docs.Document(ctx, fileID)
	if err != nil {
		return nil, err
	}
	chunks, err := x.docs.QueryByMetadata(ctx, corpus.Filter{FileIDs: []string{doc.FileID}})
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s has no chunks: %w", doc.FileName, corpus.ErrNotFound)
	}
	text := documentText(chunks)

	if len(fields) == 0 {
		fields = DefaultExtractFields
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Extract these terms: %s\n\nContract:\n%s\n\nJSON array:",
			strings.Join(fields, ", "), truncateRunes(text, extractTextRunes),
		)},
	}
	answer, err := x.generator.Complete(ctx, messages, x.params)
	if err != nil {
		logger.ErrorContext(ctx, "term extraction failed", "file_id", doc.FileID, "error", err)
		return nil, fmt.Errorf("failed to extract terms: %w", err)
	}

	terms, err := parseTerms(answer)
	if err != nil {
		logger.WarnContext(ctx, "unparseable term extraction answer", "file_id", doc.FileID, "error", err)
	}
	if terms == nil {
		terms = []Term{}
	}
	logger.InfoContext(ctx, "extracted terms", "file_id", doc.FileID, "terms", len(terms), "text_length", len(text))
	return &Extraction{
		FileID:     doc.FileID,
		FileName:   doc.FileName,
		Terms:      terms,
		TextLength: len(text),
		ChunkCount: len(chunks),
	}, nil
}

// documentText joins chunks in position order. Overlapping chunks repeat
// their shared paragraphs.
func documentText(chunks []corpus.Chunk) string {
	sorted := append([]corpus.Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

// parseTerms decodes a JSON array of terms, tolerating code fences and
// text around the array.
func parseTerms(answer string) ([]Term, error) {
	s := strings.TrimSpace(answer)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	var terms []Term
	if err := json.Unmarshal([]byte(s), &terms); err == nil {
		return terms, nil
	}
	start, end := strings.IndexByte(s, '['), strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in answer")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &terms); err != nil {
		return nil, fmt.Errorf("failed to decode terms: %w", err)
	}
	return terms, nil
}
