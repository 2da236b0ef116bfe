package ingest

import (
	"regexp"
	"strings"

	"docrag/internal/rag"
)

const (
	DefaultChunkTokens   = 600
	DefaultOverlapTokens = 100
)

// TextChunk is one piece of a document ready for embedding.
type TextChunk struct {
	Position   int
	Text       string
	TokenCount int
}

// Chunker splits text into overlapping chunks along paragraph and sentence
// boundaries.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a Chunker. The overlap is clamped below half the chunk size.
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens > maxTokens/2 {
		overlapTokens = maxTokens / 2
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

type unit struct {
	text string
	// paragraphStart marks the first unit of a paragraph.
	paragraphStart bool
	tokens         int
}

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]["')\]]*\s+`)
)

// Chunk splits text. Positions are consecutive from 0. Blank text yields no chunks.
func (c *Chunker) Chunk(text string) []TextChunk {
	units := c.units(text)
	if len(units) == 0 {
		return nil
	}

	var (
		chunks []TextChunk
		start  int
	)
	for start < len(units) {
		end, tokens := start, 0
		for end < len(units) && (end == start || tokens+units[end].tokens <= c.maxTokens) {
			tokens += units[end].tokens
			end++
		}
		text := join(units[start:end])
		chunks = append(chunks, TextChunk{
			Position:   len(chunks),
			Text:       text,
			TokenCount: rag.EstimateTokens(text),
		})
		if end == len(units) {
			break
		}

		// Step back over trailing units that fit in the overlap, always
		// moving forward by at least one unit.
		next, overlap := end, 0
		for next-1 > start && overlap+units[next-1].tokens <= c.overlapTokens {
			next--
			overlap += units[next].tokens
		}
		start = next
	}
	return chunks
}

// units splits text into paragraphs, paragraphs over the limit into
// sentences and sentences over the limit into word runs.
func (c *Chunker) units(text string) []unit {
	var out []unit
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		first := true
		for _, piece := range c.splitParagraph(p) {
			out = append(out, unit{text: piece, paragraphStart: first, tokens: rag.EstimateTokens(piece)})
			first = false
		}
	}
	return out
}

func (c *Chunker) splitParagraph(p string) []string {
	if rag.EstimateTokens(p) <= c.maxTokens {
		return []string{p}
	}
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(p, -1) {
		out = append(out, c.splitWords(strings.TrimSpace(p[last:loc[1]]))...)
		last = loc[1]
	}
	if rest := strings.TrimSpace(p[last:]); rest != "" {
		out = append(out, c.splitWords(rest)...)
	}
	return out
}

func (c *Chunker) splitWords(s string) []string {
	if rag.EstimateTokens(s) <= c.maxTokens {
		return []string{s}
	}
	var (
		out  []string
		cur  []string
		size int
	)
	for _, w := range strings.Fields(s) {
		wt := rag.EstimateTokens(w + " ")
		if size+wt > c.maxTokens && len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, size = nil, 0
		}
		cur = append(cur, w)
		size += wt
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func join(units []unit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			if u.paragraphStart {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(u.text)
	}
	return b.String()
}
