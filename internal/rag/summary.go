package rag

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/llm"
)

// NoResultsSummary is the search summary when nothing matched.
const NoResultsSummary = "No matching results found."

const (
	summaryMaxChunks     = 8
	summaryChunkRunes    = 800
	summaryMaxWords      = 75
	groupSummaryMaxWords = 40
)

var summarySystemPrompt = strings.Join([]string{
	"You are a legal document assistant.",
	"Speak naturally and clearly using plain English.",
	"Use only the provided document context.",
	"Be concise and factual. Cite files as [file name].",
}, "\n")

// summarize fills the per-group keyword summaries and returns the overall
// summary of a search. Generation failures fall back to fixed text.
func (e *ragEngine) summarize(ctx context.Context, query string, groups []DocumentGroup) string {
	if len(groups) == 0 {
		return NoResultsSummary
	}
	logger := contextutil.LoggerFromContext(ctx)
	params := llm.ChatParams{MaxTokens: 120, Temperature: e.opts.Chat.Temperature}

	for i := range groups {
		g := &groups[i]
		text, err := e.generator.Complete(ctx, groupSummaryMessages(query, *g), params)
		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			logger.WarnContext(ctx, "failed to summarize search group", "file_name", g.FileName, "error", err)
			g.KeywordSummary = fmt.Sprintf("Relevant content found for '%s' in this document.", query)
			continue
		}
		g.KeywordSummary = text
	}

	allowed := make([]string, 0, len(groups))
	for _, g := range groups {
		allowed = append(allowed, g.FileName)
	}
	params.MaxTokens = 180
	text, err := e.generator.Complete(ctx, searchSummaryMessages(query, groups), params)
	if err != nil || strings.TrimSpace(text) == "" {
		logger.WarnContext(ctx, "failed to summarize search results", "error", err)
		return fmt.Sprintf("Found matches in %d %s: %s.", len(groups), plural(len(groups), "document", "documents"), strings.Join(allowed, ", "))
	}
	clean, _ := sanitizeCitations(strings.TrimSpace(text), allowed)
	return clean
}

func groupSummaryMessages(query string, g DocumentGroup) []llm.Message {
	var b strings.Builder
	for _, s := range g.Snippets {
		b.WriteString(truncateRunes(s.Hit.Chunk.Text, summaryChunkRunes))
		b.WriteString("\n\n")
	}
	user := fmt.Sprintf(
		"File: %s\nKeyword: %s\n\nExcerpts:\n%s\nIn at most %d words, describe what this file says about the keyword.",
		g.FileName, query, b.String(), groupSummaryMaxWords,
	)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}

func searchSummaryMessages(query string, groups []DocumentGroup) []llm.Message {
	var blocks []string
	for _, g := range groups {
		for _, s := range g.Snippets {
			if len(blocks) == summaryMaxChunks {
				break
			}
			blocks = append(blocks, fmt.Sprintf("[%s]\n%s", g.FileName, truncateRunes(s.Hit.Chunk.Text, summaryChunkRunes)))
		}
	}
	user := fmt.Sprintf(
		"Question: %s\n\nContext:\n%s\n\nProvide a short summary in at most %d words.",
		query, strings.Join(blocks, "\n\n"), summaryMaxWords,
	)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
