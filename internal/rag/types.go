package rag

import (
	"strings"

	"docrag/internal/corpus"
	"docrag/internal/llm"
)

// Hit is a chunk returned by retrieval together with its scores.
type Hit struct {
	Chunk corpus.Chunk `json:"chunk"`
	// Score is the blended ranking score: Similarity + KeywordBoost.
	Score        float64 `json:"score"`
	Similarity   float64 `json:"similarity"`
	KeywordBoost float64 `json:"keyword_boost"`
	// Boosted reports whether any keyword signal contributed.
	Boosted bool `json:"boosted"`
	// Relaxed reports that the hit came from the fallback pass without keyword requirement.
	Relaxed bool `json:"relaxed"`
	// VectorRank is the 1-based rank by similarity alone.
	VectorRank int `json:"vector_rank"`
	// Rank is the 1-based rank in the returned sequence.
	Rank int `json:"rank"`
}

// Snippet is a hit selected to represent its document.
type Snippet struct {
	Hit Hit `json:"hit"`
	// Excerpt is a short display passage with query terms in **bold**.
	Excerpt    string `json:"excerpt"`
	ClauseType string `json:"clause_type,omitempty"`
}

// DocumentGroup aggregates the hits of one file.
type DocumentGroup struct {
	FileID   string    `json:"file_id"`
	FileName string    `json:"file_name"`
	DocScore float64   `json:"doc_score"`
	MaxScore float64   `json:"max_score"`
	HitCount int       `json:"hit_count"`
	Snippets []Snippet `json:"snippets"`
	// KeywordSummary describes what the file says about the query. Only
	// set by summarizing searches.
	KeywordSummary string `json:"keyword_summary,omitempty"`
}

// Turn is one message of caller supplied conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IntentKind classifies what a query asks for.
type IntentKind string

const (
	IntentGeneral      IntentKind = "general"
	IntentInventory    IntentKind = "inventory"
	IntentTargetedFile IntentKind = "targeted_file"
)

// Intent is the result of classifying a query.
type Intent struct {
	Kind  IntentKind `json:"kind"`
	Query string     `json:"query"`
	// FileNames holds the matched names for TargetedFile and the known
	// names for Inventory.
	FileNames []string `json:"file_names,omitempty"`
	// Rule names the rule that produced the intent.
	Rule string `json:"rule"`
	// Ambiguous is set when one name-like reference matched several files.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// Unresolved lists name-like references that matched no known file.
	Unresolved []string `json:"unresolved,omitempty"`
}

// BlockKind tags the purpose of a prompt block.
type BlockKind string

const (
	BlockSystem  BlockKind = "system"
	BlockHistory BlockKind = "history"
	BlockContext BlockKind = "context"
	BlockListing BlockKind = "listing"
	BlockNotice  BlockKind = "notice"
	BlockQuery   BlockKind = "query"
)

// Block is one role-tagged piece of an assembled prompt.
type Block struct {
	Role     string    `json:"role"`
	Kind     BlockKind `json:"kind"`
	Text     string    `json:"text"`
	FileID   string    `json:"file_id,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	ChunkID  string    `json:"chunk_id,omitempty"`
	Tokens   int       `json:"tokens"`
}

// Prompt is an ordered, token-counted prompt ready for the generator.
type Prompt struct {
	Intent      Intent  `json:"intent"`
	Blocks      []Block `json:"blocks"`
	TotalTokens int     `json:"total_tokens"`
	// Listing is the literal file listing for inventory prompts.
	Listing string `json:"listing,omitempty"`
	// NotFound is set when a targeted file has no content in memory.
	NotFound bool `json:"not_found,omitempty"`
	// NoContext is set when no supporting material was included.
	NoContext bool     `json:"no_context,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	// Fallback records a non-fatal assembly problem such as ErrBudgetExceeded.
	Fallback error `json:"-"`
}

// ContextFiles returns the distinct file names of the included context blocks in prompt order.
func (p Prompt) ContextFiles() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, b := range p.Blocks {
		if b.Kind != BlockContext {
			continue
		}
		if _, ok := seen[b.FileName]; ok {
			continue
		}
		seen[b.FileName] = struct{}{}
		names = append(names, b.FileName)
	}
	return names
}

// Messages converts the prompt into chat messages. Context and notice blocks
// are merged into the final user message ahead of the query so the block
// order survives providers that require alternating roles.
func (p Prompt) Messages() []llm.Message {
	var (
		messages []llm.Message
		system   []string
		grounded []string
	)
	for _, b := range p.Blocks {
		switch b.Kind {
		case BlockSystem, BlockListing:
			system = append(system, b.Text)
		case BlockHistory:
			messages = append(messages, llm.Message{Role: b.Role, Content: b.Text})
		case BlockContext, BlockNotice:
			grounded = append(grounded, b.Text)
		case BlockQuery:
			content := b.Text
			if len(grounded) > 0 {
				content = "Context:\n\n" + joinBlocks(grounded) + "\n\nQuestion: " + b.Text
			}
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: content})
		}
	}
	if len(system) > 0 {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: joinBlocks(system)}}, messages...)
	}
	return messages
}

func joinBlocks(parts []string) string {
	return strings.Join(parts, "\n\n")
}
