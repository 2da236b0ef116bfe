package rag

// ChatRequest is a question with optional history and file restriction.
type ChatRequest struct {
	Query   string `json:"query"`
	History []Turn `json:"history,omitempty"`
	// FileNames, when set, restricts the answer to these files and skips
	// intent classification.
	FileNames []string `json:"file_names,omitempty"`
	Debug     bool     `json:"debug,omitempty"`
}

// ChatResponse is the answer with the sources that were put in front of the generator.
type ChatResponse struct {
	Answer    string     `json:"answer"`
	Intent    Intent     `json:"intent"`
	Sources   []Source   `json:"sources"`
	NotFound  bool       `json:"not_found,omitempty"`
	NoContext bool       `json:"no_context,omitempty"`
	Degraded  bool       `json:"degraded,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
	Debug     *DebugInfo `json:"debug,omitempty"`
}

// Source is one file included as context.
type Source struct {
	FileID   string          `json:"file_id"`
	FileName string          `json:"file_name"`
	DocScore float64         `json:"doc_score"`
	Cited    bool            `json:"cited"`
	Snippets []SourceSnippet `json:"snippets"`
}

// SourceSnippet is one included passage of a Source.
type SourceSnippet struct {
	ChunkID    string  `json:"chunk_id"`
	Position   int     `json:"position"`
	Score      float64 `json:"score"`
	Excerpt    string  `json:"excerpt"`
	ClauseType string  `json:"clause_type,omitempty"`
}

// SearchRequest asks for grouped retrieval results without generation.
type SearchRequest struct {
	Query string `json:"query"`
	// K is the number of hits to retrieve before grouping. 0 means the default.
	K         int      `json:"k,omitempty"`
	FileNames []string `json:"file_names,omitempty"`
	// Summarize asks for a generated summary overall and per group.
	Summarize bool `json:"summarize,omitempty"`
}

// SearchResponse holds grouped search results.
type SearchResponse struct {
	Groups   []DocumentGroup `json:"groups"`
	Summary  string          `json:"summary,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}

// DebugInfo exposes the intermediate pipeline state.
type DebugInfo struct {
	States       []string        `json:"states"`
	Hits         []Hit           `json:"hits"`
	Groups       []DocumentGroup `json:"groups"`
	Blocks       []Block         `json:"blocks"`
	PromptTokens int             `json:"prompt_tokens"`
}

// Preparation is everything computed for a request before generation.
type Preparation struct {
	Intent     Intent
	KnownFiles []string
	Hits       []Hit
	Groups     []DocumentGroup
	Prompt     Prompt
	// Degraded is set when retrieval fell back to keyword search.
	Degraded bool
	// States lists the pipeline states visited in order.
	States []string
}
