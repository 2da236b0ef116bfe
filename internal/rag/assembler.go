package rag

import (
	"fmt"
	"strings"

	"docrag/internal/llm"
)

// DefaultSystemPrompt instructs the generator to answer from the context only.
const DefaultSystemPrompt = `You are a document assistant. Answer using only the provided context excerpts.
After each fact taken from an excerpt, cite its file name in square brackets, for example [contract.pdf].
Only cite file names that appear in the context. If the context does not contain the answer, say so plainly.`

const (
	inventoryInstruction = "The user asked which files are in memory. Reply with the listing below exactly as given."
	emptyInventory       = "No files in memory."
	noContextNotice      = "No supporting material was found in the documents for this question."
)

// AssemblerOptions configures prompt assembly.
type AssemblerOptions struct {
	SystemPrompt    string
	MaxHistoryTurns int
}

// Assembler builds token-bounded prompts.
type Assembler struct {
	opts AssemblerOptions
}

// NewAssembler creates an Assembler, falling back to DefaultSystemPrompt.
func NewAssembler(opts AssemblerOptions) *Assembler {
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxHistoryTurns < 0 {
		opts.MaxHistoryTurns = 0
	}
	return &Assembler{opts: opts}
}

// Assemble builds the prompt for intent within budget tokens. Blocks are
// ordered system, history, context, user query. Context takes priority over
// history; snippets are added one per group per round in group order and
// never split. A prompt is always returned when the arguments are valid.
func (a *Assembler) Assemble(intent Intent, groups []DocumentGroup, history []Turn, budget int) (Prompt, error) {
	if budget <= 0 {
		return Prompt{}, invalidArgument("budget_tokens", "must be greater than 0")
	}
	if isBlank(intent.Query) {
		return Prompt{}, invalidArgument("query", "must not be empty")
	}
	for i, t := range history {
		if t.Role != llm.RoleUser && t.Role != llm.RoleAssistant {
			return Prompt{}, invalidArgument(fmt.Sprintf("history[%d].role", i), "must be user or assistant")
		}
	}

	if intent.Kind == IntentInventory {
		return a.assembleInventory(intent), nil
	}

	p := Prompt{Intent: intent}
	system := []Block{newBlock(llm.RoleSystem, BlockSystem, a.opts.SystemPrompt)}
	query := newBlock(llm.RoleUser, BlockQuery, intent.Query)
	var notices []Block

	switch intent.Kind {
	case IntentTargetedFile:
		system = append(system, newBlock(llm.RoleSystem, BlockSystem,
			"Focus only on these files: "+strings.Join(intent.FileNames, ", ")+"."))
		groups = restrictGroups(groups, intent.FileNames)
		if len(groups) == 0 {
			p.NotFound = true
			p.Warnings = append(p.Warnings, notFoundWarning(intent.FileNames))
		}
		if intent.Ambiguous {
			p.Warnings = append(p.Warnings, "The reference matched several files: "+strings.Join(intent.FileNames, ", ")+".")
		}
	default:
		for _, name := range intent.Unresolved {
			p.Warnings = append(p.Warnings, fmt.Sprintf("No file matching %q is in memory; searched all documents.", name))
		}
	}
	for _, w := range p.Warnings {
		notices = append(notices, newBlock(llm.RoleUser, BlockNotice, w))
	}

	remaining := budget - sumTokens(system) - sumTokens(notices) - query.Tokens
	selected := selectSnippets(groups, remaining)
	remaining -= sumTokens(selected)

	if len(selected) == 0 {
		p.NoContext = true
		if hasSnippets(groups) {
			p.Fallback = ErrBudgetExceeded
		}
		if !p.NotFound {
			notice := newBlock(llm.RoleUser, BlockNotice, noContextNotice)
			notices = append(notices, notice)
			remaining -= notice.Tokens
		}
	}

	turns := a.fitHistory(history, remaining)

	p.Blocks = make([]Block, 0, len(system)+len(turns)+len(selected)+len(notices)+1)
	p.Blocks = append(p.Blocks, system...)
	p.Blocks = append(p.Blocks, turns...)
	p.Blocks = append(p.Blocks, selected...)
	p.Blocks = append(p.Blocks, notices...)
	p.Blocks = append(p.Blocks, query)
	p.TotalTokens = sumTokens(p.Blocks)
	return p, nil
}

func (a *Assembler) assembleInventory(intent Intent) Prompt {
	listing := inventoryListing(intent.FileNames)
	blocks := []Block{
		newBlock(llm.RoleSystem, BlockSystem, inventoryInstruction),
		newBlock(llm.RoleSystem, BlockListing, listing),
		newBlock(llm.RoleUser, BlockQuery, intent.Query),
	}
	return Prompt{
		Intent:      intent,
		Blocks:      blocks,
		TotalTokens: sumTokens(blocks),
		Listing:     listing,
		NoContext:   true,
	}
}

// inventoryListing renders the sorted unique file names.
func inventoryListing(names []string) string {
	names = sortedUnique(names)
	if len(names) == 0 {
		return emptyInventory
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Files in memory (%d):", len(names))
	for _, n := range names {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	return b.String()
}

// selectSnippets takes snippets round-robin across groups: every group's
// first snippet is considered before any group's second. A snippet that does
// not fit is skipped whole.
func selectSnippets(groups []DocumentGroup, budget int) []Block {
	var (
		blocks []Block
		used   int
	)
	for round := 0; ; round++ {
		pending := false
		for _, g := range groups {
			if round >= len(g.Snippets) {
				continue
			}
			pending = true
			s := g.Snippets[round]
			b := contextBlock(g, s)
			if used+b.Tokens > budget {
				continue
			}
			used += b.Tokens
			blocks = append(blocks, b)
		}
		if !pending {
			return blocks
		}
	}
}

func contextBlock(g DocumentGroup, s Snippet) Block {
	b := newBlock(llm.RoleUser, BlockContext, fmt.Sprintf("[%s]\n%s", g.FileName, strings.TrimSpace(s.Hit.Chunk.Text)))
	b.FileID = g.FileID
	b.FileName = g.FileName
	b.ChunkID = s.Hit.Chunk.ChunkID
	return b
}

// fitHistory keeps the most recent turns, at most MaxHistoryTurns, that fit
// in budget, in chronological order.
func (a *Assembler) fitHistory(history []Turn, budget int) []Block {
	if len(history) > a.opts.MaxHistoryTurns {
		history = history[len(history)-a.opts.MaxHistoryTurns:]
	}
	var kept []Block
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		if isBlank(history[i].Content) {
			continue
		}
		b := newBlock(history[i].Role, BlockHistory, history[i].Content)
		if used+b.Tokens > budget {
			break
		}
		used += b.Tokens
		kept = append(kept, b)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// restrictGroups keeps the groups of the named files.
func restrictGroups(groups []DocumentGroup, names []string) []DocumentGroup {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	out := make([]DocumentGroup, 0, len(groups))
	for _, g := range groups {
		if _, ok := allowed[g.FileName]; ok {
			out = append(out, g)
		}
	}
	return out
}

func notFoundWarning(names []string) string {
	return fmt.Sprintf("The requested file %s was not found in memory.", strings.Join(names, ", "))
}

func hasSnippets(groups []DocumentGroup) bool {
	for _, g := range groups {
		if len(g.Snippets) > 0 {
			return true
		}
	}
	return false
}

func newBlock(role string, kind BlockKind, text string) Block {
	return Block{Role: role, Kind: kind, Text: text, Tokens: blockTokens(text)}
}

func sumTokens(blocks []Block) int {
	total := 0
	for _, b := range blocks {
		total += b.Tokens
	}
	return total
}
