package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks docrag/internal/rag Engine,Catalog,Searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/llm"
)

// maxTransitions bounds the query pipeline. The longest path takes five.
const maxTransitions = 8

// Defaults applied by NewEngine to unset options.
const (
	DefaultRetrievalK          = 12
	DefaultTopKGroups          = 5
	DefaultMaxSnippetsPerGroup = 3
	DefaultBudgetTokens        = 3000
)

// Engine answers questions over the stored documents.
type Engine interface {
	// Prepare classifies, retrieves and assembles without generating.
	Prepare(ctx context.Context, req ChatRequest) (*Preparation, error)
	// Ask answers a question.
	Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Stream answers a question, passing answer text to onToken as it is generated.
	Stream(ctx context.Context, req ChatRequest, onToken func(string) error) (*ChatResponse, error)
	// Search returns grouped retrieval results.
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// Catalog lists and resolves the stored files.
type Catalog interface {
	FileNames(ctx context.Context) ([]string, error)
	ResolveFileIDs(ctx context.Context, names []string) ([]string, error)
}

// Searcher retrieves hits for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter []string) ([]Hit, error)
	KeywordSearch(ctx context.Context, query string, k int, filter []string) ([]Hit, error)
}

// EngineOptions configures the query pipeline.
type EngineOptions struct {
	RetrievalK          int
	TopKGroups          int
	MaxSnippetsPerGroup int
	DiversityLambda     float64
	BudgetTokens        int
	Chat                llm.ChatParams
}

type state int

const (
	stateStart state = iota
	stateClassify
	stateInventory
	stateRetrieveFiltered
	stateRetrieveGeneral
	stateGroup
	stateAssemble
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateClassify:
		return "classify"
	case stateInventory:
		return "inventory"
	case stateRetrieveFiltered:
		return "retrieve_filtered"
	case stateRetrieveGeneral:
		return "retrieve_general"
	case stateGroup:
		return "group"
	case stateAssemble:
		return "assemble"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	catalog    Catalog
	searcher   Searcher
	generator  llm.Generator
	classifier *Classifier
	assembler  *Assembler
	opts       EngineOptions
}

// NewEngine creates a new engine.
func NewEngine(
	catalog Catalog,
	searcher Searcher,
	generator llm.Generator,
	classifier *Classifier,
	assembler *Assembler,
	opts EngineOptions,
) Engine {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = DefaultRetrievalK
	}
	if opts.TopKGroups <= 0 {
		opts.TopKGroups = DefaultTopKGroups
	}
	if opts.MaxSnippetsPerGroup <= 0 {
		opts.MaxSnippetsPerGroup = DefaultMaxSnippetsPerGroup
	}
	if opts.BudgetTokens <= 0 {
		opts.BudgetTokens = DefaultBudgetTokens
	}
	return &ragEngine{
		catalog:    catalog,
		searcher:   searcher,
		generator:  generator,
		classifier: classifier,
		assembler:  assembler,
		opts:       opts,
	}
}

func (e *ragEngine) Prepare(ctx context.Context, req ChatRequest) (*Preparation, error) {
	logger := contextutil.LoggerFromContext(ctx)
	prep := &Preparation{}

	st := stateStart
	for steps := 0; st != stateDone; steps++ {
		if steps >= maxTransitions {
			return nil, fmt.Errorf("query pipeline did not finish within %d transitions (stuck in %s)", maxTransitions, st)
		}
		prep.States = append(prep.States, st.String())

		switch st {
		case stateStart:
			if isBlank(req.Query) {
				return nil, invalidArgument("query", "must not be empty")
			}
			known, err := e.catalog.FileNames(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: list files: %w", ErrRetrievalUnavailable, err)
			}
			prep.KnownFiles = known
			st = stateClassify

		case stateClassify:
			prep.Intent = e.classify(req, prep.KnownFiles)
			logger.InfoContext(ctx, "classified query",
				"intent", prep.Intent.Kind,
				"rule", prep.Intent.Rule,
				"files", prep.Intent.FileNames,
			)
			switch prep.Intent.Kind {
			case IntentInventory:
				st = stateInventory
			case IntentTargetedFile:
				st = stateRetrieveFiltered
			default:
				st = stateRetrieveGeneral
			}

		case stateInventory:
			st = stateAssemble

		case stateRetrieveFiltered:
			ids, err := e.catalog.ResolveFileIDs(ctx, prep.Intent.FileNames)
			if err != nil {
				return nil, fmt.Errorf("%w: resolve files: %w", ErrRetrievalUnavailable, err)
			}
			if prep.Hits, prep.Degraded, err = e.retrieve(ctx, req.Query, e.opts.RetrievalK, ids); err != nil {
				return nil, err
			}
			st = stateGroup

		case stateRetrieveGeneral:
			var err error
			if prep.Hits, prep.Degraded, err = e.retrieve(ctx, req.Query, e.opts.RetrievalK, nil); err != nil {
				return nil, err
			}
			st = stateGroup

		case stateGroup:
			groups, err := e.group(req.Query, prep.Hits)
			if err != nil {
				return nil, err
			}
			prep.Groups = groups
			st = stateAssemble

		case stateAssemble:
			prompt, err := e.assembler.Assemble(prep.Intent, prep.Groups, req.History, e.opts.BudgetTokens)
			if err != nil {
				return nil, err
			}
			if prompt.Fallback != nil {
				logger.WarnContext(ctx, "assembled prompt without context", "reason", prompt.Fallback)
			}
			prep.Prompt = prompt
			st = stateDone
		}
	}
	prep.States = append(prep.States, stateDone.String())

	logger.InfoContext(ctx, "prepared prompt",
		"hits", len(prep.Hits),
		"groups", len(prep.Groups),
		"tokens", prep.Prompt.TotalTokens,
		"degraded", prep.Degraded,
	)
	return prep, nil
}

func (e *ragEngine) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	prep, err := e.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := newChatResponse(prep, req.Debug)
	if answer, ok := directAnswer(prep); ok {
		resp.Answer = answer
		return resp, nil
	}

	answer, err := e.generator.Complete(ctx, prep.Prompt.Messages(), e.opts.Chat)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "generation failed", "error", err)
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	finishAnswer(resp, prep, answer)
	return resp, nil
}

func (e *ragEngine) Stream(ctx context.Context, req ChatRequest, onToken func(string) error) (*ChatResponse, error) {
	prep, err := e.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := newChatResponse(prep, req.Debug)
	if answer, ok := directAnswer(prep); ok {
		resp.Answer = answer
		if err := onToken(answer); err != nil {
			return nil, err
		}
		return resp, nil
	}

	var b strings.Builder
	err = e.generator.Stream(ctx, prep.Prompt.Messages(), e.opts.Chat, func(token string) error {
		b.WriteString(token)
		return onToken(token)
	})
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "streaming generation failed", "error", err)
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	finishAnswer(resp, prep, b.String())
	return resp, nil
}

func (e *ragEngine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if isBlank(req.Query) {
		return nil, invalidArgument("query", "must not be empty")
	}
	if req.K < 0 {
		return nil, invalidArgument("k", "must not be negative")
	}
	k := req.K
	if k == 0 {
		k = e.opts.RetrievalK
	}

	var filter []string
	if req.FileNames != nil {
		ids, err := e.catalog.ResolveFileIDs(ctx, req.FileNames)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve files: %w", ErrRetrievalUnavailable, err)
		}
		filter = ids
	}

	hits, degraded, err := e.retrieve(ctx, req.Query, k, filter)
	if err != nil {
		return nil, err
	}
	groups, err := e.group(req.Query, hits)
	if err != nil {
		return nil, err
	}
	resp := &SearchResponse{Groups: groups, Degraded: degraded}
	if req.Summarize {
		resp.Summary = e.summarize(ctx, req.Query, groups)
	}
	return resp, nil
}

func (e *ragEngine) classify(req ChatRequest, known []string) Intent {
	if len(req.FileNames) > 0 {
		return Intent{
			Kind:      IntentTargetedFile,
			Query:     req.Query,
			FileNames: sortedUnique(req.FileNames),
			Rule:      RuleExplicit,
		}
	}
	return e.classifier.Classify(req.Query, known, req.History)
}

// retrieve runs hybrid search and falls back to keyword search when the
// embedding or vector backend is unavailable.
func (e *ragEngine) retrieve(ctx context.Context, query string, k int, filter []string) ([]Hit, bool, error) {
	hits, err := e.searcher.Search(ctx, query, k, filter)
	if err == nil {
		return hits, false, nil
	}
	if !errors.Is(err, ErrRetrievalUnavailable) {
		return nil, false, err
	}

	logger := contextutil.LoggerFromContext(ctx)
	logger.WarnContext(ctx, "hybrid search unavailable, falling back to keyword search", "error", err)
	hits, kerr := e.searcher.KeywordSearch(ctx, query, k, filter)
	if kerr != nil {
		logger.ErrorContext(ctx, "keyword search failed", "error", kerr)
		return nil, false, err
	}
	return hits, true, nil
}

func (e *ragEngine) group(query string, hits []Hit) ([]DocumentGroup, error) {
	return Group(hits, e.opts.TopKGroups, e.opts.MaxSnippetsPerGroup, GroupOptions{
		Query:           query,
		DiversityLambda: e.opts.DiversityLambda,
	})
}

// directAnswer returns the answer for prompts that need no generation.
func directAnswer(prep *Preparation) (string, bool) {
	switch {
	case prep.Intent.Kind == IntentInventory:
		return prep.Prompt.Listing, true
	case prep.Prompt.NotFound:
		return notFoundWarning(prep.Intent.FileNames) + "\n\n" + inventoryListing(prep.KnownFiles), true
	default:
		return "", false
	}
}

func newChatResponse(prep *Preparation, debug bool) *ChatResponse {
	resp := &ChatResponse{
		Intent:    prep.Intent,
		Sources:   buildSources(prep),
		NotFound:  prep.Prompt.NotFound,
		NoContext: prep.Prompt.NoContext,
		Degraded:  prep.Degraded,
		Warnings:  prep.Prompt.Warnings,
	}
	if debug {
		resp.Debug = &DebugInfo{
			States:       prep.States,
			Hits:         prep.Hits,
			Groups:       prep.Groups,
			Blocks:       prep.Prompt.Blocks,
			PromptTokens: prep.Prompt.TotalTokens,
		}
	}
	return resp
}

// buildSources lists the snippets that made it into the prompt, by group.
func buildSources(prep *Preparation) []Source {
	included := make(map[string]struct{})
	for _, b := range prep.Prompt.Blocks {
		if b.Kind == BlockContext {
			included[b.ChunkID] = struct{}{}
		}
	}
	sources := make([]Source, 0)
	for _, g := range prep.Groups {
		src := Source{FileID: g.FileID, FileName: g.FileName, DocScore: g.DocScore}
		for _, s := range g.Snippets {
			if _, ok := included[s.Hit.Chunk.ChunkID]; !ok {
				continue
			}
			src.Snippets = append(src.Snippets, SourceSnippet{
				ChunkID:    s.Hit.Chunk.ChunkID,
				Position:   s.Hit.Chunk.Position,
				Score:      s.Hit.Score,
				Excerpt:    s.Excerpt,
				ClauseType: s.ClauseType,
			})
		}
		if len(src.Snippets) > 0 {
			sources = append(sources, src)
		}
	}
	return sources
}

func finishAnswer(resp *ChatResponse, prep *Preparation, answer string) {
	clean, cited := sanitizeCitations(strings.TrimSpace(answer), prep.Prompt.ContextFiles())
	resp.Answer = clean
	citedSet := make(map[string]struct{}, len(cited))
	for _, c := range cited {
		citedSet[c] = struct{}{}
	}
	for i := range resp.Sources {
		_, resp.Sources[i].Cited = citedSet[resp.Sources[i].FileName]
	}
}
