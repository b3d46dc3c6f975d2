// Package assemble builds the query-time context for a document. The
// document's tier selects the strategy: direct injection, boilerplate
// trimming, BM25 chunk ranking, or embedding retrieval. Whatever the
// strategy, the assembled text never exceeds the document token budget.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/smartctx/sdch/internal/budget"
	"github.com/smartctx/sdch/internal/chunk"
	"github.com/smartctx/sdch/internal/embed"
	sdcherrors "github.com/smartctx/sdch/internal/errors"
	"github.com/smartctx/sdch/internal/rank"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/tier"
	"github.com/smartctx/sdch/internal/trim"
	"github.com/smartctx/sdch/internal/vector"
)

// Separator joins selected chunks in reading order.
const Separator = "\n\n---\n\n"

const (
	// DefaultTopK is the chunk selection limit when the caller does not
	// pick one.
	DefaultTopK = 10

	// DefaultTimeout bounds one Assemble call end to end.
	DefaultTimeout = 120 * time.Second

	// candidateFactor widens the vector search so the budget fill has
	// chunks to skip past when the best-scoring ones do not fit.
	candidateFactor = 3
)

// TextSource provides the stored canonical text of a document.
type TextSource interface {
	CanonicalText(ctx context.Context, doc *store.Document) (string, error)
}

// ArtifactSource provides the retrieval artifact for a document,
// building it when absent.
type ArtifactSource interface {
	Artifact(ctx context.Context, docID string) (*vector.Artifact, error)
}

// EmbedderSource resolves the embedder recorded in an artifact so query
// vectors match the artifact's dimension.
type EmbedderSource interface {
	QueryEmbedder(id string) (embed.Embedder, bool)
}

// Tokenizer provides the token operations assembly depends on.
type Tokenizer interface {
	Count(text string) int
	Slice(text string, maxTokens int) string
}

// Splitter chunks trimmed tier-2 text that is still over budget.
type Splitter interface {
	Split(ctx context.Context, text string) ([]chunk.Chunk, error)
}

// ChunkRef identifies one selected chunk in a result. Section is the
// nearest heading or page marker above the chunk, when one exists.
type ChunkRef struct {
	Index   int     `json:"index"`
	Tokens  int     `json:"tokens"`
	Score   float64 `json:"score"`
	Section string  `json:"section,omitempty"`
}

// Result is an assembled context with its selection trace.
type Result struct {
	DocID            string        `json:"doc_id"`
	Query            string        `json:"query"`
	Tier             int           `json:"tier"`
	AssembledContext string        `json:"assembled_context"`
	TokenCount       int           `json:"token_count"`
	ChunksUsed       []ChunkRef    `json:"chunks_used"`
	StrategyNotes    string        `json:"strategy_notes"`
	Budget           budget.Report `json:"budget"`
}

// Config carries the dependencies for an Assembler. Store, Text,
// Tokenizer, Splitter, Trimmer, and Allocator are required; Artifacts
// and Embedders are required to serve retrieval-tier documents.
type Config struct {
	Store     *store.Store
	Text      TextSource
	Artifacts ArtifactSource
	Embedders EmbedderSource
	Tokenizer Tokenizer
	Splitter  Splitter
	Trimmer   *trim.Trimmer
	Allocator *budget.Allocator

	// TopK caps chunk selection. Zero means DefaultTopK.
	TopK int
	// Timeout bounds one Assemble call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Params tunes BM25 ranking. The zero value selects the defaults.
	Params rank.Params

	Logger *slog.Logger
}

// Assembler dispatches queries to the tier strategies.
type Assembler struct {
	store     *store.Store
	text      TextSource
	artifacts ArtifactSource
	embedders EmbedderSource
	tokenizer Tokenizer
	splitter  Splitter
	trimmer   *trim.Trimmer
	allocator *budget.Allocator
	topK      int
	timeout   time.Duration
	params    rank.Params
	sepTokens int
	logger    *slog.Logger
}

// New creates an Assembler from cfg.
func New(cfg Config) (*Assembler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Text == nil {
		return nil, fmt.Errorf("text source is required")
	}
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if cfg.Splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if cfg.Trimmer == nil {
		return nil, fmt.Errorf("trimmer is required")
	}
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("budget allocator is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:     cfg.Store,
		text:      cfg.Text,
		artifacts: cfg.Artifacts,
		embedders: cfg.Embedders,
		tokenizer: cfg.Tokenizer,
		splitter:  cfg.Splitter,
		trimmer:   cfg.Trimmer,
		allocator: cfg.Allocator,
		topK:      topK,
		timeout:   timeout,
		params:    cfg.Params,
		sepTokens: cfg.Tokenizer.Count(Separator),
		logger:    logger,
	}, nil
}

// Assemble builds the context for one query against one document.
// topK <= 0 selects the configured default.
func (a *Assembler) Assemble(ctx context.Context, docID, query string, topK int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, sdcherrors.QueryEmpty()
	}
	if topK <= 0 {
		topK = a.topK
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	doc, err := a.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != store.StatusReady {
		return nil, sdcherrors.DocumentNotReady(docID, doc.Status)
	}

	start := time.Now()
	var res *Result
	switch tier.Tier(doc.Tier) {
	case tier.TierDirect:
		res, err = a.assembleDirect(ctx, doc)
	case tier.TierTrim:
		res, err = a.assembleTrimmed(ctx, doc, query, topK)
	case tier.TierChunk:
		res, err = a.assembleRanked(ctx, doc, query, topK)
	case tier.TierRetrieve:
		res, err = a.assembleRetrieved(ctx, doc, query, topK)
	default:
		err = sdcherrors.Internal(fmt.Errorf("document %s has invalid tier %d", doc.ID, doc.Tier))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, sdcherrors.Cancelled(ctxErr)
		}
		return nil, err
	}

	res.DocID = doc.ID
	res.Query = query
	res.Tier = doc.Tier
	a.logger.Info("context_assembled",
		"doc_id", doc.ID,
		"tier", doc.Tier,
		"tokens", res.TokenCount,
		"chunks_used", len(res.ChunksUsed),
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// assembleDirect injects the full canonical text. The safety slice only
// engages when the document outgrows the window partition, which a
// correctly classified tier-1 document never does.
func (a *Assembler) assembleDirect(ctx context.Context, doc *store.Document) (*Result, error) {
	text, err := a.text.CanonicalText(ctx, doc)
	if err != nil {
		return nil, err
	}

	plan := a.allocator.Plan(doc.TokenCount)
	tokens := doc.TokenCount
	if plan.Truncated {
		text = a.tokenizer.Slice(text, plan.Granted)
		tokens = a.tokenizer.Count(text)
	}
	return &Result{
		AssembledContext: text,
		TokenCount:       tokens,
		ChunksUsed:       []ChunkRef{},
		StrategyNotes:    "Full document injected directly.",
		Budget:           a.allocator.Report(plan),
	}, nil
}

// assembleTrimmed removes boilerplate and injects the remainder. Text
// still over the document budget goes through chunk selection instead.
func (a *Assembler) assembleTrimmed(ctx context.Context, doc *store.Document, query string, topK int) (*Result, error) {
	text, err := a.text.CanonicalText(ctx, doc)
	if err != nil {
		return nil, err
	}
	trimmed, stats := a.trimmer.TrimWithStats(text, a.tokenizer)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if stats.TrimmedTokens <= a.allocator.Available() {
		plan := a.allocator.Plan(stats.TrimmedTokens)
		return &Result{
			AssembledContext: trimmed,
			TokenCount:       stats.TrimmedTokens,
			ChunksUsed:       []ChunkRef{},
			StrategyNotes: fmt.Sprintf(
				"Boilerplate trimmed. Tokens reduced from %d to %d (saved %d tokens).",
				stats.OriginalTokens, stats.TrimmedTokens, stats.Saved()),
			Budget: a.allocator.Report(plan),
		}, nil
	}

	// Tier-2 documents carry no persisted chunks, so split on the fly.
	chunks, err := a.splitter.Split(ctx, trimmed)
	if err != nil {
		return nil, sdcherrors.Internal(err)
	}
	texts := make([]string, len(chunks))
	tokens := make([]int, len(chunks))
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		tokens[i] = c.TokenCount
		sections[i] = c.Section
	}

	res := a.selectLexical(texts, tokens, sections, query, topK)
	res.StrategyNotes = fmt.Sprintf(
		"Boilerplate removal left %d tokens, above the %d token budget. %s",
		stats.TrimmedTokens, a.allocator.Available(), res.StrategyNotes)
	return res, nil
}

// assembleRanked selects stored chunks by BM25 relevance.
func (a *Assembler) assembleRanked(ctx context.Context, doc *store.Document, query string, topK int) (*Result, error) {
	texts, tokens, sections, err := a.storedChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return a.selectLexical(texts, tokens, sections, query, topK), nil
}

// assembleRetrieved selects stored chunks by embedding similarity,
// degrading to BM25 whenever vectors cannot be produced.
func (a *Assembler) assembleRetrieved(ctx context.Context, doc *store.Document, query string, topK int) (*Result, error) {
	texts, tokens, sections, err := a.storedChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if a.artifacts == nil || a.embedders == nil {
		res := a.selectLexical(texts, tokens, sections, query, topK)
		res.StrategyNotes = "Vector retrieval is not configured, fell back to BM25 ranking. " + res.StrategyNotes
		return res, nil
	}

	art, err := a.artifacts.Artifact(ctx, doc.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		a.logger.Warn("artifact_unavailable", "doc_id", doc.ID, "error", err)
		res := a.selectLexical(texts, tokens, sections, query, topK)
		res.StrategyNotes = "Embeddings unavailable, fell back to BM25 ranking. " + res.StrategyNotes
		return res, nil
	}

	// Query vectors must come from the embedder that built the matrix;
	// anything else is a dimension mismatch waiting to happen.
	embedder, ok := a.embedders.QueryEmbedder(art.EmbedderID)
	if !ok {
		a.logger.Warn("artifact_embedder_unknown", "doc_id", doc.ID, "embedder", art.EmbedderID)
		return a.lexicalFromArtifact(art, texts, sections, query, topK,
			fmt.Sprintf("Embedder %q from the index is not available, fell back to BM25 ranking.", art.EmbedderID)), nil
	}

	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		a.logger.Warn("query_embed_failed", "doc_id", doc.ID, "embedder", art.EmbedderID, "error", err)
		return a.lexicalFromArtifact(art, texts, sections, query, topK,
			"Query embedding failed, fell back to BM25 ranking."), nil
	}

	hits, err := art.Index.Search(qv, candidateFactor*topK)
	if err != nil {
		a.logger.Warn("vector_search_failed", "doc_id", doc.ID, "error", err)
		return a.lexicalFromArtifact(art, texts, sections, query, topK,
			"Vector search failed, fell back to BM25 ranking."), nil
	}

	ranked := make([]rank.ScoredChunk, len(hits))
	for i, h := range hits {
		ranked[i] = rank.ScoredChunk{Index: h.Index, Score: float64(h.Score)}
	}
	used := annotate(a.greedyFill(ranked, art.ChunkTokens, topK), sections)
	assembled, count := a.join(used, texts)

	return &Result{
		AssembledContext: assembled,
		TokenCount:       count,
		ChunksUsed:       used,
		StrategyNotes: fmt.Sprintf(
			"Vector similarity search retrieved %d chunks. %d fit within token budget (%d tokens).",
			len(hits), len(used), count),
		Budget: a.allocator.Report(a.allocator.Plan(count)),
	}, nil
}

// storedChunks loads a document's persisted chunks as parallel text,
// token, and section slices indexed by chunk ordinal.
func (a *Assembler) storedChunks(ctx context.Context, docID string) ([]string, []int, []string, error) {
	chunks, err := a.store.GetChunks(ctx, docID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, nil, sdcherrors.DocumentNotReady(docID, "unchunked")
	}
	texts := make([]string, len(chunks))
	tokens := make([]int, len(chunks))
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		tokens[i] = c.TokenCount
		sections[i] = c.Section
	}
	return texts, tokens, sections, nil
}

// selectLexical runs BM25 over the chunk texts and budget-fills the
// ranking.
func (a *Assembler) selectLexical(texts []string, tokens []int, sections []string, query string, topK int) *Result {
	scorer := rank.NewScorer(rank.BuildStats(texts), a.params)
	used := annotate(a.greedyFill(scorer.Rank(query), tokens, topK), sections)
	assembled, count := a.join(used, texts)

	return &Result{
		AssembledContext: assembled,
		TokenCount:       count,
		ChunksUsed:       used,
		StrategyNotes: fmt.Sprintf(
			"Document split into %d chunks. Top %d selected via BM25 ranking (%d tokens).",
			len(texts), len(used), count),
		Budget: a.allocator.Report(a.allocator.Plan(count)),
	}
}

// lexicalFromArtifact ranks with the BM25 statistics persisted in the
// artifact, avoiding a re-tokenization of the corpus.
func (a *Assembler) lexicalFromArtifact(art *vector.Artifact, texts []string, sections []string, query string, topK int, note string) *Result {
	scorer := rank.NewScorer(art.Stats, a.params)
	used := annotate(a.greedyFill(scorer.Rank(query), art.ChunkTokens, topK), sections)
	assembled, count := a.join(used, texts)

	return &Result{
		AssembledContext: assembled,
		TokenCount:       count,
		ChunksUsed:       used,
		StrategyNotes: fmt.Sprintf(
			"%s Top %d of %d chunks selected (%d tokens).",
			note, len(used), len(texts), count),
		Budget: a.allocator.Report(a.allocator.Plan(count)),
	}
}

// greedyFill walks ranked chunks in score order and accepts every chunk
// that still fits the document budget, separators included, until topK
// chunks are accepted. The accepted set comes back in reading order.
func (a *Assembler) greedyFill(ranked []rank.ScoredChunk, tokens []int, topK int) []ChunkRef {
	available := a.allocator.Available()
	total := 0
	used := make([]ChunkRef, 0, topK)

	for _, sc := range ranked {
		if len(used) >= topK {
			break
		}
		if sc.Index < 0 || sc.Index >= len(tokens) {
			continue
		}
		cost := tokens[sc.Index]
		if len(used) > 0 {
			cost += a.sepTokens
		}
		if total+cost > available {
			continue
		}
		total += cost
		used = append(used, ChunkRef{Index: sc.Index, Tokens: tokens[sc.Index], Score: sc.Score})
	}

	sort.Slice(used, func(i, j int) bool { return used[i].Index < used[j].Index })
	return used
}

// annotate copies the section hints onto the selected chunk refs.
func annotate(used []ChunkRef, sections []string) []ChunkRef {
	for i, u := range used {
		if u.Index < len(sections) {
			used[i].Section = sections[u.Index]
		}
	}
	return used
}

// join concatenates the selected chunks in reading order and returns the
// assembled text with its exact token count.
func (a *Assembler) join(used []ChunkRef, texts []string) (string, int) {
	if len(used) == 0 {
		return "", 0
	}
	parts := make([]string, len(used))
	for i, u := range used {
		parts[i] = texts[u.Index]
	}
	assembled := strings.Join(parts, Separator)
	return assembled, a.tokenizer.Count(assembled)
}
