// Package index builds the retrieval artifact for a chunked document:
// its chunk vectors, ranking stats, and token counts, bundled for the
// artifact cache. Builds are deduplicated so concurrent queries against
// an uncached document trigger one embedding pass.
package index

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/smartctx/sdch/internal/cache"
	"github.com/smartctx/sdch/internal/embed"
	sdcherrors "github.com/smartctx/sdch/internal/errors"
	"github.com/smartctx/sdch/internal/rank"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/vector"
)

// CorpusEmbedder produces one vector per text and reports the embedder
// that produced them.
type CorpusEmbedder interface {
	EmbedCorpus(ctx context.Context, texts []string) ([][]float32, embed.Embedder, error)
}

// ChunkSource provides persisted chunks for a document.
type ChunkSource interface {
	GetChunks(ctx context.Context, docID string) ([]store.DocumentChunk, error)
	MarkChunksEmbedded(ctx context.Context, docID string, cached bool) error
}

// Builder assembles and caches retrieval artifacts.
type Builder struct {
	embedder  CorpusEmbedder
	artifacts *cache.ArtifactCache
	chunks    ChunkSource
	group     singleflight.Group
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder over the given embedder, artifact cache,
// and chunk source.
func NewBuilder(embedder CorpusEmbedder, artifacts *cache.ArtifactCache, chunks ChunkSource, opts ...Option) *Builder {
	b := &Builder{
		embedder:  embedder,
		artifacts: artifacts,
		chunks:    chunks,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Artifact returns the retrieval artifact for a document, building and
// caching it when absent. Concurrent calls for the same document share
// one build.
func (b *Builder) Artifact(ctx context.Context, docID string) (*vector.Artifact, error) {
	if art, ok := b.artifacts.Get(ctx, docID); ok {
		return art, nil
	}

	v, err, _ := b.group.Do(docID, func() (any, error) {
		// The build is shared by every waiter on this flight, so it
		// must not die with the initiating caller. Detach from the
		// caller's cancellation but keep its deadline as the bound on
		// the work.
		buildCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithDeadline(buildCtx, deadline)
			defer cancel()
		}

		// A build that finished while this call waited has populated
		// the cache already.
		if art, ok := b.artifacts.Get(buildCtx, docID); ok {
			return art, nil
		}
		return b.build(buildCtx, docID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*vector.Artifact), nil
}

func (b *Builder) build(ctx context.Context, docID string) (*vector.Artifact, error) {
	chunks, err := b.chunks.GetChunks(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, sdcherrors.DocumentNotReady(docID, "unchunked")
	}

	texts := make([]string, len(chunks))
	tokens := make([]int, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		tokens[i] = c.TokenCount
	}

	start := time.Now()
	vecs, embedder, err := b.embedder.EmbedCorpus(ctx, texts)
	if err != nil {
		return nil, sdcherrors.EmbedderUnavailable(err)
	}

	ix, err := vector.New(embedder.Dimensions())
	if err != nil {
		return nil, sdcherrors.Internal(err)
	}
	if err := ix.AddBatch(vecs); err != nil {
		return nil, sdcherrors.Internal(err)
	}

	art := &vector.Artifact{
		EmbedderID:  embedder.ModelName(),
		Index:       ix,
		Stats:       rank.BuildStats(texts),
		ChunkTokens: tokens,
	}
	b.artifacts.Put(ctx, docID, art)
	if err := b.chunks.MarkChunksEmbedded(ctx, docID, true); err != nil {
		b.logger.Warn("chunk_flag_update_failed", "doc_id", docID, "error", err)
	}

	b.logger.Info("artifact_built",
		"doc_id", docID,
		"chunks", len(chunks),
		"embedder", embedder.ModelName(),
		"duration_ms", time.Since(start).Milliseconds())
	return art, nil
}

// Invalidate drops the cached artifact for a document. The next
// Artifact call rebuilds from stored chunks.
func (b *Builder) Invalidate(ctx context.Context, docID string) {
	b.artifacts.Invalidate(ctx, docID)
	b.group.Forget(docID)
}
