package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	sdcherrors "github.com/smartctx/sdch/internal/errors"
)

// DefaultConcurrency is the number of embedding batches in flight at
// once.
const DefaultConcurrency = 4

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// APIKey enables the OpenAI embedder. Empty means offline mode,
	// where only the static fallback is used.
	APIKey string

	// Model overrides the OpenAI embedding model.
	Model string

	// Dimensions overrides the OpenAI vector width.
	Dimensions int

	// AttemptTimeout bounds a single API call. Zero selects
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// BatchSize is the number of texts per API call. Clamped to
	// MaxBatchSize.
	BatchSize int

	// Concurrency is the number of batches embedded in parallel.
	Concurrency int

	// Retry overrides the backoff policy for API calls. The zero value
	// selects the default policy.
	Retry sdcherrors.RetryConfig

	Logger *slog.Logger
}

// Gateway embeds document corpora, preferring the configured API
// embedder and degrading to the deterministic local fallback when the
// API is unconfigured or keeps failing. The embedder that actually
// produced the vectors is reported back so it can be recorded with
// them.
type Gateway struct {
	primary        Embedder
	fallback       Embedder
	retry          sdcherrors.RetryConfig
	attemptTimeout time.Duration
	batchSize      int
	concurrency    int
	logger         *slog.Logger

	mu         sync.Mutex
	queryCache map[string]*CachedEmbedder
}

// NewGateway creates a Gateway from cfg.
func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		fallback:       NewStaticEmbedder(),
		retry:          cfg.Retry,
		attemptTimeout: cfg.AttemptTimeout,
		batchSize:      cfg.BatchSize,
		concurrency:    cfg.Concurrency,
		logger:         cfg.Logger,
		queryCache:     make(map[string]*CachedEmbedder),
	}
	if cfg.APIKey != "" {
		g.primary = NewOpenAIEmbedder(cfg.APIKey,
			WithModel(cfg.Model),
			WithDimensions(cfg.Dimensions),
		)
	}
	if g.retry.MaxRetries == 0 && g.retry.InitialDelay == 0 {
		g.retry = retryConfig()
	}
	if g.attemptTimeout <= 0 {
		g.attemptTimeout = DefaultAttemptTimeout
	}
	if g.batchSize <= 0 || g.batchSize > MaxBatchSize {
		g.batchSize = MaxBatchSize
	}
	if g.concurrency <= 0 {
		g.concurrency = DefaultConcurrency
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Primary returns the API embedder, or nil in offline mode.
func (g *Gateway) Primary() Embedder {
	return g.primary
}

// Fallback returns the offline embedder.
func (g *Gateway) Fallback() Embedder {
	return g.fallback
}

func (g *Gateway) active() Embedder {
	if g.primary != nil {
		return g.primary
	}
	return g.fallback
}

// EmbedCorpus embeds texts in order, batching and parallelizing the
// work. On persistent primary failure it re-embeds the whole corpus
// with the fallback so all vectors come from one model. The returned
// Embedder is the one that produced the vectors.
func (g *Gateway) EmbedCorpus(ctx context.Context, texts []string) ([][]float32, Embedder, error) {
	if len(texts) == 0 {
		return nil, g.active(), nil
	}

	if g.primary != nil {
		vecs, err := g.embedAll(ctx, g.primary, texts, true)
		if err == nil {
			return vecs, g.primary, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		g.logger.Warn("primary_embedder_failed",
			"embedder", g.primary.ModelName(),
			"fallback", g.fallback.ModelName(),
			"error", err)
	}

	vecs, err := g.embedAll(ctx, g.fallback, texts, false)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback embedding failed: %w", err)
	}
	return vecs, g.fallback, nil
}

// embedAll splits texts into batches and embeds them concurrently,
// preserving input order.
func (g *Gateway) embedAll(ctx context.Context, e Embedder, texts []string, withRetry bool) ([][]float32, error) {
	out := make([][]float32, len(texts))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrency)

	batches := 0
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batches++

		grp.Go(func() error {
			batch := texts[start:end]
			attempt := func() ([][]float32, error) {
				attemptCtx := grpCtx
				cancel := func() {}
				if g.attemptTimeout > 0 {
					attemptCtx, cancel = context.WithTimeout(grpCtx, g.attemptTimeout)
				}
				defer cancel()
				return e.EmbedBatch(attemptCtx, batch)
			}

			var vecs [][]float32
			var err error
			if withRetry {
				vecs, err = sdcherrors.RetryWithResult(grpCtx, g.retry, attempt)
			} else {
				vecs, err = attempt()
			}
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedding batch %d-%d: got %d vectors, want %d", start, end, len(vecs), len(batch))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("corpus_embedded",
		"embedder", e.ModelName(),
		"texts", len(texts),
		"batches", batches)
	return out, nil
}

// ByName returns the gateway embedder whose model name matches id.
func (g *Gateway) ByName(id string) (Embedder, bool) {
	if g.primary != nil && g.primary.ModelName() == id {
		return g.primary, true
	}
	if g.fallback.ModelName() == id {
		return g.fallback, true
	}
	return nil, false
}

// QueryEmbedder returns the embedder recorded under id, wrapped with a
// shared LRU so repeated query texts are embedded once.
func (g *Gateway) QueryEmbedder(id string) (Embedder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cached, ok := g.queryCache[id]; ok {
		return cached, true
	}
	base, ok := g.ByName(id)
	if !ok {
		return nil, false
	}
	cached, err := NewCachedEmbedder(base, DefaultCacheSize)
	if err != nil {
		return base, true
	}
	g.queryCache[id] = cached
	return cached, true
}

// Close closes all embedders held by the gateway.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.queryCache = make(map[string]*CachedEmbedder)
	g.mu.Unlock()

	var firstErr error
	if g.primary != nil {
		if err := g.primary.Close(); err != nil {
			firstErr = err
		}
	}
	if err := g.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
