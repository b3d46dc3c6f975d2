package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/smartctx/sdch/internal/assemble"
	"github.com/smartctx/sdch/internal/budget"
	"github.com/smartctx/sdch/internal/cache"
	"github.com/smartctx/sdch/internal/chunk"
	"github.com/smartctx/sdch/internal/config"
	"github.com/smartctx/sdch/internal/embed"
	"github.com/smartctx/sdch/internal/httpapi"
	"github.com/smartctx/sdch/internal/index"
	"github.com/smartctx/sdch/internal/ingest"
	"github.com/smartctx/sdch/internal/loader"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/telemetry"
	"github.com/smartctx/sdch/internal/tier"
	"github.com/smartctx/sdch/internal/token"
	"github.com/smartctx/sdch/internal/trim"
)

// app holds the wired service graph shared by serve and ingest.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	tokenizer *token.Tokenizer
	store     *store.Store
	filenames *store.FilenameIndex
	redis     *redis.Client
	artifacts *cache.ArtifactCache
	gateway   *embed.Gateway
	builder   *index.Builder
	allocator *budget.Allocator
	metrics   *telemetry.Metrics
	ingest    *ingest.Service
	assembler *assemble.Assembler
}

// buildApp constructs the full dependency graph from cfg. Components
// are wired bottom-up; any constructor failure aborts with the partial
// graph torn down.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	tokenizer, err := token.New()
	if err != nil {
		return nil, fmt.Errorf("initializing tokenizer: %w", err)
	}
	a.tokenizer = tokenizer

	st, err := store.Open(cfg.Storage.DatabaseURL, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = st

	filenames, err := store.NewFilenameIndex()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating filename index: %w", err)
	}
	a.filenames = filenames

	// Rebuild the in-memory filename index from persisted metadata.
	docs, err := st.ListDocuments(ctx, 0, 0)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	if err := filenames.Load(docs); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading filename index: %w", err)
	}

	if cfg.Storage.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		rdb, err := cache.Connect(ctx, opt.Addr, opt.Password, opt.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
	}

	artifacts, err := cache.New(a.redis,
		cache.WithTTL(cfg.Storage.CacheTTL),
		cache.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating artifact cache: %w", err)
	}
	a.artifacts = artifacts

	a.gateway = embed.NewGateway(embed.GatewayConfig{
		APIKey: cfg.Embedding.OpenAIKey,
		Model:  cfg.Embedding.Model,
		Logger: logger,
	})
	a.builder = index.NewBuilder(a.gateway, artifacts, st, index.WithLogger(logger))

	classifier, err := tier.NewClassifier(
		cfg.Tiers.Tier1Max, cfg.Tiers.Tier2Max, cfg.Tiers.Tier3Max, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	splitter, err := chunk.NewSplitter(tokenizer,
		chunk.WithTarget(cfg.Chunking.TargetTokens),
		chunk.WithOverlap(cfg.Chunking.OverlapTokens),
		chunk.WithMaxTokens(cfg.Chunking.MaxTokens),
		chunk.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}

	trimOpts := []trim.Option{trim.WithLogger(logger)}
	if cfg.Retrieval.TrimPatternsFile != "" {
		patterns, err := trim.LoadPatternFile(cfg.Retrieval.TrimPatternsFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("loading trim patterns: %w", err)
		}
		trimOpts = append(trimOpts, trim.WithPatterns(patterns))
	}
	trimmer := trim.New(trimOpts...)

	a.allocator = budget.NewAllocator(
		cfg.Budget.TotalWindow,
		cfg.Budget.ReservedSystem,
		cfg.Budget.ReservedHistory,
		cfg.Budget.ReservedResponse)
	a.metrics = telemetry.NewMetrics()

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	svc, err := ingest.NewService(ingest.ServiceConfig{
		Store:      st,
		Filenames:  filenames,
		Loaders:    loader.NewRegistry(logger),
		Tokenizer:  tokenizer,
		Classifier: classifier,
		Splitter:   splitter,
		Builder:    a.builder,
		UploadDir:  cfg.Storage.UploadDir,
		MaxBytes:   cfg.Storage.MaxFileSizeBytes(),
		Prewarm:    true,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingest = svc

	assembler, err := assemble.New(assemble.Config{
		Store:     st,
		Text:      svc,
		Artifacts: a.builder,
		Embedders: a.gateway,
		Tokenizer: tokenizer,
		Splitter:  splitter,
		Trimmer:   trimmer,
		Allocator: a.allocator,
		TopK:      cfg.Retrieval.TopK,
		Timeout:   cfg.Retrieval.AssembleTimeout,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.assembler = assembler

	return a, nil
}

// server builds the HTTP surface over the app graph.
func (a *app) server() (*httpapi.Server, error) {
	deps := []httpapi.Dependency{
		{Name: "database", Check: func(ctx context.Context) error {
			_, err := a.store.CountDocuments(ctx)
			return err
		}},
	}
	if a.redis != nil {
		rdb := a.redis
		deps = append(deps, httpapi.Dependency{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	return httpapi.New(httpapi.Config{
		Addr:         a.cfg.Server.Addr,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		Ingest:       a.ingest,
		Store:        a.store,
		Filenames:    a.filenames,
		Assembler:    a.assembler,
		Allocator:    a.allocator,
		Metrics:      a.metrics,
		Dependencies: deps,
		Logger:       a.logger,
	})
}

// Close releases the app's resources in reverse construction order.
// Safe to call on a partially built app.
func (a *app) Close() {
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			a.logger.Warn("closing embedding gateway", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.filenames != nil {
		if err := a.filenames.Close(); err != nil {
			a.logger.Warn("closing filename index", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
	}
}
