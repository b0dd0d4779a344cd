// Package app is the composition root shared by the API server and lexctl.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdex/internal/config"
	"github.com/kailas-cloud/lexdex/internal/db"
	"github.com/kailas-cloud/lexdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/lexdex/internal/db/redis"
	"github.com/kailas-cloud/lexdex/internal/domain"
	"github.com/kailas-cloud/lexdex/internal/domain/knowledge"
	"github.com/kailas-cloud/lexdex/internal/metrics"
	documentrepo "github.com/kailas-cloud/lexdex/internal/repository/document"
	"github.com/kailas-cloud/lexdex/internal/repository/embcache"
	eventrepo "github.com/kailas-cloud/lexdex/internal/repository/event"
	searchrepo "github.com/kailas-cloud/lexdex/internal/repository/search"
	"github.com/kailas-cloud/lexdex/internal/scheduler"
	chiTransport "github.com/kailas-cloud/lexdex/internal/transport/chi"
	geminiEmb "github.com/kailas-cloud/lexdex/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/lexdex/internal/transport/openai"
	s3Transport "github.com/kailas-cloud/lexdex/internal/transport/s3"
	batchuc "github.com/kailas-cloud/lexdex/internal/usecase/batch"
	benchmarkuc "github.com/kailas-cloud/lexdex/internal/usecase/benchmark"
	"github.com/kailas-cloud/lexdex/internal/usecase/chunking"
	citationuc "github.com/kailas-cloud/lexdex/internal/usecase/citation"
	"github.com/kailas-cloud/lexdex/internal/usecase/classify"
	documentuc "github.com/kailas-cloud/lexdex/internal/usecase/document"
	driftuc "github.com/kailas-cloud/lexdex/internal/usecase/drift"
	embeddinguc "github.com/kailas-cloud/lexdex/internal/usecase/embedding"
	"github.com/kailas-cloud/lexdex/internal/usecase/extract"
	graphuc "github.com/kailas-cloud/lexdex/internal/usecase/graph"
	healthuc "github.com/kailas-cloud/lexdex/internal/usecase/health"
	"github.com/kailas-cloud/lexdex/internal/usecase/normalize"
	pipelineuc "github.com/kailas-cloud/lexdex/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/lexdex/internal/usecase/search"
	statsuc "github.com/kailas-cloud/lexdex/internal/usecase/stats"
)

// App holds the connected stores and every wired service.
type App struct {
	Config config.Config
	Logger *zap.Logger

	DB    *postgres.Store
	Cache *dbRedis.Store // nil without cache.addrs
	Chain *embeddinguc.Chain

	Documents *documentuc.Service
	Pipeline  *pipelineuc.Service
	Stats     *statsuc.Service
	Bulk      *batchuc.Service
	Search    *searchuc.Service
	Citations *citationuc.Service
	Drift     *driftuc.Service
	Graph     *graphuc.Service
	Benchmark *benchmarkuc.Service
	Health    *healthuc.Service

	closers []func()
}

// New connects the stores and builds every service. Close releases them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	fetcher, err := a.objectStore(ctx)
	if err != nil {
		return nil, err
	}

	chain, err := a.embeddingChain(ctx)
	if err != nil {
		return nil, err
	}
	a.Chain = chain

	counter, err := chunking.NewTokenCounter(cfg.Chunking.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}
	table, err := chunkTable(cfg.Chunking.Table)
	if err != nil {
		return nil, err
	}

	docRepo := documentrepo.New(a.DB)
	events := eventrepo.New(a.DB)
	search := searchrepo.New(a.DB)

	a.Documents = documentuc.New(docRepo, logger)
	a.Stats = statsuc.New(docRepo)
	a.Bulk = batchuc.New(docRepo, logger)
	a.Pipeline = pipelineuc.New(pipelineuc.Deps{
		Repo:       docRepo,
		Extractor:  extract.New(fetcher),
		Normalizer: normalize.New(normalize.Options{StripTashkeel: cfg.Pipeline.StripTashkeel}),
		Classifier: classify.New(cfg.Pipeline.ReviewConfidence),
		Chunker:    chunking.New(chunking.Config{Table: table}, counter),
		Embedder:   chain,
	}, pipelineuc.Config{
		Concurrency:      cfg.Pipeline.Concurrency,
		MaxRetries:       cfg.Pipeline.MaxRetries,
		LeaseDuration:    time.Duration(cfg.Pipeline.LeaseMin) * time.Minute,
		ApproveThreshold: cfg.Pipeline.ApproveThreshold,
		RejectThreshold:  cfg.Pipeline.RejectThreshold,
	}, logger)

	// nil interface, not a typed nil pointer, when the judge is off
	var judge searchuc.Judge
	if cfg.Judge.APIKey != "" {
		judge = openaiEmb.NewJudge(&openaiEmb.JudgeConfig{
			APIKey:  cfg.Judge.APIKey,
			BaseURL: cfg.Judge.BaseURL,
			Model:   cfg.Judge.Model,
			Timeout: time.Duration(cfg.Judge.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}
	r := cfg.Retrieval
	a.Search = searchuc.New(search, chain, judge, events, searchuc.Config{
		CandidateMultiplier: r.CandidateMultiplier,
		VectorWeight:        r.VectorWeight,
		LexicalWeight:       r.LexicalWeight,
		GraphBoost:          r.GraphBoost,
		MinRelationStrength: r.MinRelationStrength,
		BoostTopK:           r.BoostTopK,
		PinSimilarity:       r.PinSimilarity,
		Gate: searchuc.GateConfig{
			IntentConfidence: r.IntentConfidence,
			JudgeEnabled:     judge != nil,
			BorderLow:        r.BorderLow,
			BorderHigh:       r.BorderHigh,
		},
	}, logger)

	a.Citations = citationuc.New(events, logger)
	driftCfg := driftuc.DefaultConfig()
	driftCfg.Window = time.Duration(cfg.Drift.WindowHours) * time.Hour
	driftCfg.MinSamples = cfg.Drift.MinSamples
	a.Drift = driftuc.New(events, driftCfg, logger)
	a.Graph = graphuc.New(search, logger)
	a.Benchmark = benchmarkuc.New(a.Search, logger)

	// nil interface again: health treats a missing cache as not configured
	var cache healthuc.Pinger
	if a.Cache != nil {
		cache = a.Cache
	}
	a.Health = healthuc.New(a.DB, cache, chain)

	ok = true
	return a, nil
}

// Services exposes the API-facing services to the HTTP transport.
func (a *App) Services() chiTransport.Services {
	return chiTransport.Services{
		Documents: a.Documents,
		Pipeline:  a.Pipeline,
		Stats:     a.Stats,
		Bulk:      a.Bulk,
		Search:    a.Search,
		Citations: a.Citations,
		Drift:     a.Drift,
		Health:    a.Health,
	}
}

// Scheduler registers the periodic pipeline batch and drift check.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Logger)
	p := a.Config.Pipeline
	trigger := pipelineuc.Trigger{BatchSize: p.BatchSize, MaxItems: p.MaxItems}
	err := s.Add("pipeline-batch", p.Schedule, time.Duration(p.JobTimeoutMin)*time.Minute,
		func(ctx context.Context) error {
			_, err := a.Pipeline.Run(ctx, trigger)
			return err
		})
	if err != nil {
		return nil, err
	}
	if err := s.Add("drift-check", a.Config.Drift.Schedule, 5*time.Minute, a.Drift.Check); err != nil {
		return nil, err
	}
	return s, nil
}

// GraphOptions returns graph build options from config for provider.
func (a *App) GraphOptions(provider string) graphuc.Options {
	g := a.Config.Graph
	return graphuc.Options{
		Provider:      provider,
		MinSimilarity: g.MinSimilarity,
		MaxResults:    g.MaxResults,
		SameCategory:  g.SameCategory,
		SameLanguage:  g.SameLanguage,
	}
}

// Close releases stores and providers in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) connect(ctx context.Context) error {
	d := a.Config.Database
	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             d.DSN,
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		MaxConnLifetime: time.Duration(d.MaxConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create database store: %w", err)
	}
	a.DB = store
	a.closers = append(a.closers, store.Close)

	if err := store.WaitForReady(ctx, time.Duration(d.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	a.Logger.Info("Connected to database")

	c := a.Config.Cache
	if len(c.Addrs) == 0 {
		a.Logger.Info("Embedding cache disabled")
		return nil
	}
	cache, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:       c.Addrs,
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: time.Duration(c.DialTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("create cache store: %w", err)
	}
	a.Cache = cache
	a.closers = append(a.closers, cache.Close)

	if err := cache.WaitForReady(ctx, time.Duration(d.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("cache not ready: %w", err)
	}
	a.Logger.Info("Connected to cache", zap.Strings("addrs", c.Addrs))
	return nil
}

// objectStore returns nil without a bucket; extraction then fails per document.
func (a *App) objectStore(ctx context.Context) (extract.ObjectFetcher, error) {
	s := a.Config.Storage
	if s.Bucket == "" {
		a.Logger.Warn("Object storage not configured, stored sources cannot be extracted")
		return nil, nil
	}
	f, err := s3Transport.New(ctx, s3Transport.Config{
		Endpoint:       s.Endpoint,
		Region:         s.Region,
		Bucket:         s.Bucket,
		AccessKey:      s.AccessKey,
		SecretKey:      s.SecretKey,
		UsePathStyle:   s.UsePathStyle,
		MaxObjectBytes: s.MaxObjectBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}
	return f, nil
}

// embeddingChain assembles, per provider: transport -> cache -> guard (breaker, pacing, timeout).
func (a *App) embeddingChain(ctx context.Context) (*embeddinguc.Chain, error) {
	e := a.Config.Embedding
	breakerCfg := embeddinguc.BreakerConfig{
		FailureThreshold: e.Breaker.FailureThreshold,
		Window:           time.Duration(e.Breaker.WindowSec) * time.Second,
		Cooldown:         time.Duration(e.Breaker.CooldownSec) * time.Second,
	}
	guardCfg := embeddinguc.GuardConfig{
		InterCallDelay: time.Duration(e.InterCallDelayMs) * time.Millisecond,
		CallTimeout:    time.Duration(e.CallTimeoutSec) * time.Second,
	}

	var kv db.KVStore
	if a.Cache != nil {
		kv = a.Cache
	}
	members := make([]embeddinguc.Member, 0, len(e.Providers))
	for _, pc := range e.Providers {
		base, err := a.provider(ctx, pc)
		if err != nil {
			return nil, err
		}
		m, err := a.member(base, kv, breakerCfg, guardCfg)
		if err != nil {
			return nil, fmt.Errorf("embedding provider %s: %w", pc.Name, err)
		}
		members = append(members, m)
		a.Logger.Info("Embedding provider configured",
			zap.String("provider", pc.Name),
			zap.String("kind", pc.Kind),
			zap.String("model", pc.Model),
			zap.Int("dimensions", pc.Dimensions),
		)
	}
	return embeddinguc.NewChain(members, a.Logger)
}

// member stacks one chain member: transport, then breaker with pacing and
// timeout, then the cache. Cache hits never touch the breaker or the limiter.
func (a *App) member(
	base domain.Provider,
	kv db.KVStore,
	breakerCfg embeddinguc.BreakerConfig,
	guardCfg embeddinguc.GuardConfig,
) (embeddinguc.Member, error) {
	breaker := embeddinguc.NewBreaker(base.Name(), breakerCfg,
		metrics.BreakerState, metrics.BreakerTransitionsTotal, a.Logger)
	var p domain.Provider = embeddinguc.NewGuarded(base, breaker, guardCfg, a.Logger)
	if kv != nil {
		cached, err := embcache.New(p, kv, embcache.Options{
			TTL:    time.Duration(a.Config.Cache.TTLHours) * time.Hour,
			L1Size: a.Config.Cache.L1Size,
		}, metrics.EmbeddingCacheTotal, a.Logger)
		if err != nil {
			return embeddinguc.Member{}, fmt.Errorf("embedding cache: %w", err)
		}
		p = cached
	}
	return embeddinguc.Member{Provider: p, Breaker: breaker}, nil
}

func (a *App) provider(ctx context.Context, pc config.ProviderConfig) (domain.Provider, error) {
	switch pc.Kind {
	case config.ProviderGemini:
		g, err := geminiEmb.NewEmbedder(ctx, &geminiEmb.Config{
			APIKey:       pc.APIKey,
			Model:        pc.Model,
			Dimensions:   pc.Dimensions,
			MaxBatchSize: pc.MaxBatchSize,
			Provider:     pc.Name,
			Logger:       a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider %s: %w", pc.Name, err)
		}
		a.closers = append(a.closers, func() { _ = g.Close() })
		return g, nil
	default:
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			Model:        pc.Model,
			Dimensions:   pc.Dimensions,
			MaxBatchSize: pc.MaxBatchSize,
			Provider:     pc.Name,
			Logger:       a.Logger,
		}), nil
	}
}

func chunkTable(in map[string]chunking.Params) (map[knowledge.Category]chunking.Params, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[knowledge.Category]chunking.Params, len(in))
	for name, p := range in {
		c, ok := knowledge.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("chunking.table: unknown category %q: %w", name, domain.ErrValidation)
		}
		out[c] = p
	}
	return out, nil
}
