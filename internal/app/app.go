// Package app wires the search pipeline from configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/config"
	"github.com/kailas-cloud/hvacsearch/internal/db"
	dbRedis "github.com/kailas-cloud/hvacsearch/internal/db/redis"
	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
	"github.com/kailas-cloud/hvacsearch/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/hvacsearch/internal/repository/search"
	"github.com/kailas-cloud/hvacsearch/internal/repository/session"
	"github.com/kailas-cloud/hvacsearch/internal/retry"
	openaiTransport "github.com/kailas-cloud/hvacsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/hvacsearch/internal/usecase/embedding"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/filterbuild"
	healthuc "github.com/kailas-cloud/hvacsearch/internal/usecase/health"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/router"
	searchuc "github.com/kailas-cloud/hvacsearch/internal/usecase/search"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/synthesize"
	"github.com/kailas-cloud/hvacsearch/internal/usecase/visualize"
)

const embeddingProvider = "openai"

// App holds the wired services.
type App struct {
	Store    db.Store
	Index    *searchrepo.Repo
	Sessions *session.Repo
	Search   *searchuc.Service
	Health   *healthuc.Service
}

// Close releases the database connection.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// Open connects to the database, waits for it and assembles the pipeline.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	return Build(store, cfg, logger), nil
}

// Build assembles the pipeline over an existing store.
func Build(store db.Store, cfg *config.Config, logger *zap.Logger) *App {
	secrets := cfg.Secrets()
	retryOpts := RetryOptions(cfg, logger)

	embedder, provider := buildEmbedder(cfg, store, logger)

	chat := openaiTransport.NewChatClient(&openaiTransport.ChatConfig{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		SummaryModel: cfg.LLM.SummaryModel,
		Seed:         cfg.LLM.Seed,
		MaxTokens:    cfg.LLM.MaxTokens,
		Timeout:      cfg.LLMTimeout(),
		Logger:       logger,
	})

	index := searchrepo.New(store, searchrepo.Config{
		IndexName:       cfg.Index.Name,
		KeyPrefix:       cfg.Index.KeyPrefix,
		Dimensions:      cfg.Index.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
		Timeout:         cfg.VectorTimeout(),
	})

	sessions := session.New(store, cfg.Auth.SessionPrefix, session.WithStatic(StaticSessions(cfg)))

	svc := searchuc.New(searchuc.Deps{
		Router: router.New(chat,
			router.WithRetry(retryOpts),
			router.WithLogger(logger),
		),
		Filters:    filterbuild.New(Policy(cfg)),
		Embedder:   embedder,
		Retriever:  index,
		Visualizer: visualize.New(cfg.Search.MaxCharts),
		Summarizer: synthesize.New(chat, retryOpts, secrets...),
	}, searchuc.Config{
		Concurrency: cfg.Search.ToolConcurrency,
		Retry:       retryOpts,
	})

	health := healthuc.New(store, map[string]healthuc.Checker{
		"embedding": newEmbeddingHealthChecker(provider),
		"chat":      chat,
		"index":     healthuc.CheckerFunc(index.IndexReady),
	})

	return &App{
		Store:    store,
		Index:    index,
		Sessions: sessions,
		Search:   svc,
		Health:   health,
	}
}

// RetryOptions maps the retry section onto retry.Options. max_retries: 0 disables retrying.
func RetryOptions(cfg *config.Config, logger *zap.Logger) retry.Options {
	maxRetries := retry.DefaultMaxRetries
	if cfg.Retry.MaxRetries != nil {
		maxRetries = *cfg.Retry.MaxRetries
	}
	if maxRetries == 0 {
		maxRetries = retry.NoRetries
	}
	return retry.Options{
		MaxRetries:        maxRetries,
		BaseDelay:         time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		RetryableStatuses: cfg.Retry.RetryableStatuses,
		Logger:            logger,
	}
}

// Policy selects the data access policy named by auth.policy.
func Policy(cfg *config.Config) filterbuild.SecurityPolicy {
	if cfg.Auth.Policy == "tenant" {
		return filterbuild.NewTenantScopedPolicy(cfg.Auth.RoleHierarchy)
	}
	return filterbuild.NoopPolicy{}
}

// StaticSessions converts configured demo sessions into principals keyed by token.
func StaticSessions(cfg *config.Config) map[string]principal.Principal {
	out := make(map[string]principal.Principal, len(cfg.Auth.StaticSessions))
	for token, s := range cfg.Auth.StaticSessions {
		out[token] = principal.Principal{
			UserID:   s.UserID,
			Role:     s.Role,
			OpCo:     s.OpCo,
			VendorID: s.VendorID,
		}
	}
	return out
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// The bare provider is returned too for health probing.
func buildEmbedder(cfg *config.Config, store db.KVStore, logger *zap.Logger) (domain.Embedder, domain.Embedder) {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   embeddingProvider,
		Timeout:    cfg.EmbeddingTimeout(),
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if ttl := time.Duration(cfg.Embedding.CacheTTLSec) * time.Second; ttl > 0 && store != nil {
		embedder = embcache.New(base, store, cfg.Embedding.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(
		embedder, embeddingProvider, cfg.Embedding.Model, logger, cfg.Secrets()...,
	), base
}

// embeddingHealthChecker probes the provider behind the decorator chain.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
