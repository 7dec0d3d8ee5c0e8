// Package pipeline assembles the topic services from configuration and
// exposes the operations the CLI and MCP server call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mfenderov/knowra/internal/cache"
	"github.com/mfenderov/knowra/internal/config"
	"github.com/mfenderov/knowra/internal/detail"
	"github.com/mfenderov/knowra/internal/elasticsearch"
	"github.com/mfenderov/knowra/internal/enrichment"
	"github.com/mfenderov/knowra/internal/events"
	"github.com/mfenderov/knowra/internal/generation"
	"github.com/mfenderov/knowra/internal/ingestion"
	"github.com/mfenderov/knowra/internal/llm"
	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/internal/processor"
	"github.com/mfenderov/knowra/internal/ratelimit"
	"github.com/mfenderov/knowra/internal/resolver"
	"github.com/mfenderov/knowra/internal/scraper"
	"github.com/mfenderov/knowra/internal/search"
	"github.com/mfenderov/knowra/internal/storage"
	"github.com/mfenderov/knowra/internal/store"
	"github.com/mfenderov/knowra/pkg/models"
)

const (
	// SuggestionLimit caps search-as-you-type results.
	SuggestionLimit = 10
	// SuggestionTTL is how long suggestion results are reused.
	SuggestionTTL = time.Minute

	// sinkTimeout bounds the best-effort work done per created topic.
	sinkTimeout = 30 * time.Second
	eventBuffer = 64
)

// ErrArchiveDisabled is returned by Restore when no archive is configured.
var ErrArchiveDisabled = errors.New("topic archive is not configured")

// Indexer maintains the suggestion index. *elasticsearch.Client implements it.
type Indexer interface {
	CreateIndex(ctx context.Context) error
	IndexTopic(ctx context.Context, topic *models.Topic, embedding []float32) error
	Refresh(ctx context.Context) error
	Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error)
	HybridSuggest(ctx context.Context, query string, queryEmbedding []float32, limit int) ([]models.Suggestion, error)
}

// Archive stores topic snapshots. *storage.Client implements it.
type Archive interface {
	EnsureBucket(ctx context.Context) error
	PutTopic(ctx context.Context, prefix string, topic *models.Topic) error
	ListTopics(ctx context.Context, prefix string) ([]string, error)
	GetTopic(ctx context.Context, objectName string) (*models.Topic, error)
}

// Embedder turns text into a vector. *llm.Client implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps are the connected collaborators a Pipeline is built from. Nil
// optional fields disable the feature they back.
type Deps struct {
	Store     store.Store
	Completer generation.Completer
	Embedder  Embedder           // optional
	Indexer   Indexer            // optional
	Archive   Archive            // optional
	Shared    detail.SharedCache // optional
	Searchers map[models.Category]enrichment.Searcher
	Fetcher   detail.PageFetcher
	Registry  *prometheus.Registry // nil disables metrics
	closers   []func() error
}

// Pipeline wires the resolver, detail service and enrichment coordinator
// together with the optional suggestion index and snapshot archive.
type Pipeline struct {
	config      config.Config
	store       store.Store
	resolver    *resolver.Resolver
	detail      *detail.Service
	enrichment  *enrichment.Coordinator
	embedder    Embedder
	indexer     Indexer
	archive     Archive
	suggestions *gocache.Cache
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	closers     []func() error

	mu       sync.Mutex
	closed   bool
	events   chan events.TopicCreatedEvent
	sinkDone chan struct{}
}

// Assemble connects every configured backend and builds a Pipeline.
func Assemble(ctx context.Context, cfg config.Config) (*Pipeline, error) {
	deps, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p, err := New(cfg, deps)
	if err != nil {
		deps.close()
		return nil, err
	}
	return p, nil
}

// Connect opens the backends cfg enables.
func Connect(ctx context.Context, cfg config.Config) (*Deps, error) {
	deps := &Deps{Registry: prometheus.NewRegistry()}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	switch cfg.Store.Driver {
	case "memory":
		deps.Store = store.NewMemory()
	default:
		s, err := store.NewMongo(ctx, store.MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, err
		}
		deps.Store = s
	}
	deps.closers = append(deps.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return deps.Store.Close(ctx)
	})

	embeddingModel := ""
	if cfg.Embeddings.Enabled {
		embeddingModel = cfg.Embeddings.Model
	}
	llmClient, err := llm.New(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		SocketPath:     cfg.LLM.SocketPath,
		Model:          cfg.LLM.Model,
		EmbeddingModel: embeddingModel,
		APIKey:         cfg.LLM.APIKey,
		Timeout:        cfg.LLM.Timeout,
		JSONMode:       cfg.LLM.JSONMode,
		MaxTokens:      cfg.LLM.MaxTokens,
	})
	if err != nil {
		deps.close()
		return nil, err
	}
	deps.Completer = llmClient
	if llmClient.EmbeddingsEnabled() {
		deps.Embedder = llmClient
		slog.Info("embeddings enabled", "model", embeddingModel)
	}

	if cfg.Redis.Enabled {
		shared, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			URL:    cfg.Redis.URL,
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
		})
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.Shared = shared
		deps.closers = append(deps.closers, shared.Close)
	}

	if cfg.Elasticsearch.Enabled {
		es, err := elasticsearch.New(elasticsearch.Config{
			Addresses:  cfg.Elasticsearch.Addresses,
			Index:      cfg.Elasticsearch.Index,
			Username:   cfg.Elasticsearch.Username,
			Password:   cfg.Elasticsearch.Password,
			Dimensions: llm.Dimensions(cfg.Embeddings.Model),
		})
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.Indexer = es
	}

	if cfg.Storage.Enabled {
		archive, err := storage.New(storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.Archive = archive
	}

	httpClient := search.NewClient(search.HTTPConfig{
		Timeout:           cfg.Search.Timeout,
		RetryMax:          cfg.Search.RetryMax,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
		UserAgent:         cfg.Scraper.UserAgent,
	})
	deps.Searchers = map[models.Category]enrichment.Searcher{
		models.CategoryBooks: search.NewBooks(httpClient, search.BooksConfig{
			BaseURL:    cfg.Search.BooksURL,
			APIKey:     cfg.Search.BooksAPIKey,
			MaxResults: cfg.Search.MaxResults,
		}),
		models.CategoryVideos: search.NewVideos(httpClient, search.VideosConfig{
			BaseURL:    cfg.Search.VideosURL,
			APIKey:     cfg.Search.VideosAPIKey,
			MaxResults: cfg.Search.MaxResults,
		}),
		models.CategoryWiki: search.NewWiki(httpClient, search.WikiConfig{
			BaseURL: cfg.Search.WikiURL,
		}),
	}

	deps.Fetcher = scraper.New(scraper.Config{
		Delay:     cfg.Scraper.Delay,
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Scraper.Timeout,
	})

	return deps, nil
}

func (d *Deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("failed to close backend", "error", err)
		}
	}
}

// New builds a Pipeline over already connected collaborators and starts the
// background sink that indexes and archives newly created topics.
func New(cfg config.Config, deps *Deps) (*Pipeline, error) {
	if deps.Store == nil || deps.Completer == nil {
		return nil, fmt.Errorf("store and completer are required")
	}

	var m *metrics.Metrics
	if deps.Registry != nil {
		m = metrics.New(deps.Registry)
	}

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, nil)
	gen := generation.New(deps.Completer, limiter, m)

	p := &Pipeline{
		config:      cfg,
		store:       deps.Store,
		embedder:    deps.Embedder,
		indexer:     deps.Indexer,
		archive:     deps.Archive,
		suggestions: gocache.New(SuggestionTTL, 2*SuggestionTTL),
		metrics:     m,
		registry:    deps.Registry,
		closers:     deps.closers,
		events:      make(chan events.TopicCreatedEvent, eventBuffer),
		sinkDone:    make(chan struct{}),
	}

	p.resolver = resolver.New(deps.Store, gen, resolver.Config{
		SettleDelay:   cfg.Store.SettleDelay,
		LookupRetries: cfg.Store.LookupRetries,
		Metrics:       m,
		OnCreate:      p.publish,
	})

	p.detail = detail.New(gen, detail.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxAge:     cfg.Cache.MaxAge,
		Shared:     deps.Shared,
		Fetcher:    deps.Fetcher,
		Converter:  processor.New(),
		Metrics:    m,
	})

	p.enrichment = enrichment.New(deps.Store, deps.Searchers, enrichment.Config{Metrics: m})

	go p.sink()
	return p, nil
}

// ResolveTopic returns the topic for a slug or title, creating it if needed.
func (p *Pipeline) ResolveTopic(ctx context.Context, identifier string) (*models.Topic, error) {
	return p.resolver.Resolve(ctx, identifier)
}

// LookupDetail returns the deep-dive for one fact of a topic.
func (p *Pipeline) LookupDetail(ctx context.Context, title, fact string) (*models.Detail, error) {
	return p.detail.Lookup(ctx, title, fact)
}

// LookupItemDetail returns the deep-dive for one enrichment item.
func (p *Pipeline) LookupItemDetail(ctx context.Context, title string, category models.Category, item models.Item) (*models.Detail, error) {
	return p.detail.LookupItem(ctx, title, category, item)
}

// ExpandSection fetches or returns the enrichment items of an existing topic.
func (p *Pipeline) ExpandSection(ctx context.Context, identifier string, category models.Category) ([]models.Item, error) {
	topic, err := p.resolver.Find(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return p.enrichment.Expand(ctx, topic, category)
}

// ExpandAllSections expands every enrichment category of an existing topic
// concurrently. Categories whose fetch failed are absent from the result.
func (p *Pipeline) ExpandAllSections(ctx context.Context, identifier string) (map[models.Category][]models.Item, error) {
	topic, err := p.resolver.Find(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return p.enrichment.ExpandAll(ctx, topic), nil
}

// SectionState reports the enrichment state of a topic category.
func (p *Pipeline) SectionState(ctx context.Context, identifier string, category models.Category) (enrichment.State, error) {
	topic, err := p.resolver.Find(ctx, identifier)
	if err != nil {
		return enrichment.Unfetched, err
	}
	return p.enrichment.State(topic, category), nil
}

// SearchSuggestions returns up to SuggestionLimit topics whose title contains
// query. Results come from the suggestion index when one is configured and
// from the store otherwise; they are cached for SuggestionTTL.
func (p *Pipeline) SearchSuggestions(ctx context.Context, query string) ([]models.Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Suggestion{}, nil
	}

	key := strings.ToLower(query)
	if cached, ok := p.suggestions.Get(key); ok {
		p.metrics.RecordCacheLookup("suggestions", true)
		return cached.([]models.Suggestion), nil
	}
	p.metrics.RecordCacheLookup("suggestions", false)

	results, err := p.suggest(ctx, query)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.Suggestion{}
	}

	p.suggestions.SetDefault(key, results)
	return results, nil
}

func (p *Pipeline) suggest(ctx context.Context, query string) ([]models.Suggestion, error) {
	if p.indexer != nil {
		results, err := p.indexSuggest(ctx, query)
		if err == nil {
			return results, nil
		}
		slog.Warn("suggestion index failed, falling back to store", "query", query, "error", err)
	}

	results, err := p.store.Suggest(ctx, query, SuggestionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search suggestions: %w", err)
	}
	return results, nil
}

func (p *Pipeline) indexSuggest(ctx context.Context, query string) ([]models.Suggestion, error) {
	if p.embedder != nil {
		vec, err := p.embedder.Embed(ctx, query)
		if err == nil {
			return p.indexer.HybridSuggest(ctx, query, vec, SuggestionLimit)
		}
		slog.Debug("query embedding failed, using text suggestions", "error", err)
	}
	return p.indexer.Suggest(ctx, query, SuggestionLimit)
}

// Backfill assigns missing slugs and regenerates empty related topics.
func (p *Pipeline) Backfill(ctx context.Context) (*resolver.BackfillResult, error) {
	return p.resolver.Backfill(ctx)
}

// Restore reads archived snapshots back into the store and re-indexes them.
func (p *Pipeline) Restore(ctx context.Context, prefix string) (*ingestion.Result, error) {
	if p.archive == nil {
		return nil, ErrArchiveDisabled
	}
	if prefix == "" {
		prefix = p.config.Storage.Prefix
	}

	result, err := ingestion.New(p.archive, p.store, p.indexer, p.embedder).Restore(ctx, prefix)
	if err != nil {
		return nil, err
	}
	p.suggestions.Flush()
	return result, nil
}

// Registry returns the metrics registry, nil when metrics are disabled.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Close stops the event sink after it drains and closes the backends.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.sinkDone

	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
