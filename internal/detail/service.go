// Package detail serves deep-dive answers for topic facts and enrichment
// items, generating each one at most once per cache lifetime.
package detail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mfenderov/knowra/internal/cache"
	"github.com/mfenderov/knowra/internal/clock"
	"github.com/mfenderov/knowra/internal/generation"
	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/internal/scraper"
	"github.com/mfenderov/knowra/pkg/models"
)

// MaxPageChars bounds the page text embedded in an encyclopedia prompt.
const MaxPageChars = 50000

// Generator produces a detail answer.
type Generator interface {
	GenerateDetail(ctx context.Context, title, fact, promptOverride string) (*models.Detail, error)
}

// SharedCache is a cache tier shared across processes. *cache.RedisStore
// implements it.
type SharedCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// PageFetcher downloads a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// PageConverter reduces page HTML to bounded Markdown text.
type PageConverter interface {
	Markdown(html string, maxLen int) (string, error)
}

// Config holds optional service settings.
type Config struct {
	MaxEntries int
	MaxAge     time.Duration
	Clock      clock.Clock
	Shared     SharedCache // optional second tier
	Fetcher    PageFetcher // encyclopedia page text, optional
	Converter  PageConverter
	Metrics    *metrics.Metrics
}

// Service answers detail lookups cache-first.
type Service struct {
	gen       Generator
	local     *cache.LRU[models.Detail]
	shared    SharedCache
	fetcher   PageFetcher
	converter PageConverter
	metrics   *metrics.Metrics

	group singleflight.Group
}

// New creates a detail service.
func New(gen Generator, config Config) *Service {
	return &Service{
		gen:       gen,
		local:     cache.NewLRU[models.Detail](config.MaxEntries, config.MaxAge, config.Clock),
		shared:    config.Shared,
		fetcher:   config.Fetcher,
		converter: config.Converter,
		metrics:   config.Metrics,
	}
}

// Lookup returns the deep-dive for fact within topic title.
func (s *Service) Lookup(ctx context.Context, title, fact string) (*models.Detail, error) {
	key := cache.Key("detail", title, fact)
	return s.cached(ctx, key, func(ctx context.Context) (*models.Detail, error) {
		return s.gen.GenerateDetail(ctx, title, fact, "")
	})
}

// LookupItem returns the deep-dive for one enrichment item of topic title.
func (s *Service) LookupItem(ctx context.Context, title string, category models.Category, item models.Item) (*models.Detail, error) {
	switch category {
	case models.CategoryVideos:
		key := cache.Key("video", item.ID, item.Title)
		return s.cached(ctx, key, func(ctx context.Context) (*models.Detail, error) {
			prompt := generation.VideoPrompt(item.Title, item.Description, item.URL)
			return s.gen.GenerateDetail(ctx, item.Title, item.Description, prompt)
		})

	case models.CategoryBooks:
		authors := strings.Join(item.Authors, ", ")
		key := cache.Key("book", item.Title, strings.Join(item.Authors, ","))
		return s.cached(ctx, key, func(ctx context.Context) (*models.Detail, error) {
			prompt := generation.BookPrompt(item.Title, authors, item.Description, item.URL)
			return s.gen.GenerateDetail(ctx, item.Title, item.Description, prompt)
		})

	case models.CategoryWiki:
		key := cache.Key("wiki", item.Title)
		return s.cached(ctx, key, func(ctx context.Context) (*models.Detail, error) {
			prompt := generation.WikiPrompt(item.Title, s.pageText(ctx, item))
			return s.gen.GenerateDetail(ctx, item.Title, item.Description, prompt)
		})
	}
	return nil, fmt.Errorf("unknown category %q for topic %q", category, title)
}

// pageText fetches the item's page as Markdown, falling back to the search
// description when the page cannot be fetched.
func (s *Service) pageText(ctx context.Context, item models.Item) string {
	if s.fetcher == nil || s.converter == nil || item.URL == "" {
		return item.Description
	}

	page, err := s.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		slog.Warn("page fetch failed, using description", "url", item.URL, "error", err)
		return item.Description
	}

	text, err := s.converter.Markdown(page.HTML, MaxPageChars)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("page conversion failed, using description", "url", item.URL, "error", err)
		return item.Description
	}
	return text
}

func (s *Service) cached(ctx context.Context, key string, produce func(context.Context) (*models.Detail, error)) (*models.Detail, error) {
	if d, ok := s.local.Get(key); ok {
		s.metrics.RecordCacheLookup("memory", true)
		d = d.Clone()
		return &d, nil
	}
	s.metrics.RecordCacheLookup("memory", false)

	v, err, _ := s.group.Do(key, func() (any, error) {
		// An abandoned caller still leaves the result in the cache.
		ctx := context.WithoutCancel(ctx)

		// A flight that finished since the check above has filled the local tier.
		if d, ok := s.local.Get(key); ok {
			return d, nil
		}
		if d, ok := s.sharedGet(ctx, key); ok {
			s.local.Set(key, d)
			return d, nil
		}

		d, err := produce(ctx)
		if err != nil {
			return nil, err
		}

		s.local.Set(key, d.Clone())
		s.sharedSet(ctx, key, *d)
		return *d, nil
	})
	if err != nil {
		return nil, err
	}

	// Cached entries and joined callers never share Points.
	d := v.(models.Detail).Clone()
	return &d, nil
}

func (s *Service) sharedGet(ctx context.Context, key string) (models.Detail, bool) {
	if s.shared == nil {
		return models.Detail{}, false
	}

	raw, ok, err := s.shared.Get(ctx, key)
	if err != nil {
		slog.Warn("shared cache read failed", "key", key, "error", err)
		return models.Detail{}, false
	}
	s.metrics.RecordCacheLookup("redis", ok)
	if !ok {
		return models.Detail{}, false
	}

	var d models.Detail
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		slog.Warn("discarding malformed shared cache entry", "key", key, "error", err)
		return models.Detail{}, false
	}
	return d, true
}

func (s *Service) sharedSet(ctx context.Context, key string, d models.Detail) {
	if s.shared == nil {
		return
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, key, string(raw)); err != nil {
		slog.Warn("shared cache write failed", "key", key, "error", err)
	}
}

// Len returns the number of entries in the in-process cache.
func (s *Service) Len() int {
	return s.local.Len()
}
