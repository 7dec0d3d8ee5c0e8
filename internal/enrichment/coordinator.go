// Package enrichment lazily fills the per-category external search results
// of a topic and persists them so each category is fetched at most once.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"github.com/mfenderov/knowra/internal/clock"
	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/pkg/models"
)

var (
	// ErrSearchFailed wraps a failed external search. Nothing was persisted
	// and the category can be expanded again later.
	ErrSearchFailed = errors.New("external search failed")

	// ErrUnknownCategory is returned for a category with no searcher.
	ErrUnknownCategory = errors.New("unknown enrichment category")
)

// State is the fetch state of one (topic, category) pair.
type State int

const (
	Unfetched State = iota
	Fetching
	Cached
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Cached:
		return "cached"
	default:
		return "unfetched"
	}
}

// Searcher queries one external source for a topic.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Item, error)
}

// Store persists one enrichment category of a topic.
type Store interface {
	SetEnrichment(ctx context.Context, id primitive.ObjectID, category models.Category, set models.ItemSet) error
}

// Config holds optional coordinator settings.
type Config struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Coordinator expands enrichment categories on demand.
type Coordinator struct {
	store     Store
	searchers map[models.Category]Searcher
	clock     clock.Clock
	metrics   *metrics.Metrics

	group    singleflight.Group
	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a coordinator with one searcher per category.
func New(s Store, searchers map[models.Category]Searcher, config Config) *Coordinator {
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	return &Coordinator{
		store:     s,
		searchers: searchers,
		clock:     config.Clock,
		metrics:   config.Metrics,
		inFlight:  make(map[string]bool),
	}
}

// Expand returns the items of category for topic. Persisted non-empty
// results are returned without a network call; otherwise the category's
// searcher runs once and its results (possibly empty) are persisted and
// copied onto topic.
func (c *Coordinator) Expand(ctx context.Context, topic *models.Topic, category models.Category) ([]models.Item, error) {
	if set := topic.Enrichment.Get(category); len(set.Items) > 0 {
		return set.Items, nil
	}

	searcher, ok := c.searchers[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if topic.ID.IsZero() {
		return nil, fmt.Errorf("topic %q has not been persisted", topic.Title)
	}

	key := flightKey(topic.ID, category)
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.setInFlight(key, true)
		defer c.setInFlight(key, false)
		// Callers joining the flight must not see the first caller's cancellation.
		return c.fetch(context.WithoutCancel(ctx), topic, category, searcher)
	})
	if err != nil {
		return nil, err
	}

	set := v.(models.ItemSet)
	set.Items = slices.Clone(set.Items)
	topic.Enrichment.Set(category, set)
	return set.Items, nil
}

func (c *Coordinator) fetch(ctx context.Context, topic *models.Topic, category models.Category, searcher Searcher) (models.ItemSet, error) {
	slog.Debug("fetching enrichment", "title", topic.Title, "category", category)

	items, err := searcher.Search(ctx, topic.Title)
	if err != nil {
		c.metrics.RecordEnrichment(string(category), "error")
		slog.Warn("enrichment search failed", "title", topic.Title, "category", category, "error", err)
		return models.ItemSet{}, fmt.Errorf("%w: %s: %w", ErrSearchFailed, category, err)
	}
	if items == nil {
		items = []models.Item{}
	}

	set := models.ItemSet{Items: items, UpdatedAt: c.clock.Now().UTC()}
	if err := c.store.SetEnrichment(ctx, topic.ID, category, set); err != nil {
		c.metrics.RecordEnrichment(string(category), "store_error")
		return models.ItemSet{}, fmt.Errorf("failed to save %s enrichment: %w", category, err)
	}

	c.metrics.RecordEnrichment(string(category), "ok")
	slog.Debug("saved enrichment", "title", topic.Title, "category", category, "items", len(items))
	return set, nil
}

// State reports the fetch state of category for topic.
func (c *Coordinator) State(topic *models.Topic, category models.Category) State {
	if !topic.ID.IsZero() {
		c.mu.Lock()
		fetching := c.inFlight[flightKey(topic.ID, category)]
		c.mu.Unlock()
		if fetching {
			return Fetching
		}
	}
	if set := topic.Enrichment.Get(category); len(set.Items) > 0 {
		return Cached
	}
	return Unfetched
}

// ExpandAll expands the given categories concurrently. A failing category is
// logged and left out of the result without affecting the others.
func (c *Coordinator) ExpandAll(ctx context.Context, topic *models.Topic, categories ...models.Category) map[models.Category][]models.Item {
	if len(categories) == 0 {
		categories = models.Categories
	}

	type result struct {
		category models.Category
		items    []models.Item
		set      models.ItemSet
		err      error
	}

	results := make(chan result, len(categories))
	var wg sync.WaitGroup
	for _, category := range categories {
		wg.Add(1)
		go func(category models.Category) {
			defer wg.Done()
			// Each goroutine works on its own copy; results are merged below.
			local := *topic
			items, err := c.Expand(ctx, &local, category)
			results <- result{category: category, items: items, set: local.Enrichment.Get(category), err: err}
		}(category)
	}
	wg.Wait()
	close(results)

	out := make(map[models.Category][]models.Item, len(categories))
	for r := range results {
		if r.err != nil {
			slog.Warn("section expansion failed", "title", topic.Title, "category", r.category, "error", r.err)
			continue
		}
		topic.Enrichment.Set(r.category, r.set)
		out[r.category] = r.items
	}
	return out
}

func (c *Coordinator) setInFlight(key string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v {
		c.inFlight[key] = true
	} else {
		delete(c.inFlight, key)
	}
}

func flightKey(id primitive.ObjectID, category models.Category) string {
	return id.Hex() + ":" + string(category)
}
