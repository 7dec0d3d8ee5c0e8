// Package resolver returns existing topics or creates them exactly once.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"github.com/mfenderov/knowra/internal/clock"
	"github.com/mfenderov/knowra/internal/generation"
	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/internal/slug"
	"github.com/mfenderov/knowra/internal/store"
	"github.com/mfenderov/knowra/pkg/models"
)

// ErrEmptyIdentifier is returned for a blank title or slug.
var ErrEmptyIdentifier = errors.New("empty topic identifier")

const (
	// DefaultSettleDelay is the pause between lookups after losing a
	// creation race, giving the winner's write time to become visible.
	DefaultSettleDelay = 200 * time.Millisecond
	// DefaultLookupRetries is how many lookups a race loser makes.
	DefaultLookupRetries = 3
)

// Generator produces topic content.
type Generator interface {
	GenerateTopic(ctx context.Context, title string) (*generation.TopicContent, error)
	GenerateRelated(ctx context.Context, title string) ([]string, error)
}

// Config holds optional resolver settings.
type Config struct {
	SettleDelay   time.Duration
	LookupRetries int
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	// OnCreate is called once for every topic this resolver persists.
	OnCreate func(*models.Topic)
}

// Resolver looks topics up by slug or title and creates missing ones.
type Resolver struct {
	store         store.Store
	gen           Generator
	slugs         *slug.Allocator
	clock         clock.Clock
	settleDelay   time.Duration
	lookupRetries int
	metrics       *metrics.Metrics
	onCreate      func(*models.Topic)

	creating singleflight.Group
}

// New creates a resolver over s using gen for new content.
func New(s store.Store, gen Generator, config Config) *Resolver {
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	if config.LookupRetries <= 0 {
		config.LookupRetries = DefaultLookupRetries
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}

	return &Resolver{
		store:         s,
		gen:           gen,
		slugs:         slug.NewAllocator(s),
		clock:         config.Clock,
		settleDelay:   config.SettleDelay,
		lookupRetries: config.LookupRetries,
		metrics:       config.Metrics,
		onCreate:      config.OnCreate,
	}
}

// Resolve returns the topic identified by a slug or title, creating it when
// neither matches. Creation failures are returned as-is and leave nothing
// persisted.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*models.Topic, error) {
	id := decodeIdentifier(identifier)
	if id == "" {
		return nil, ErrEmptyIdentifier
	}

	topic, err := r.lookup(ctx, id)
	if err == nil {
		return r.repair(ctx, topic)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// Concurrent requests for the same new title share one creation.
	v, err, shared := r.creating.Do(models.NormalizeTitle(id), func() (any, error) {
		return r.create(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("joined in-flight topic creation", "title", id)
	}

	// Joined callers each get their own copy.
	return v.(*models.Topic).Clone(), nil
}

// Find returns the topic identified by a slug or title without creating or
// repairing it.
func (r *Resolver) Find(ctx context.Context, identifier string) (*models.Topic, error) {
	id := decodeIdentifier(identifier)
	if id == "" {
		return nil, ErrEmptyIdentifier
	}
	return r.lookup(ctx, id)
}

// lookup tries the slug first, then the title.
func (r *Resolver) lookup(ctx context.Context, id string) (*models.Topic, error) {
	topic, err := r.store.FindBySlug(ctx, strings.ToLower(id))
	if err == nil {
		return topic, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up slug: %w", err)
	}

	topic, err = r.store.FindByTitle(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up title: %w", err)
	}
	return topic, err
}

// repair fills in a missing slug and missing related topics on an existing
// record. A related-topics failure is logged and the record returned as-is.
func (r *Resolver) repair(ctx context.Context, topic *models.Topic) (*models.Topic, error) {
	if strings.TrimSpace(topic.Slug) == "" {
		if err := r.assignSlug(ctx, topic); err != nil {
			return nil, err
		}
	}

	if len(topic.RelatedTopics) == 0 {
		if err := r.fillRelated(ctx, topic); err != nil {
			slog.Warn("related topics backfill failed", "title", topic.Title, "error", err)
		}
	}

	return topic, nil
}

func (r *Resolver) assignSlug(ctx context.Context, topic *models.Topic) error {
	s, err := r.slugs.Commit(ctx, topic.Title, topic.ID, func(candidate string) error {
		return r.store.SetSlug(ctx, topic.ID, candidate)
	})
	if err != nil {
		return fmt.Errorf("failed to assign slug to %q: %w", topic.Title, err)
	}
	slog.Debug("assigned missing slug", "title", topic.Title, "slug", s)
	topic.Slug = s
	return nil
}

func (r *Resolver) fillRelated(ctx context.Context, topic *models.Topic) error {
	related, err := r.gen.GenerateRelated(ctx, topic.Title)
	if err != nil {
		return err
	}
	if err := r.store.SetRelated(ctx, topic.ID, related); err != nil {
		return fmt.Errorf("failed to save related topics: %w", err)
	}
	topic.RelatedTopics = related
	return nil
}

func (r *Resolver) create(ctx context.Context, title string) (*models.Topic, error) {
	// Another process may have created it since the caller's lookup.
	if existing, err := r.lookup(ctx, title); err == nil {
		return r.repair(ctx, existing)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	content, err := r.gen.GenerateTopic(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to generate topic %q: %w", title, err)
	}

	now := r.clock.Now().UTC()
	topic := &models.Topic{
		Title:         title,
		Summary:       content.Summary,
		Sections:      content.Sections,
		RelatedTopics: content.RelatedTopics,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = r.slugs.Commit(ctx, title, primitive.NilObjectID, func(candidate string) error {
		topic.Slug = candidate
		return r.store.Insert(ctx, topic)
	})
	if store.IsDuplicate(err, store.FieldTitle) {
		slog.Debug("lost topic creation race", "title", title)
		return r.awaitWinner(ctx, title)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save topic %q: %w", title, err)
	}

	slog.Info("created topic", "title", topic.Title, "slug", topic.Slug)
	r.metrics.RecordTopicCreated()
	if r.onCreate != nil {
		r.onCreate(topic)
	}
	return topic, nil
}

// awaitWinner re-runs the lookup until the record that won the race shows up.
func (r *Resolver) awaitWinner(ctx context.Context, title string) (*models.Topic, error) {
	for attempt := 0; attempt < r.lookupRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(r.settleDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		topic, err := r.lookup(ctx, title)
		if err == nil {
			return r.repair(ctx, topic)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: title %q conflicted but no record became visible", store.ErrDuplicate, title)
}

func decodeIdentifier(identifier string) string {
	if decoded, err := url.PathUnescape(identifier); err == nil {
		identifier = decoded
	}
	return strings.TrimSpace(identifier)
}
