// Package ingestion restores archived topic snapshots into the store and
// re-indexes them for suggestions.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/knowra/internal/slug"
	"github.com/mfenderov/knowra/internal/store"
	"github.com/mfenderov/knowra/pkg/models"
)

// Archive reads topic snapshots. *storage.Client implements it.
type Archive interface {
	ListTopics(ctx context.Context, prefix string) ([]string, error)
	GetTopic(ctx context.Context, objectName string) (*models.Topic, error)
}

// Indexer writes topics to the suggestion index. *elasticsearch.Client
// implements it.
type Indexer interface {
	CreateIndex(ctx context.Context) error
	IndexTopic(ctx context.Context, topic *models.Topic, embedding []float32) error
	Refresh(ctx context.Context) error
}

// Embedder turns topic text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result holds restore execution results.
type Result struct {
	Prefix   string
	Restored int
	Skipped  int
	Indexed  int
	Duration time.Duration
	Errors   []string
}

// Engine reads topic snapshots from S3, writes them to the store and
// indexes them in Elasticsearch.
type Engine struct {
	archive  Archive
	store    store.Store
	slugs    *slug.Allocator
	indexer  Indexer  // nil if Elasticsearch disabled
	embedder Embedder // nil if embeddings disabled
}

// New creates a new restore engine.
func New(archive Archive, s store.Store, indexer Indexer, embedder Embedder) *Engine {
	return &Engine{
		archive:  archive,
		store:    s,
		slugs:    slug.NewAllocator(s),
		indexer:  indexer,
		embedder: embedder,
	}
}

// Restore processes all snapshots under prefix. Topics whose title already
// exists are skipped; a snapshot slug held by another topic is replaced by
// a freshly allocated one.
func (e *Engine) Restore(ctx context.Context, prefix string) (*Result, error) {
	start := time.Now()
	result := &Result{Prefix: prefix}

	slog.Info("starting restore", "prefix", prefix)

	if e.indexer != nil {
		if err := e.indexer.CreateIndex(ctx); err != nil {
			return nil, err
		}
	}

	names, err := e.archive.ListTopics(ctx, prefix)
	if err != nil {
		return nil, err
	}

	slog.Info("found snapshots to restore", "count", len(names))

	for _, name := range names {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}

		topic, err := e.archive.GetTopic(ctx, name)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		restored, err := e.restoreTopic(ctx, topic)
		if err != nil {
			slog.Error("failed to restore topic", "object", name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if !restored {
			slog.Debug("topic already present", "title", topic.Title)
			result.Skipped++
			continue
		}
		result.Restored++

		if e.indexer != nil {
			if err := e.indexer.IndexTopic(ctx, topic, e.embed(ctx, topic)); err != nil {
				slog.Warn("failed to index restored topic", "slug", topic.Slug, "error", err)
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.Indexed++
			}
		}
	}

	if e.indexer != nil {
		e.indexer.Refresh(ctx)
	}

	result.Duration = time.Since(start)
	slog.Info("restore complete",
		"prefix", prefix,
		"restored", result.Restored,
		"skipped", result.Skipped,
		"duration", result.Duration,
		"errors", len(result.Errors))

	return result, nil
}

// restoreTopic inserts topic and reports false when its title is taken.
func (e *Engine) restoreTopic(ctx context.Context, topic *models.Topic) (bool, error) {
	if topic.Title == "" {
		return false, fmt.Errorf("snapshot has no title")
	}

	if topic.Slug != "" {
		err := e.store.Insert(ctx, topic)
		switch {
		case err == nil:
			return true, nil
		case store.IsDuplicate(err, store.FieldTitle):
			return false, nil
		case !store.IsDuplicate(err, store.FieldSlug):
			return false, err
		}
		slog.Debug("snapshot slug taken, allocating a new one", "slug", topic.Slug)
	}

	_, err := e.slugs.Commit(ctx, topic.Title, topic.ID, func(candidate string) error {
		topic.Slug = candidate
		return e.store.Insert(ctx, topic)
	})
	if store.IsDuplicate(err, store.FieldTitle) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// embed returns the topic embedding, or nil when embeddings are disabled
// or fail.
func (e *Engine) embed(ctx context.Context, topic *models.Topic) []float32 {
	if e.embedder == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, EmbeddingText(topic))
	if err != nil {
		slog.Warn("failed to generate embedding", "slug", topic.Slug, "error", err)
		return nil
	}
	return vec
}

// EmbeddingText is the text embedded for a topic.
func EmbeddingText(topic *models.Topic) string {
	if topic.Summary == "" {
		return topic.Title
	}
	return topic.Title + "\n\n" + topic.Summary
}
