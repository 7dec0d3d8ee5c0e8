package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/mfenderov/knowra/internal/events"
	"github.com/mfenderov/knowra/internal/ingestion"
	"github.com/mfenderov/knowra/pkg/models"
)

// publish queues a created topic for indexing and archiving. It never
// blocks the creating request; a full queue drops the event.
func (p *Pipeline) publish(topic *models.Topic) {
	p.suggestions.Flush()
	if p.indexer == nil && p.archive == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	ev := events.NewTopicCreated(topic, time.Now().UTC())
	select {
	case p.events <- ev:
	default:
		slog.Warn("event queue full, dropping topic event", "event_id", ev.ID, "slug", topic.Slug)
	}
}

// sink consumes topic events until the channel closes.
func (p *Pipeline) sink() {
	defer close(p.sinkDone)

	indexReady := false
	bucketReady := false

	for ev := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		log := slog.With("event_id", ev.ID, "slug", ev.Topic.Slug)

		if p.indexer != nil {
			if !indexReady {
				if err := p.indexer.CreateIndex(ctx); err != nil {
					log.Warn("failed to create suggestion index", "error", err)
				} else {
					indexReady = true
				}
			}
			if indexReady {
				if err := p.indexer.IndexTopic(ctx, ev.Topic, p.embedTopic(ctx, ev.Topic)); err != nil {
					log.Warn("failed to index topic", "error", err)
				} else {
					log.Debug("indexed topic")
				}
			}
		}

		if p.archive != nil {
			if !bucketReady {
				if err := p.archive.EnsureBucket(ctx); err != nil {
					log.Warn("failed to ensure archive bucket", "error", err)
				} else {
					bucketReady = true
				}
			}
			if bucketReady {
				if err := p.archive.PutTopic(ctx, p.config.Storage.Prefix, ev.Topic); err != nil {
					log.Warn("failed to archive topic", "error", err)
				} else {
					log.Debug("archived topic")
				}
			}
		}

		cancel()
	}
}

func (p *Pipeline) embedTopic(ctx context.Context, topic *models.Topic) []float32 {
	if p.embedder == nil {
		return nil
	}
	vec, err := p.embedder.Embed(ctx, ingestion.EmbeddingText(topic))
	if err != nil {
		slog.Warn("failed to generate embedding", "slug", topic.Slug, "error", err)
		return nil
	}
	return vec
}
