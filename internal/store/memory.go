package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mfenderov/knowra/pkg/models"
)

// Memory is an in-process Store with the same uniqueness rules as Mongo.
type Memory struct {
	mu     sync.RWMutex
	topics map[primitive.ObjectID]*models.Topic
	order  []primitive.ObjectID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{topics: make(map[primitive.ObjectID]*models.Topic)}
}

func (m *Memory) FindBySlug(_ context.Context, slug string) (*models.Topic, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if t := m.topics[id]; t.Slug == slug {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindByTitle(_ context.Context, title string) (*models.Topic, error) {
	key := models.NormalizeTitle(title)
	if key == "" {
		return nil, ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if t := m.topics[id]; titleKeyOf(t) == key {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Insert(_ context.Context, topic *models.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.NormalizeTitle(topic.Title)
	for _, id := range m.order {
		existing := m.topics[id]
		if titleKeyOf(existing) == key {
			return &DuplicateError{Field: FieldTitle, Value: topic.Title}
		}
		if topic.Slug != "" && existing.Slug == topic.Slug {
			return &DuplicateError{Field: FieldSlug, Value: topic.Slug}
		}
	}

	if topic.ID.IsZero() {
		topic.ID = primitive.NewObjectID()
	} else if _, taken := m.topics[topic.ID]; taken {
		return fmt.Errorf("topic id %s already exists", topic.ID.Hex())
	}
	topic.TitleKey = key
	stored := topic.Clone()
	m.topics[topic.ID] = stored
	m.order = append(m.order, topic.ID)
	return nil
}

func (m *Memory) SetSlug(_ context.Context, id primitive.ObjectID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[id]
	if !ok {
		return ErrNotFound
	}
	for otherID, other := range m.topics {
		if otherID != id && other.Slug == slug {
			return &DuplicateError{Field: FieldSlug, Value: slug}
		}
	}
	t.Slug = slug
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetRelated(_ context.Context, id primitive.ObjectID, related []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[id]
	if !ok {
		return ErrNotFound
	}
	t.RelatedTopics = append([]string(nil), related...)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetEnrichment(_ context.Context, id primitive.ObjectID, category models.Category, set models.ItemSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[id]
	if !ok {
		return ErrNotFound
	}
	set.Items = append([]models.Item{}, set.Items...)
	t.Enrichment.Set(category, set)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SlugTaken(_ context.Context, slug string, except primitive.ObjectID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, t := range m.topics {
		if id != except && t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Suggest(_ context.Context, query string, limit int) ([]models.Suggestion, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	m.mu.RLock()
	var out []models.Suggestion
	for _, id := range m.order {
		t := m.topics[id]
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, models.Suggestion{Title: t.Title, Slug: t.Slug})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListMissingSlugs(_ context.Context) ([]*models.Topic, error) {
	return m.list(func(t *models.Topic) bool { return strings.TrimSpace(t.Slug) == "" }), nil
}

func (m *Memory) ListMissingRelated(_ context.Context) ([]*models.Topic, error) {
	return m.list(func(t *models.Topic) bool { return len(t.RelatedTopics) == 0 }), nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Put stores topic as-is, bypassing uniqueness checks. Tests use it to seed
// legacy records.
func (m *Memory) Put(topic *models.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic.ID.IsZero() {
		topic.ID = primitive.NewObjectID()
	}
	if _, ok := m.topics[topic.ID]; !ok {
		m.order = append(m.order, topic.ID)
	}
	m.topics[topic.ID] = topic.Clone()
}

// Len returns the number of stored topics.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics)
}

func (m *Memory) list(match func(*models.Topic) bool) []*models.Topic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Topic
	for _, id := range m.order {
		if t := m.topics[id]; match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// titleKeyOf falls back to normalizing the title for records stored without a key.
func titleKeyOf(t *models.Topic) string {
	if t.TitleKey != "" {
		return t.TitleKey
	}
	return models.NormalizeTitle(t.Title)
}
