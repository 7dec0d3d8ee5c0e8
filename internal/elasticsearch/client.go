package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/knowra/pkg/models"
)

// DefaultDimensions matches the default embedding model.
const DefaultDimensions = 768

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses  []string
	Index      string
	Username   string
	Password   string
	Dimensions int // embedding vector size, DefaultDimensions when zero
}

// Client wraps the Elasticsearch client with topic suggestion operations.
type Client struct {
	es         *elasticsearch.Client
	index      string
	dimensions int
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index is required")
	}
	if config.Dimensions <= 0 {
		config.Dimensions = DefaultDimensions
	}

	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:         es,
		index:      config.Index,
		dimensions: config.Dimensions,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping defines the ES index mapping for topic documents.
// title_key is a lowercased keyword copy used for substring matches.
const indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"title": { "type": "text" },
			"title_key": { "type": "keyword" },
			"slug": { "type": "keyword" },
			"summary": { "type": "text", "analyzer": "english" },
			"related_topics": { "type": "text" },
			"created_at": { "type": "date" },
			"embedding": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			}
		}
	}
}`

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(fmt.Sprintf(indexMapping, c.dimensions))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// topicDocument is the indexed form of a topic.
type topicDocument struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TitleKey      string    `json:"title_key"`
	Slug          string    `json:"slug"`
	Summary       string    `json:"summary,omitempty"`
	RelatedTopics []string  `json:"related_topics,omitempty"`
	CreatedAt     string    `json:"created_at,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

func newTopicDocument(topic *models.Topic, embedding []float32) topicDocument {
	doc := topicDocument{
		ID:            topic.ID.Hex(),
		Title:         topic.Title,
		TitleKey:      models.NormalizeTitle(topic.Title),
		Slug:          topic.Slug,
		Summary:       topic.Summary,
		RelatedTopics: topic.RelatedTopics,
		Embedding:     embedding,
	}
	if !topic.CreatedAt.IsZero() {
		doc.CreatedAt = topic.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return doc
}

// IndexTopic indexes a topic under its slug. A nil embedding indexes the
// topic for text suggestions only.
func (c *Client) IndexTopic(ctx context.Context, topic *models.Topic, embedding []float32) error {
	if topic.Slug == "" {
		return fmt.Errorf("topic %q has no slug", topic.Title)
	}

	data, err := json.Marshal(newTopicDocument(topic, embedding))
	if err != nil {
		return fmt.Errorf("failed to marshal topic: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(topic.Slug),
	)
	if err != nil {
		return fmt.Errorf("failed to index topic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing topic (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source topicDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// textQuery matches titles containing query (any case) and boosts
// phrase-prefix matches so typeahead ranks them first.
func textQuery(query string) map[string]interface{} {
	key := models.NormalizeTitle(query)
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"should": []map[string]interface{}{
				{
					"match_phrase_prefix": map[string]interface{}{
						"title": map[string]interface{}{"query": query, "boost": 2},
					},
				},
				{
					"wildcard": map[string]interface{}{
						"title_key": map[string]interface{}{
							"value":            "*" + escapeWildcard(key) + "*",
							"case_insensitive": true,
						},
					},
				},
			},
			"minimum_should_match": 1,
		},
	}
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

// Suggest returns up to limit topics whose title contains query.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	searchQuery := map[string]interface{}{
		"query":   textQuery(query),
		"size":    limit,
		"_source": []string{"title", "slug"},
	}
	return c.search(ctx, searchQuery, "suggest")
}

// HybridSuggest combines the title match with a kNN query over topic
// embeddings using reciprocal rank fusion. If queryEmbedding is nil, falls
// back to Suggest.
func (c *Client) HybridSuggest(ctx context.Context, query string, queryEmbedding []float32, limit int) ([]models.Suggestion, error) {
	if queryEmbedding == nil {
		return c.Suggest(ctx, query, limit)
	}

	searchQuery := map[string]interface{}{
		"retriever": map[string]interface{}{
			"rrf": map[string]interface{}{
				"retrievers": []map[string]interface{}{
					{
						"standard": map[string]interface{}{
							"query": textQuery(query),
						},
					},
					{
						"knn": map[string]interface{}{
							"field":          "embedding",
							"query_vector":   queryEmbedding,
							"k":              limit,
							"num_candidates": limit * 2,
						},
					},
				},
			},
		},
		"size":    limit,
		"_source": []string{"title", "slug"},
	}
	return c.search(ctx, searchQuery, "hybrid suggest")
}

func (c *Client) search(ctx context.Context, searchQuery map[string]interface{}, op string) ([]models.Suggestion, error) {
	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%s error: %s", op, res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]models.Suggestion, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		out[i] = models.Suggestion{Title: hit.Source.Title, Slug: hit.Source.Slug}
	}
	return out, nil
}
