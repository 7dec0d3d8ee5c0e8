// Package generation wraps the text-generation service with a fixed prompt
// contract and strict validation of the JSON it returns.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/internal/ratelimit"
	"github.com/mfenderov/knowra/pkg/models"
)

const (
	// MinRelated is the fewest related topics a generated topic carries.
	MinRelated = 3
	// MaxRelated caps the related topics kept from a response.
	MaxRelated = 5
)

// Completer sends a prompt to a text-generation service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Admitter gates outbound calls. *ratelimit.Limiter implements it.
type Admitter interface {
	Allow() error
}

// TopicContent is the generated body of a new topic.
type TopicContent struct {
	Summary       string
	Sections      []models.Section
	RelatedTopics []string
}

// Client issues generation requests through an admission check.
type Client struct {
	llm     Completer
	limiter Admitter
	metrics *metrics.Metrics
}

// New creates a generation client. A nil limiter admits every call.
func New(llm Completer, limiter Admitter, m *metrics.Metrics) *Client {
	return &Client{llm: llm, limiter: limiter, metrics: m}
}

// GenerateTopic produces the summary, sections and related topics for title.
// Fewer than MinRelated related topics triggers one supplementary call; if
// that fails too, FallbackRelated fills in.
func (c *Client) GenerateTopic(ctx context.Context, title string) (*TopicContent, error) {
	raw, err := c.complete(ctx, "topic", topicPrompt(title))
	if err != nil {
		return nil, err
	}

	obj, err := c.parseObject("topic", raw)
	if err != nil {
		return nil, err
	}

	summary, _ := obj["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, c.invalid("topic", shapeError("summary must be a non-empty string"))
	}

	rawSections, ok := obj["sections"].([]any)
	if !ok {
		return nil, c.invalid("topic", shapeError("sections must be a list"))
	}

	content := &TopicContent{
		Summary:       summary,
		Sections:      parseSections(rawSections),
		RelatedTopics: stringList(obj["relatedTopics"]),
	}

	if len(content.RelatedTopics) < MinRelated {
		slog.Debug("supplementing related topics", "title", title, "got", len(content.RelatedTopics))
		related, err := c.GenerateRelated(ctx, title)
		if err != nil {
			slog.Warn("related topics generation failed, using fallback", "title", title, "error", err)
			related = FallbackRelated(title)
		}
		content.RelatedTopics = related
	}
	if len(content.RelatedTopics) > MaxRelated {
		content.RelatedTopics = content.RelatedTopics[:MaxRelated]
	}

	c.metrics.RecordGeneration("topic", "ok")
	return content, nil
}

// GenerateRelated asks for exactly MinRelated related topic titles. It fails
// with ErrInvalidShape when fewer usable strings come back.
func (c *Client) GenerateRelated(ctx context.Context, title string) ([]string, error) {
	raw, err := c.complete(ctx, "related", relatedPrompt(title))
	if err != nil {
		return nil, err
	}

	v, err := decode(raw)
	if err != nil {
		c.metrics.RecordGeneration("related", "parse_error")
		return nil, err
	}

	// Tolerate {"relatedTopics": [...]} when the model ignores the array form.
	if obj, ok := v.(map[string]any); ok {
		v = obj["relatedTopics"]
	}

	related := stringList(v)
	if len(related) < MinRelated {
		return nil, c.invalid("related", shapeError("got %d related topics, want %d", len(related), MinRelated))
	}
	if len(related) > MaxRelated {
		related = related[:MaxRelated]
	}
	c.metrics.RecordGeneration("related", "ok")
	return related, nil
}

// GenerateDetail produces a deep-dive on fact within the context of title.
// A non-empty promptOverride replaces the default question; the required
// response shape is always appended.
func (c *Client) GenerateDetail(ctx context.Context, title, fact, promptOverride string) (*models.Detail, error) {
	prompt := detailPrompt(title, fact)
	if promptOverride != "" {
		prompt = promptOverride + "\n" + detailShape
	}

	raw, err := c.complete(ctx, "detail", prompt)
	if err != nil {
		return nil, err
	}

	obj, err := c.parseObject("detail", raw)
	if err != nil {
		return nil, err
	}

	caption, ok := obj["caption"].(string)
	if !ok {
		return nil, c.invalid("detail", shapeError("caption must be a string"))
	}
	if _, ok := obj["points"].([]any); !ok {
		return nil, c.invalid("detail", shapeError("points must be a list"))
	}

	c.metrics.RecordGeneration("detail", "ok")
	return &models.Detail{
		Caption: strings.TrimSpace(caption),
		Points:  stringList(obj["points"]),
	}, nil
}

// FallbackRelated returns the deterministic suggestions used when related
// topics cannot be generated.
func FallbackRelated(title string) []string {
	return []string{
		title + " basics",
		title + " fundamentals",
		title + " overview",
	}
}

func (c *Client) complete(ctx context.Context, kind, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Allow(); err != nil {
			c.metrics.RecordRateLimited()
			c.metrics.RecordGeneration(kind, "rate_limited")
			return "", err
		}
	}

	start := time.Now()
	raw, err := c.llm.Complete(ctx, prompt)
	elapsed := time.Since(start)
	c.metrics.ObserveGenerationLatency(elapsed)
	if err != nil {
		c.metrics.RecordGeneration(kind, "unavailable")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	slog.Debug("generation complete", "kind", kind, "elapsed", elapsed, "len", len(raw))
	return raw, nil
}

func (c *Client) parseObject(kind, raw string) (map[string]any, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		if errors.Is(err, ErrParse) {
			c.metrics.RecordGeneration(kind, "parse_error")
		} else {
			c.metrics.RecordGeneration(kind, "invalid_shape")
		}
		return nil, err
	}
	return obj, nil
}

func (c *Client) invalid(kind string, err error) error {
	c.metrics.RecordGeneration(kind, "invalid_shape")
	return err
}

func parseSections(raw []any) []models.Section {
	sections := make([]models.Section, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		category, _ := obj["category"].(string)
		category = strings.TrimSpace(category)
		facts := stringList(obj["facts"])
		if category == "" && len(facts) == 0 {
			continue
		}
		sections = append(sections, models.Section{Category: category, Facts: facts})
	}
	return sections
}

var _ Admitter = (*ratelimit.Limiter)(nil)
