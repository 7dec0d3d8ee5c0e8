package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/knowra/internal/store"
)

// PopulateResult holds the outcome of a bulk population run.
type PopulateResult struct {
	Created  int
	Existing int
	Failed   int
	Duration time.Duration
	Errors   []string
}

// ReadTitles returns the non-blank, non-comment lines of r.
func ReadTitles(r io.Reader) ([]string, error) {
	var titles []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		titles = append(titles, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read titles: %w", err)
	}
	return titles, nil
}

// Populate resolves every title, pausing delay after each creation so a
// bulk run stays inside the generation rate limit.
func (p *Pipeline) Populate(ctx context.Context, titles []string, delay time.Duration) (*PopulateResult, error) {
	start := time.Now()
	result := &PopulateResult{}

	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if _, err := p.resolver.Find(ctx, title); err == nil {
			slog.Debug("topic exists", "title", title)
			result.Existing++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", title, err))
			continue
		}

		topic, err := p.resolver.Resolve(ctx, title)
		if err != nil {
			slog.Warn("failed to create topic", "title", title, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", title, err))
			continue
		}
		slog.Info("populated topic", "title", topic.Title, "slug", topic.Slug, "progress", fmt.Sprintf("%d/%d", i+1, len(titles)))
		result.Created++

		if delay > 0 && i < len(titles)-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
