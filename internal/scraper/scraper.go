// Package scraper fetches single web pages for item deep-dives.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config holds scraper configuration.
type Config struct {
	Delay     time.Duration // minimum gap between requests to one domain
	UserAgent string
	Timeout   time.Duration
}

// Page is one fetched document.
type Page struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
	FetchedAt   time.Time
}

// Scraper fetches web pages.
type Scraper struct {
	config Config
}

// New creates a new Scraper with the given configuration.
func New(config Config) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "knowra/1.0"
	}
	return &Scraper{config: config}
}

// Fetch downloads url without following links. Redirects are followed.
func (s *Scraper) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.UserAgent(s.config.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.config.Timeout)
	if s.config.Delay > 0 {
		c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: s.config.Delay, Parallelism: 1})
	}

	var page *Page
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("fetch cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:         r.Request.URL.String(),
			HTML:        string(r.Body),
			ContentType: r.Headers.Get("Content-Type"),
			StatusCode:  r.StatusCode,
			FetchedAt:   time.Now(),
		}
		slog.Debug("fetched page", "url", page.URL, "size", len(page.HTML))
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, fetchErr)
	}
	if page == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch %s: no response", url)
	}
	return page, nil
}
