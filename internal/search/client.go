// Package search implements the external search integrations that feed the
// enrichment categories: Google Books, Brave video search and Wikipedia.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// ErrMissingAPIKey is returned by integrations that need a key but have none.
var ErrMissingAPIKey = errors.New("API key not configured")

// MaxResults is the default number of items kept per search.
const MaxResults = 9

// HTTPConfig holds settings shared by every integration.
type HTTPConfig struct {
	Timeout           time.Duration
	RetryMax          int
	RequestsPerSecond float64 // politeness limit across all integrations
	UserAgent         string
}

// Client is the retrying, rate-limited HTTP client the integrations share.
type Client struct {
	inner     *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewClient creates a shared search client.
func NewClient(config HTTPConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "knowra/1.0"
	}

	r := retryablehttp.NewClient()
	r.RetryMax = config.RetryMax
	r.RetryWaitMin = 200 * time.Millisecond
	r.RetryWaitMax = 2 * time.Second
	r.HTTPClient.Timeout = config.Timeout
	r.Logger = slog.Default()

	return &Client{
		inner:     r,
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), int(config.RequestsPerSecond*2)),
		userAgent: config.UserAgent,
	}
}

// getJSON fetches url and decodes a JSON body into out.
func (c *Client) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
