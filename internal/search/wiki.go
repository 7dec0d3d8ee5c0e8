package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mfenderov/knowra/pkg/models"
)

// DefaultWikiURL is the English Wikipedia action API.
const DefaultWikiURL = "https://en.wikipedia.org/w/api.php"

// WikiConfig configures the Wikipedia integration.
type WikiConfig struct {
	BaseURL string
	// PageURL prefixes page IDs to build item links.
	PageURL string
}

// Wiki searches Wikipedia.
type Wiki struct {
	client *Client
	config WikiConfig
}

// NewWiki creates the encyclopedia integration.
func NewWiki(c *Client, config WikiConfig) *Wiki {
	if config.BaseURL == "" {
		config.BaseURL = DefaultWikiURL
	}
	if config.PageURL == "" {
		config.PageURL = "https://en.wikipedia.org/?curid="
	}
	return &Wiki{client: c, config: config}
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			PageID int `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

type wikiPagesResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID    int    `json:"pageid"`
			Title     string `json:"title"`
			Extract   string `json:"extract"`
			Thumbnail struct {
				Source string `json:"source"`
			} `json:"thumbnail"`
		} `json:"pages"`
	} `json:"query"`
}

// Search finds pages for query and returns them in search rank order with
// the first paragraph of each intro as the description.
func (w *Wiki) Search(ctx context.Context, query string) ([]models.Item, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(MaxResults))
	params.Set("format", "json")

	var found wikiSearchResponse
	if err := w.client.getJSON(ctx, w.config.BaseURL+"?"+params.Encode(), nil, &found); err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	if len(found.Query.Search) == 0 {
		return []models.Item{}, nil
	}

	ids := make([]string, len(found.Query.Search))
	for i, s := range found.Query.Search {
		ids[i] = strconv.Itoa(s.PageID)
	}

	params = url.Values{}
	params.Set("action", "query")
	params.Set("pageids", strings.Join(ids, "|"))
	params.Set("prop", "extracts|pageimages")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("pithumbsize", "200")
	params.Set("format", "json")

	var pages wikiPagesResponse
	if err := w.client.getJSON(ctx, w.config.BaseURL+"?"+params.Encode(), nil, &pages); err != nil {
		return nil, fmt.Errorf("wikipedia pages: %w", err)
	}

	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		page, ok := pages.Query.Pages[id]
		if !ok {
			continue
		}
		description, _, _ := strings.Cut(page.Extract, "\n")
		items = append(items, models.Item{
			ID:          id,
			Title:       page.Title,
			URL:         w.config.PageURL + id,
			Description: strings.TrimSpace(description),
			Thumbnail:   page.Thumbnail.Source,
		})
	}
	return items, nil
}
