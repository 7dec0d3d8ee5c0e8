package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mfenderov/knowra/pkg/models"
)

// DefaultBooksURL is the Google Books volumes endpoint.
const DefaultBooksURL = "https://www.googleapis.com/books/v1/volumes"

// BooksConfig configures the Google Books integration.
type BooksConfig struct {
	BaseURL    string
	APIKey     string
	MaxResults int
}

// Books searches Google Books.
type Books struct {
	client *Client
	config BooksConfig
}

// NewBooks creates the written-media integration.
func NewBooks(c *Client, config BooksConfig) *Books {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBooksURL
	}
	if config.MaxResults <= 0 {
		config.MaxResults = MaxResults
	}
	return &Books{client: c, config: config}
}

type volumesResponse struct {
	Items []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			PublishedDate string   `json:"publishedDate"`
			Description   string   `json:"description"`
			InfoLink      string   `json:"infoLink"`
			ImageLinks    struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Search returns volumes matching query. Volumes without a description are
// skipped.
func (b *Books) Search(ctx context.Context, query string) ([]models.Item, error) {
	if b.config.APIKey == "" {
		return nil, fmt.Errorf("google books: %w", ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(b.config.MaxResults))
	params.Set("key", b.config.APIKey)

	var resp volumesResponse
	if err := b.client.getJSON(ctx, b.config.BaseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("google books: %w", err)
	}

	items := make([]models.Item, 0, len(resp.Items))
	for _, v := range resp.Items {
		info := v.VolumeInfo
		if info.Description == "" {
			continue
		}
		authors := info.Authors
		if len(authors) == 0 {
			authors = []string{"Unknown Author"}
		}
		items = append(items, models.Item{
			ID:          v.ID,
			Title:       info.Title,
			URL:         info.InfoLink,
			Description: info.Description,
			Thumbnail:   strings.Replace(info.ImageLinks.Thumbnail, "zoom=1", "zoom=2", 1),
			Authors:     authors,
			Published:   year(info.PublishedDate),
		})
		if len(items) == b.config.MaxResults {
			break
		}
	}
	return items, nil
}

// year extracts the leading year of a "YYYY", "YYYY-MM" or "YYYY-MM-DD" date.
func year(date string) string {
	if len(date) >= 4 {
		if _, err := strconv.Atoi(date[:4]); err == nil {
			return date[:4]
		}
	}
	return ""
}
