package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mfenderov/knowra/pkg/models"
)

// DefaultVideosURL is the Brave video search endpoint.
const DefaultVideosURL = "https://api.search.brave.com/res/v1/videos/search"

// VideosConfig configures the Brave video integration.
type VideosConfig struct {
	BaseURL    string
	APIKey     string
	MaxResults int
}

// Videos searches Brave for videos.
type Videos struct {
	client *Client
	config VideosConfig
}

// NewVideos creates the video integration.
func NewVideos(c *Client, config VideosConfig) *Videos {
	if config.BaseURL == "" {
		config.BaseURL = DefaultVideosURL
	}
	if config.MaxResults <= 0 {
		config.MaxResults = MaxResults
	}
	return &Videos{client: c, config: config}
}

type braveVideoResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Age         string `json:"age"`
		Thumbnail   struct {
			Src string `json:"src"`
		} `json:"thumbnail"`
		Video struct {
			Creator   string `json:"creator"`
			Publisher string `json:"publisher"`
		} `json:"video"`
	} `json:"results"`
}

// Search returns videos matching query. The result URL doubles as the item
// ID since Brave has no separate video ID.
func (v *Videos) Search(ctx context.Context, query string) ([]models.Item, error) {
	if v.config.APIKey == "" {
		return nil, fmt.Errorf("brave videos: %w", ErrMissingAPIKey)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(v.config.MaxResults))
	params.Set("search_lang", "en")
	params.Set("safesearch", "moderate")

	headers := map[string]string{"X-Subscription-Token": v.config.APIKey}

	var resp braveVideoResponse
	if err := v.client.getJSON(ctx, v.config.BaseURL+"?"+params.Encode(), headers, &resp); err != nil {
		return nil, fmt.Errorf("brave videos: %w", err)
	}

	items := make([]models.Item, 0, len(resp.Results))
	for _, r := range resp.Results {
		channel := r.Video.Creator
		if channel == "" {
			channel = r.Video.Publisher
		}
		items = append(items, models.Item{
			ID:          r.URL,
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			Thumbnail:   r.Thumbnail.Src,
			Channel:     channel,
			Published:   r.Age,
		})
		if len(items) == v.config.MaxResults {
			break
		}
	}
	return items, nil
}
