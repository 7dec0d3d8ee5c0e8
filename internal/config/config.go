package config

import "time"

// Config holds all application configuration.
type Config struct {
	Mongo         Mongo         `mapstructure:"mongo"`
	Store         Store         `mapstructure:"store"`
	LLM           LLM           `mapstructure:"llm"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
	Cache         Cache         `mapstructure:"cache"`
	Redis         Redis         `mapstructure:"redis"`
	Search        Search        `mapstructure:"search"`
	Scraper       Scraper       `mapstructure:"scraper"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	Storage       Storage       `mapstructure:"storage"`
	MCP           MCP           `mapstructure:"mcp"`
	Metrics       Metrics       `mapstructure:"metrics"`
}

// Mongo holds MongoDB connection configuration.
type Mongo struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Store selects the topic store and tunes creation races.
type Store struct {
	Driver        string        `mapstructure:"driver"` // "mongo" or "memory"
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	LookupRetries int           `mapstructure:"lookup_retries"`
}

// LLM holds generation service configuration.
type LLM struct {
	BaseURL    string        `mapstructure:"base_url"`
	SocketPath string        `mapstructure:"socket_path"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	JSONMode   bool          `mapstructure:"json_mode"`
	MaxTokens  int           `mapstructure:"max_tokens"` // 0 leaves the limit to the server
}

// RateLimit bounds generation calls per window.
type RateLimit struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// Cache configures the in-process detail cache.
type Cache struct {
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

// Redis configures the optional shared detail cache.
type Redis struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Search holds external search API configuration.
type Search struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryMax          int           `mapstructure:"retry_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxResults        int           `mapstructure:"max_results"`
	BooksURL          string        `mapstructure:"books_url"`
	BooksAPIKey       string        `mapstructure:"books_api_key"`
	VideosURL         string        `mapstructure:"videos_url"`
	VideosAPIKey      string        `mapstructure:"videos_api_key"`
	WikiURL           string        `mapstructure:"wiki_url"`
}

// Scraper holds page fetch configuration.
type Scraper struct {
	Delay     time.Duration `mapstructure:"delay"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Elasticsearch holds ES connection configuration for the suggestion index.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Embeddings holds embeddings generation configuration.
type Embeddings struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// Storage holds S3/MinIO archive configuration.
type Storage struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Prefix          string `mapstructure:"prefix"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Mongo: Mongo{
			URI:        "mongodb://localhost:27017",
			Database:   "knowra",
			Collection: "topics",
			Timeout:    10 * time.Second,
		},
		Store: Store{
			Driver:        "mongo",
			SettleDelay:   200 * time.Millisecond,
			LookupRetries: 3,
		},
		LLM: LLM{
			BaseURL:  "http://localhost:12434/engines/llama.cpp/v1",
			Model:    "ai/gemma3",
			Timeout:  2 * time.Minute,
			JSONMode: true,
		},
		RateLimit: RateLimit{
			MaxRequests: 60,
			Window:      time.Minute,
		},
		Cache: Cache{
			MaxEntries: 1000,
			MaxAge:     24 * time.Hour,
		},
		Redis: Redis{
			Enabled: false, // Optional second tier
			URL:     "redis://localhost:6379/0",
			Prefix:  "knowra:",
			TTL:     24 * time.Hour,
		},
		Search: Search{
			Timeout:           15 * time.Second,
			RetryMax:          2,
			RequestsPerSecond: 5,
			MaxResults:        9,
			BooksURL:          "https://www.googleapis.com/books/v1/volumes",
			VideosURL:         "https://api.search.brave.com/res/v1/videos/search",
			WikiURL:           "https://en.wikipedia.org/w/api.php",
		},
		Scraper: Scraper{
			Delay:     1 * time.Second,
			Timeout:   30 * time.Second,
			UserAgent: "knowra/1.0",
		},
		Elasticsearch: Elasticsearch{
			Enabled:   false,
			Addresses: []string{"http://localhost:9200"},
			Index:     "knowra-topics",
		},
		Embeddings: Embeddings{
			Enabled: false, // Requires an embedding model on the LLM endpoint
			Model:   "ai/embeddinggemma",
		},
		Storage: Storage{
			Enabled:         false,
			Endpoint:        "localhost:9002",
			Bucket:          "knowra",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
			Prefix:          "topics",
		},
		MCP: MCP{
			Name:    "knowra",
			Version: "1.0.0",
		},
	}
}
