package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// KNOWRA_MONGO_URI -> mongo.uri.
const EnvPrefix = "KNOWRA"

// envKeys lists the nested keys bound to environment variables.
var envKeys = []string{
	"mongo.uri", "mongo.database", "mongo.collection", "mongo.timeout",
	"store.driver", "store.settle_delay", "store.lookup_retries",
	"llm.base_url", "llm.socket_path", "llm.model", "llm.api_key", "llm.timeout", "llm.json_mode", "llm.max_tokens",
	"rate_limit.max_requests", "rate_limit.window",
	"cache.max_entries", "cache.max_age",
	"redis.enabled", "redis.url", "redis.prefix", "redis.ttl",
	"search.timeout", "search.retry_max", "search.requests_per_second", "search.max_results",
	"search.books_url", "search.books_api_key", "search.videos_url", "search.videos_api_key", "search.wiki_url",
	"scraper.delay", "scraper.timeout", "scraper.user_agent",
	"elasticsearch.enabled", "elasticsearch.addresses", "elasticsearch.index",
	"elasticsearch.username", "elasticsearch.password",
	"embeddings.enabled", "embeddings.model",
	"storage.enabled", "storage.endpoint", "storage.bucket", "storage.access_key_id",
	"storage.secret_access_key", "storage.use_ssl", "storage.prefix",
	"mcp.name", "mcp.version",
	"metrics.addr",
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load builds the configuration from defaults, an optional config file,
// a .env file in the working directory and the environment, in increasing
// order of precedence. An empty cfgFile searches ./config, /etc/knowra and
// the working directory for config.yaml.
func Load(cfgFile string) (Config, error) {
	cfg := Defaults()

	// A .env file never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/knowra")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested env vars
	for _, key := range envKeys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return cfg, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file - use defaults + env vars
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv(EnvName("elasticsearch.addresses")); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}

	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.max_requests and rate_limit.window must be positive")
	}
	if c.Embeddings.Enabled && c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model is required when embeddings are enabled")
	}
	return nil
}
