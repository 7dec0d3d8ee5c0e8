package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the Docker Model Runner OpenAI-compatible endpoint as
// seen through its unix socket.
const DefaultBaseURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1"

// Config holds LLM client configuration.
type Config struct {
	BaseURL        string        // OpenAI-compatible API root, defaults to DefaultBaseURL
	SocketPath     string        // Unix socket path for Docker Model Runner, optional
	Model          string        // Chat model name (e.g., "ai/gemma3")
	EmbeddingModel string        // Embedding model name, empty disables Embed
	APIKey         string        // Bearer token for hosted providers
	Timeout        time.Duration // Per-request timeout, 0 means none
	JSONMode       bool          // Ask the server for a JSON object response
	MaxTokens      int           // Response token limit, 0 means none
}

// Client wraps an OpenAI-compatible chat completions and embeddings API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	embeddingModel string
	apiKey         string
	jsonMode       bool
	maxTokens      int
}

// New creates a new LLM client.
func New(config Config) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.SocketPath == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("socket path or base URL is required")
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	if config.SocketPath != "" {
		socketPath := config.SocketPath
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		apiKey:         config.APIKey,
		jsonMode:       config.JSONMode,
		maxTokens:      config.MaxTokens,
	}, nil
}

// chatRequest is the request payload for the chat completions API.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"` // Limit response length
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

// Complete sends a prompt to the LLM and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: c.maxTokens,
	}
	if c.jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var chatResp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &chatResp); err != nil {
		return "", err
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response returned")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// embeddingRequest is the request payload for the embeddings API.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the response from the embeddings API.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// MaxEmbedInputChars limits embedding input to stay within model context window.
const MaxEmbedInputChars = 20000

// Embed generates an embedding vector for the given text.
// Text exceeding MaxEmbedInputChars is truncated from the end.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, fmt.Errorf("embedding model is not configured")
	}

	originalLen := len(text)
	if len(text) > MaxEmbedInputChars {
		text = text[:MaxEmbedInputChars]
	}
	slog.Debug("generating embedding", "original_len", originalLen, "truncated_len", len(text))

	var embResp embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: c.embeddingModel, Input: text}, &embResp); err != nil {
		return nil, err
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embResp.Data[0].Embedding, nil
}

// EmbeddingsEnabled reports whether Embed can be called.
func (c *Client) EmbeddingsEnabled() bool {
	return c.embeddingModel != ""
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// Dimensions returns the expected embedding dimensions for common models.
func Dimensions(model string) int {
	switch model {
	case "ai/embeddinggemma":
		return 768
	case "ai/snowflake-arctic-embed":
		return 1024
	case "ai/qwen3-embedding":
		return 2560
	default:
		return 768
	}
}
