package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/knowra/internal/enrichment"
	"github.com/mfenderov/knowra/internal/store"
	"github.com/mfenderov/knowra/pkg/models"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Service is the topic functionality exposed as tools.
// *pipeline.Pipeline implements it.
type Service interface {
	ResolveTopic(ctx context.Context, identifier string) (*models.Topic, error)
	LookupDetail(ctx context.Context, title, fact string) (*models.Detail, error)
	LookupItemDetail(ctx context.Context, title string, category models.Category, item models.Item) (*models.Detail, error)
	ExpandSection(ctx context.Context, identifier string, category models.Category) ([]models.Item, error)
	SearchSuggestions(ctx context.Context, query string) ([]models.Suggestion, error)
}

// Server wraps the MCP server around a topic Service.
type Server struct {
	mcpServer *server.MCPServer
	service   Service
}

// NewServer creates a new MCP server with the topic tools.
func NewServer(config Config, service Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		service:   service,
	}

	resolveTool := mcp.NewTool("resolve_topic",
		mcp.WithDescription("Get a learning guide for a topic by title or slug. Unknown topics are generated and saved. Returns the topic as JSON."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Topic title (e.g. \"Quantum Entanglement\") or slug (e.g. \"quantum-entanglement\")"),
		),
	)
	mcpServer.AddTool(resolveTool, s.resolveHandler)

	detailTool := mcp.NewTool("lookup_detail",
		mcp.WithDescription("Get a deeper explanation of one fact from a topic. Returns Markdown."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Topic title the fact belongs to"),
		),
		mcp.WithString("fact",
			mcp.Required(),
			mcp.Description("The fact to expand on"),
		),
	)
	mcpServer.AddTool(detailTool, s.detailHandler)

	itemTool := mcp.NewTool("lookup_item_detail",
		mcp.WithDescription("Get the key takeaways of a book, video or encyclopedia result attached to a topic. Returns Markdown."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Topic title the item belongs to"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Item category: books, videos or wiki"),
		),
		mcp.WithString("item_title",
			mcp.Required(),
			mcp.Description("Title of the item"),
		),
		mcp.WithString("item_id",
			mcp.Description("Item ID (videos)"),
		),
		mcp.WithString("item_url",
			mcp.Description("Item URL"),
		),
		mcp.WithString("item_description",
			mcp.Description("Item description from the search result"),
		),
		mcp.WithString("authors",
			mcp.Description("Comma-separated authors (books)"),
		),
	)
	mcpServer.AddTool(itemTool, s.itemDetailHandler)

	expandTool := mcp.NewTool("expand_section",
		mcp.WithDescription("Get books, videos or encyclopedia results for an existing topic. Results are fetched once and saved. Returns JSON."),
		mcp.WithString("identifier",
			mcp.Required(),
			mcp.Description("Topic title or slug"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Section to expand: books, videos or wiki"),
		),
	)
	mcpServer.AddTool(expandTool, s.expandHandler)

	suggestTool := mcp.NewTool("search_suggestions",
		mcp.WithDescription("Find existing topics whose title contains the query. Returns up to 10 title/slug pairs as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text"),
		),
	)
	mcpServer.AddTool(suggestTool, s.suggestHandler)

	return s, nil
}

// resolveHandler handles the resolve_topic tool call.
func (s *Server) resolveHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError("identifier parameter is required"), nil
	}

	topic, err := s.service.ResolveTopic(ctx, identifier)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve failed: %v", err)), nil
	}

	return jsonResult(topic)
}

// detailHandler handles the lookup_detail tool call.
func (s *Server) detailHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title parameter is required"), nil
	}
	fact, err := req.RequireString("fact")
	if err != nil {
		return mcp.NewToolResultError("fact parameter is required"), nil
	}

	d, err := s.service.LookupDetail(ctx, title, fact)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("detail lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(d.Markdown()), nil
}

// itemDetailHandler handles the lookup_item_detail tool call.
func (s *Server) itemDetailHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title parameter is required"), nil
	}
	category, err := requireCategory(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemTitle, err := req.RequireString("item_title")
	if err != nil {
		return mcp.NewToolResultError("item_title parameter is required"), nil
	}

	item := models.Item{
		ID:          req.GetString("item_id", ""),
		Title:       itemTitle,
		URL:         req.GetString("item_url", ""),
		Description: req.GetString("item_description", ""),
		Authors:     splitAuthors(req.GetString("authors", "")),
	}

	d, err := s.service.LookupItemDetail(ctx, title, category, item)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("item detail lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(d.Markdown()), nil
}

// expandHandler handles the expand_section tool call.
func (s *Server) expandHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier, err := req.RequireString("identifier")
	if err != nil {
		return mcp.NewToolResultError("identifier parameter is required"), nil
	}
	category, err := requireCategory(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items, err := s.service.ExpandSection(ctx, identifier, category)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("topic not found: %s (resolve it first)", identifier)), nil
	}
	if errors.Is(err, enrichment.ErrSearchFailed) {
		// The section stays unfetched; an empty list plus a hint lets the client retry.
		result, _ := jsonResult([]models.Item{})
		result.Content = append(result.Content,
			mcp.NewTextContent(fmt.Sprintf("%s results are unavailable right now, try again later", category)))
		return result, nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("expand failed: %v", err)), nil
	}

	return jsonResult(items)
}

// suggestHandler handles the search_suggestions tool call.
func (s *Server) suggestHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	suggestions, err := s.service.SearchSuggestions(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(suggestions)
}

func requireCategory(req mcp.CallToolRequest) (models.Category, error) {
	name, err := req.RequireString("category")
	if err != nil {
		return "", fmt.Errorf("category parameter is required")
	}
	return models.ParseCategory(name)
}

func splitAuthors(s string) []string {
	var authors []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
