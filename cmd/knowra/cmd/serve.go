package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/knowra/internal/mcp"
	"github.com/mfenderov/knowra/internal/metrics"
	"github.com/mfenderov/knowra/internal/pipeline"
)

var _ mcp.Service = (*pipeline.Pipeline)(nil)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for topic learning.

The server communicates via stdio and provides five tools:
  - resolve_topic: Get or create a topic by title or slug
  - lookup_detail: Explain one fact of a topic
  - lookup_item_detail: Summarize a book, video or encyclopedia result
  - expand_section: Fetch books, videos or encyclopedia results
  - search_suggestions: Find existing topics by title

When metrics.addr is set, Prometheus metrics are served on it.

Example:
  knowra serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	if cfg.Metrics.Addr != "" && p.Registry() != nil {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, p.Registry()); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, p)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
