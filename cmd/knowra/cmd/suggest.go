package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var suggestFormat string

var suggestCmd = &cobra.Command{
	Use:   "suggest [query]",
	Short: "Find existing topics by title",
	Long: `List up to 10 existing topics whose title contains the query.

Examples:
  knowra suggest quantum
  knowra suggest "machine learn" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().StringVar(&suggestFormat, "format", "text", "Output format: text or json")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	suggestions, err := p.SearchSuggestions(ctx, args[0])
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if suggestFormat == "json" {
		return printJSON(suggestions)
	}

	if len(suggestions) == 0 {
		fmt.Println("No topics found.")
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("%-40s %s\n", s.Title, s.Slug)
	}
	return nil
}
