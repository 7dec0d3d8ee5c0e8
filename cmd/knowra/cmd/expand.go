package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/knowra/internal/enrichment"
	"github.com/mfenderov/knowra/internal/pipeline"
	"github.com/mfenderov/knowra/pkg/models"
)

var (
	expandCategory string
	expandFormat   string
	expandStatus   bool
)

var expandCmd = &cobra.Command{
	Use:   "expand [title or slug]",
	Short: "Fetch books, videos or encyclopedia results for a topic",
	Long: `Expand one enrichment section of an existing topic. Results are
fetched from the external source once and saved with the topic.

Examples:
  knowra expand quantum-entanglement --category books
  knowra expand "Quantum Entanglement" --category wiki --format json
  knowra expand quantum-entanglement --category all
  knowra expand quantum-entanglement --status`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

func init() {
	rootCmd.AddCommand(expandCmd)

	expandCmd.Flags().StringVar(&expandCategory, "category", "", "Section to expand: books, videos, wiki or all")
	expandCmd.Flags().StringVar(&expandFormat, "format", "text", "Output format: text or json")
	expandCmd.Flags().BoolVar(&expandStatus, "status", false, "Show the state of each section without fetching")
	expandCmd.MarkFlagsOneRequired("category", "status")
}

func runExpand(cmd *cobra.Command, args []string) error {
	all := strings.EqualFold(expandCategory, "all")

	var category models.Category
	if !expandStatus && !all {
		c, err := models.ParseCategory(expandCategory)
		if err != nil {
			return err
		}
		category = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	switch {
	case expandStatus:
		return printSectionStates(ctx, p, args[0])

	case all:
		sections, err := p.ExpandAllSections(ctx, args[0])
		if err != nil {
			return fmt.Errorf("expand failed: %w", err)
		}
		if expandFormat == "json" {
			return printJSON(sections)
		}
		for _, c := range models.Categories {
			items, ok := sections[c]
			if !ok {
				fmt.Printf("%s: unavailable, try again later\n\n", c)
				continue
			}
			printItems(c, items)
		}
		return nil
	}

	items, err := p.ExpandSection(ctx, args[0], category)
	if errors.Is(err, enrichment.ErrSearchFailed) {
		slog.Warn("section unavailable", "category", category, "error", err)
		if expandFormat == "json" {
			return printJSON([]models.Item{})
		}
		fmt.Printf("%s: unavailable, try again later\n\n", category)
		return nil
	}
	if err != nil {
		return fmt.Errorf("expand failed: %w", err)
	}

	if expandFormat == "json" {
		return printJSON(items)
	}
	printItems(category, items)
	return nil
}

func printSectionStates(ctx context.Context, p *pipeline.Pipeline, identifier string) error {
	for _, category := range models.Categories {
		state, err := p.SectionState(ctx, identifier, category)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		fmt.Printf("%-7s %s\n", category, state)
	}
	return nil
}

func printItems(category models.Category, items []models.Item) {
	if len(items) == 0 {
		fmt.Printf("No %s found.\n\n", category)
		return
	}

	fmt.Printf("Found %d %s:\n\n", len(items), category)
	for i, item := range items {
		fmt.Printf("─── %d ───\n", i+1)
		fmt.Printf("Title:   %s\n", item.Title)
		fmt.Printf("URL:     %s\n", item.URL)
		if len(item.Authors) > 0 {
			fmt.Printf("Authors: %s\n", strings.Join(item.Authors, ", "))
		}
		if item.Channel != "" {
			fmt.Printf("Channel: %s\n", item.Channel)
		}

		description := item.Description
		if len(description) > 300 {
			description = description[:300] + "..."
		}
		if description != "" {
			fmt.Printf("%s\n", description)
		}
		fmt.Println()
	}
}
