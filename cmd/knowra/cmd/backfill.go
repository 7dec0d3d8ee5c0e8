package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill in missing slugs and related topics",
	Long: `Assign slugs to stored topics that have none and regenerate related
topics where the list is empty.

Example:
  knowra backfill -v`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	result, err := p.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("Backfill complete:\n")
	fmt.Printf("  Slugs assigned: %d\n", result.SlugsAssigned)
	fmt.Printf("  Related filled: %d\n", result.RelatedFilled)
	fmt.Printf("  Failed: %d\n", result.Failed)
	fmt.Printf("  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:\n")
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
