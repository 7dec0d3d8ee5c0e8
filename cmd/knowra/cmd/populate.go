package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/knowra/internal/pipeline"
)

var (
	populateFile  string
	populateDelay time.Duration
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Create topics from a list of titles",
	Long: `Resolve every title in a newline-separated file. Existing topics are
left alone; new ones are generated with a pause between them so the run
stays inside the generation rate limit. Blank lines and lines starting
with # are ignored.

Example:
  knowra populate --file topics.txt --delay 2s`,
	RunE: runPopulate,
}

func init() {
	rootCmd.AddCommand(populateCmd)

	populateCmd.Flags().StringVar(&populateFile, "file", "", "File with one title per line (required)")
	populateCmd.Flags().DurationVar(&populateDelay, "delay", 2*time.Second, "Pause after each created topic")
	populateCmd.MarkFlagRequired("file")
}

func runPopulate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(populateFile)
	if err != nil {
		return fmt.Errorf("failed to open titles file: %w", err)
	}
	titles, err := pipeline.ReadTitles(f)
	f.Close()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	fmt.Printf("Populating %d titles from %s\n", len(titles), populateFile)

	result, err := p.Populate(ctx, titles, populateDelay)
	if err != nil {
		return fmt.Errorf("populate interrupted: %w", err)
	}

	fmt.Printf("\nPopulate complete:\n")
	fmt.Printf("  Created:  %d\n", result.Created)
	fmt.Printf("  Existing: %d\n", result.Existing)
	fmt.Printf("  Failed:   %d\n", result.Failed)
	fmt.Printf("  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:\n")
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
