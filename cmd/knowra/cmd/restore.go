package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var restorePrefix string

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore topics from the snapshot archive",
	Long: `Read topic snapshots from S3 back into the store. Topics whose title
already exists are skipped. Restored topics are re-indexed when the
suggestion index is enabled.

Examples:
  # Restore from the configured prefix
  knowra restore

  # Restore a specific prefix
  knowra restore --prefix backups/2025-06-01`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restorePrefix, "prefix", "", "S3 prefix to restore (default storage.prefix)")
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Debug("restore command starting", "prefix", restorePrefix)

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	result, err := p.Restore(ctx, restorePrefix)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	fmt.Printf("Restore complete:\n")
	fmt.Printf("  Prefix: %s\n", result.Prefix)
	fmt.Printf("  Restored: %d\n", result.Restored)
	fmt.Printf("  Skipped: %d\n", result.Skipped)
	fmt.Printf("  Indexed: %d\n", result.Indexed)
	fmt.Printf("  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
