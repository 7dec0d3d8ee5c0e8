package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var detailCmd = &cobra.Command{
	Use:   "detail [topic title] [fact]",
	Short: "Explain one fact of a topic",
	Long: `Generate a deep-dive for one fact of a topic. Answers are cached, so
asking again returns the same explanation.

Example:
  knowra detail "Quantum Entanglement" "Entangled particles share one state"`,
	Args: cobra.ExactArgs(2),
	RunE: runDetail,
}

func init() {
	rootCmd.AddCommand(detailCmd)
}

func runDetail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	d, err := p.LookupDetail(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("detail lookup failed: %w", err)
	}

	fmt.Println(d.Markdown())
	return nil
}
