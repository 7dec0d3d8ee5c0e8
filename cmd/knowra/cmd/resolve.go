package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/knowra/pkg/models"
)

var resolveFormat string

var resolveCmd = &cobra.Command{
	Use:   "resolve [title or slug]",
	Short: "Get or create a topic",
	Long: `Look a topic up by slug or title, generating and saving it when it
does not exist yet.

Examples:
  # Create or fetch by title
  knowra resolve "Quantum Entanglement"

  # Fetch by slug, JSON output for scripting
  knowra resolve quantum-entanglement --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveFormat, "format", "text", "Output format: text or json")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	topic, err := p.ResolveTopic(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	if resolveFormat == "json" {
		return printJSON(topic)
	}
	printTopic(topic)
	return nil
}

func printTopic(topic *models.Topic) {
	fmt.Printf("# %s\n", topic.Title)
	fmt.Printf("Slug: %s\n\n", topic.Slug)
	fmt.Printf("%s\n", topic.Summary)

	for _, section := range topic.Sections {
		fmt.Printf("\n## %s\n", section.Category)
		for _, fact := range section.Facts {
			fmt.Printf("- %s\n", fact)
		}
	}

	if len(topic.RelatedTopics) > 0 {
		fmt.Printf("\nRelated: %s\n", strings.Join(topic.RelatedTopics, ", "))
	}
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
