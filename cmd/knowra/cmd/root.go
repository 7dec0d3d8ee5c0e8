package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfenderov/knowra/internal/config"
	"github.com/mfenderov/knowra/internal/pipeline"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	cfgErr  error
)

// GetConfig returns the loaded configuration.
func GetConfig() (config.Config, error) {
	return cfg, cfgErr
}

var rootCmd = &cobra.Command{
	Use:   "knowra",
	Short: "Knowra: generated learning guides for any topic",
	Long: `Knowra turns a topic title into a learning guide: a summary, fact
sections and related topics, generated once and stored. Facts and attached
books, videos and encyclopedia articles can be expanded into deep-dives.

Commands:
  serve     Start the MCP server
  resolve   Get or create a topic
  detail    Explain one fact of a topic
  expand    Fetch books, videos or encyclopedia results for a topic
  suggest   Find existing topics by title
  populate  Create topics from a list of titles
  backfill  Fill in missing slugs and related topics
  restore   Restore topics from the snapshot archive`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// initializers run before every command. The logger comes first so that
// warnings raised while loading the configuration use its level and format.
var initializers = []func(){initLogger, initConfig}

// logOutput receives the structured log stream.
var logOutput io.Writer = os.Stderr

func init() {
	cobra.OnInitialize(initializers...)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	cfg, cfgErr = config.Load(cfgFile)
}

// openPipeline loads the configuration and connects every backend.
func openPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	loaded, err := GetConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := pipeline.Assemble(ctx, loaded)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return p, nil
}

func closePipeline(p *pipeline.Pipeline) {
	if err := p.Close(); err != nil {
		slog.Warn("failed to close pipeline", "error", err)
	}
}
