package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/pipeline"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ladle",
	Short: "Ladle - pipeline for scraped community resource data",
	Long: `Ladle turns scraped web content into a published directory of community
resources. Payloads are deduplicated on admission, aligned to HSDS
records by an LLM, validated and geocoded, reconciled into canonical
entities, and exported as versioned snapshots to a git repository.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Ladle version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(workerCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the full pipeline in one process",
	Long: `Run the HTTP API, all four queue stages, the publish schedule, and the
metrics collector in a single process.

This is the single-binary deployment. For horizontal scale, run
'ladle server' once and add 'ladle worker' processes per stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(pipeline.ServerOptions(Version))
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queue stage workers",
	Long: `Run workers for a subset of the pipeline queues. Repeat --queue to work
several stages; with no --queue every stage runs.

Examples:
  # All four stages, no API
  ladle worker

  # Only the LLM alignment stage
  ladle worker --queue llm

  # Validator and reconciler together
  ladle worker --queue validator --queue reconciler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queues, _ := cmd.Flags().GetStringSlice("queue")
		return runPipeline(pipeline.WorkerOptions(queues...))
	},
}

func init() {
	workerCmd.Flags().StringSlice("queue", nil, "Queue stage to work (repeatable)")
}

func runPipeline(opts pipeline.Options) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := pipeline.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Run(ctx)
}
