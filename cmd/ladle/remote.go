package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ladleio/ladle/pkg/client"
	"github.com/ladleio/ladle/pkg/types"
)

// Commands below talk to a running ladle server over its HTTP API.

var apiURL string

func init() {
	submitCmd.Flags().StringP("file", "f", "", "Payload file to submit (required)")
	submitCmd.Flags().String("scraper-id", "", "Scraper identity, e.g. nyc_efap (required)")
	submitCmd.Flags().String("source-url", "", "URL the payload was scraped from")
	submitCmd.Flags().String("scraped-at", "", "Scrape time, RFC 3339 (default now)")
	_ = submitCmd.MarkFlagRequired("file")
	_ = submitCmd.MarkFlagRequired("scraper-id")

	for _, c := range []*cobra.Command{submitCmd, statsCmd, publishCmd, healthCmd} {
		c.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Ladle API address")
		rootCmd.AddCommand(c)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a scraped payload",
	Long: `Submit a scraped payload to a running ladle server.

Examples:
  # Submit one scrape result
  ladle submit -f pantries.html --scraper-id nyc_efap --source-url https://example.org/pantries`,
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	scraperID, _ := cmd.Flags().GetString("scraper-id")
	sourceURL, _ := cmd.Flags().GetString("source-url")
	scrapedAt, _ := cmd.Flags().GetString("scraped-at")

	payload, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read payload: %v", err)
	}

	meta := types.SourceMetadata{ScraperID: scraperID, SourceURL: sourceURL}
	if scrapedAt != "" {
		t, err := time.Parse(time.RFC3339, scrapedAt)
		if err != nil {
			return fmt.Errorf("invalid --scraped-at: %v", err)
		}
		meta.ScrapedAt = t
	}

	resp, err := client.New(apiURL).Submit(cmd.Context(), payload, meta)
	if err != nil {
		return fmt.Errorf("failed to submit: %v", err)
	}

	if resp.Deduplicated {
		fmt.Printf("Payload already known (job %s)\n", resp.JobID)
	} else {
		fmt.Printf("✓ Payload accepted (job %s)\n", resp.JobID)
	}
	fmt.Printf("  Hash: %s\n", resp.Hash)
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pipeline statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client.New(apiURL).Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %v", err)
		}

		fmt.Println("Content store:")
		fmt.Printf("  Total: %d (%d bytes)\n", stats.Content.Total, stats.Content.Bytes)
		fmt.Printf("  New: %d  Pending: %d  Completed: %d  Failed: %d\n",
			stats.Content.New, stats.Content.Pending, stats.Content.Completed, stats.Content.Failed)

		names := make([]string, 0, len(stats.Queues))
		for name := range stats.Queues {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("Queues:")
		for _, name := range names {
			d := stats.Queues[name]
			fmt.Printf("  %-14s ready=%d delayed=%d in_flight=%d dead=%d\n",
				name, d.Ready, d.Delayed, d.InFlight, d.Dead)
		}
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Trigger a publish cycle now",
	Long: `Ask the server to run one publish cycle immediately instead of waiting
for the schedule. Blocks until the cycle finishes, so expect the
duration of a full export plus a git push.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Publishing...")
		rec, err := client.New(apiURL).Publish(cmd.Context())
		if err != nil {
			return fmt.Errorf("publish failed: %v", err)
		}

		fmt.Printf("✓ Snapshot published at %s\n", rec.PublishedAt.Format(time.RFC3339))
		if rec.Commit != "" {
			fmt.Printf("  Commit: %s\n", rec.Commit)
		}
		fmt.Printf("  Rows: %d (orgs=%d locations=%d services=%d links=%d schedules=%d)\n",
			rec.Counts.Total(), rec.Counts.Organizations, rec.Counts.Locations,
			rec.Counts.Services, rec.Counts.ServiceAtLocations, rec.Counts.Schedules)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := client.New(apiURL).Healthz(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to reach server: %v", err)
		}

		fmt.Printf("Status: %s\n", h.Status)
		if h.Version != "" {
			fmt.Printf("Version: %s\n", h.Version)
		}

		names := make([]string, 0, len(h.Checks))
		for name := range h.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %s\n", name, h.Checks[name])
		}

		if h.Status != "healthy" {
			os.Exit(1)
		}
		return nil
	},
}
