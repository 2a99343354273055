// Package cmd defines the CLI commands for the crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seriously-crawler",
		Short: "A polite, concurrent web-crawl orchestration engine.",
		Long: `seriously-crawler runs bounded crawl sessions against a set of seed
URLs. It maintains a priority frontier with URL deduplication, honors
robots.txt with per-domain rate limiting, and persists pages and failures
to the configured storage backend.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default reads CRAWLER_* environment variables)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
