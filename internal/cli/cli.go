// Package cli wires the conferencebot command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"conferencebot/internal/app"
	"conferencebot/internal/catalog"
	"conferencebot/internal/config"
	"conferencebot/internal/discovery"
	"conferencebot/internal/models"
)

// ExitError is the process status when a command fails
const ExitError = 1

// NewRootCmd creates the root command. Without a subcommand it runs the bot.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "conferencebot",
		Short:         "Telegram bot for discovering QA and IT conferences",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	cmd.AddCommand(newServeCmd(), newDiscoverCmd(), newMigrateCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (polling or webhook, per WEBHOOK_MODE)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadEnv()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}

type discoverOptions struct {
	feedURL   string
	format    string
	earlyBird bool
	merge     string
	verbose   bool
}

func newDiscoverCmd() *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Fetch the conference feed once and print the relevant conferences",
		Long: `Fetch the conference feed once, keep conferences in known countries and
directions, and print them. With --merge the new ones are added to a catalog file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.feedURL, "feed", os.Getenv("DISCOVERY_URL"), "Conference feed URL (default confs.tech)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.earlyBird, "early-bird", false, "Probe conference pages for early-bird tickets")
	cmd.Flags().StringVar(&opts.merge, "merge", "", "Catalog file to merge discovered conferences into")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	return cmd
}

func runDiscover(cmd *cobra.Command, opts *discoverOptions) error {
	format := strings.ToLower(opts.format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", opts.format)
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := config.NewLogger("debug", "development")
		if err != nil {
			return err
		}
		logger = l
	}

	client := discovery.NewClient(opts.feedURL, opts.earlyBird, logger)
	found, err := client.Fetch(cmd.Context())
	if err != nil {
		return err
	}

	conferences := found
	if opts.merge != "" {
		cat, err := catalog.Load(opts.merge)
		if err != nil {
			return err
		}
		conferences = cat.Merge(found)
		if err := cat.Save(); err != nil {
			return fmt.Errorf("saving catalog: %w", err)
		}
		logger.Info("Merged into catalog",
			zap.String("path", opts.merge),
			zap.Int("added", len(conferences)),
			zap.Int("total", cat.Len()),
		)
	}

	return writeConferences(cmd.OutOrStdout(), conferences, format)
}

func writeConferences(w io.Writer, conferences []models.Conference, format string) error {
	if format == "json" {
		if conferences == nil {
			conferences = []models.Conference{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conferences)
	}

	if len(conferences) == 0 {
		_, err := fmt.Fprintln(w, "No new conferences found.")
		return err
	}
	for _, c := range conferences {
		early := ""
		if c.EarlyBird {
			early = " [early bird]"
		}
		if _, err := fmt.Fprintf(w, "%s  %-8s %-12s %s (%s)%s\n  %s\n",
			c.Date, c.Country, strings.Join(c.Topics, ","), c.Name, c.Location, early, c.URL); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
