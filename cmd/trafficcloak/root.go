package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
)

// NewRootCmd creates the root command for trafficcloak.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trafficcloak",
		Short: "Decoy browsing traffic generator",
		Long: `trafficcloak drives synthetic, human-like browsing sessions against public
sites to blur the profile that observers build from your real traffic.

Each cycle resolves a random popular domain, submits a synthesized query to
a search engine and wanders through a few result links, then wanders through
random wiki pages. Sessions rotate through the proxies in PROXIES or
PROXIES_FILE and are recorded in a local history database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .trafficcloak in current or home directory)")
	cmd.PersistentFlags().String("log-file", "", "Append log output to this file instead of stderr")
	cmd.PersistentFlags().Bool("json-log", false, "Write log output as JSON lines")
	cmd.PersistentFlags().StringP("data-dir", "D", config.DefaultDataDir,
		"Directory holding the corpus, word pools, top-sites CSV and list files")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the session history database")
	cmd.PersistentFlags().Bool("no-save", false, "Do not record sessions in the history database")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewLookupCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
