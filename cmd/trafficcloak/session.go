package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
	"github.com/nao1215/trafficcloak/internal/model"
	"github.com/nao1215/trafficcloak/internal/pipeline"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search session",
		Long: `Search synthesizes a query from the corpus, submits it to the search
engine of the search profile and follows random result links.

Examples:
  # One search with the default profile
  trafficcloak search

  # Use DuckDuckGo's HTML endpoint and follow two links
  trafficcloak search --url https://html.duckduckgo.com/html/ --depth 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionCmd(cmd, model.KindSearch)
		},
	}
	cmd.Flags().String("url", "", "Search page URL (overrides the profile)")
	cmd.Flags().String("field", "", "Query field name (overrides the profile)")
	addProfileFlags(cmd)
	addSessionFlags(cmd)
	addReportFlags(cmd)
	return cmd
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [entry-url]",
		Short: "Run one crawl session",
		Long: `Crawl loads the entry page of the crawl profile (a random Wikipedia
article by default) and follows random links from there.

Examples:
  # Wander through five random Wikipedia pages
  trafficcloak crawl

  # Start somewhere else and go deeper
  trafficcloak crawl https://de.wikipedia.org/wiki/Spezial:Zuf%C3%A4llige_Seite --depth 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("url", args[0]); err != nil {
					return err
				}
			}
			return runSessionCmd(cmd, model.KindCrawl)
		},
	}
	cmd.Flags().String("url", "", "Entry URL (overrides the profile)")
	addProfileFlags(cmd)
	addSessionFlags(cmd)
	addReportFlags(cmd)
	return cmd
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("depth", "d", 0, "Links to follow after the entry page (default: from the profile)")
	cmd.Flags().IntP("links", "k", 0, "Eligible links considered per page (default: from the profile)")
}

// profileFromFlags applies --url, --field, --depth and --links to p.
func profileFromFlags(cmd *cobra.Command, kind model.Kind, p config.Profile) (config.Profile, error) {
	flags := cmd.Flags()

	if flags.Changed("url") {
		u, err := flags.GetString("url")
		if err != nil {
			return p, err
		}
		if kind == model.KindSearch {
			p.SearchURL = u
		} else {
			p.EntryURL = u
		}
	}
	if flags.Lookup("field") != nil && flags.Changed("field") {
		field, err := flags.GetString("field")
		if err != nil {
			return p, err
		}
		p.QueryField = field
	}
	if flags.Changed("depth") {
		depth, err := flags.GetInt("depth")
		if err != nil {
			return p, err
		}
		p.Depth = depth
	}
	if flags.Changed("links") {
		links, err := flags.GetInt("links")
		if err != nil {
			return p, err
		}
		p.LinksPerPage = links
	}
	return p, p.Validate()
}

func runSessionCmd(cmd *cobra.Command, kind model.Kind) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	profile := a.cfg.Profiles.Crawl
	if kind == model.KindSearch {
		profile = a.cfg.Profiles.Search
	}
	if profile, err = profileFromFlags(cmd, kind, profile); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.session(ctx, cmd, kind, profile)
}

func (a *app) session(ctx context.Context, cmd *cobra.Command, kind model.Kind, profile config.Profile) error {
	pool, stopTor, err := a.proxyPool(ctx)
	if err != nil {
		return err
	}
	defer stopTor()

	set := a.newSessionSet(pool)
	var step pipeline.Step
	if kind == model.KindSearch {
		step, err = a.searchStep(set, profile)
	} else {
		step, err = a.crawlStep(set, profile)
	}
	if err != nil {
		return err
	}

	sinks, closeSinks, err := a.sinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			a.logger.Error("failed to close report outputs", "error", err)
		}
	}()

	opts := []pipeline.Option{pipeline.WithLogger(a.logger)}
	for _, sink := range sinks {
		opts = append(opts, pipeline.WithSink(sink))
	}
	p := pipeline.New(opts...)
	p.AddStep(step)

	_, err = p.Execute(ctx)
	return err
}
