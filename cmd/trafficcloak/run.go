package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
	"github.com/nao1215/trafficcloak/internal/pipeline"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run lookup, search and crawl sessions",
		Long: `Run executes one cycle: a DNS lookup of a random popular domain, a search
session and a crawl session. With --loop the cycle repeats every --interval
until interrupted (Ctrl+C or SIGTERM).

The data directory must hold the query corpus (sentence.txt and the word
pools). The top-sites CSV is optional; without it the lookup is skipped.

Examples:
  # One cycle with the defaults
  trafficcloak run

  # Run forever, one cycle every five minutes, through Tor
  trafficcloak run --loop --interval 5m --tor

  # Run the three sessions of a cycle at the same time
  trafficcloak run --concurrent

  # Use headless Chrome so that pages execute JavaScript
  trafficcloak run --driver chrome`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().BoolP("loop", "l", false, "Repeat the cycle until interrupted")
	cmd.Flags().DurationP("interval", "i", config.DefaultInterval, "Pause between cycles in loop mode")
	cmd.Flags().Bool("concurrent", false, "Run the sessions of a cycle in parallel")
	addSessionFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Loop, err = cmd.Flags().GetBool("loop"); err != nil {
		return err
	}
	if a.cfg.Interval, err = cmd.Flags().GetDuration("interval"); err != nil {
		return err
	}
	if a.cfg.Concurrent, err = cmd.Flags().GetBool("concurrent"); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.run(ctx, cmd)
}

func (a *app) run(ctx context.Context, cmd *cobra.Command) error {
	pool, stopTor, err := a.proxyPool(ctx)
	if err != nil {
		return err
	}
	defer stopTor()

	set := a.newSessionSet(pool)
	steps := make([]pipeline.Step, 0, 3)

	lookup, err := a.domainLookupStep(a.resolverChain(set.rotator))
	if err != nil {
		return err
	}
	if lookup != nil {
		steps = append(steps, lookup)
	}
	search, err := a.searchStep(set, a.cfg.Profiles.Search)
	if err != nil {
		return err
	}
	crawl, err := a.crawlStep(set, a.cfg.Profiles.Crawl)
	if err != nil {
		return err
	}
	steps = append(steps, search, crawl)

	sinks, closeSinks, err := a.sinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			a.logger.Error("failed to close report outputs", "error", err)
		}
	}()

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithContinueOnError(true),
	}
	for _, sink := range sinks {
		opts = append(opts, pipeline.WithSink(sink))
	}
	p := pipeline.New(opts...)
	p.AddSteps(steps...)

	cycle := func(ctx context.Context) error {
		a.logger.Info("cycle started", "steps", p.StepNames(), "concurrent", a.cfg.Concurrent)
		var err error
		if a.cfg.Concurrent {
			_, err = p.RunConcurrent(ctx)
		} else {
			_, err = p.Execute(ctx)
		}
		return err
	}

	if !a.cfg.Loop {
		err := cycle(ctx)
		if errors.Is(err, context.Canceled) {
			a.logger.Info("interrupted")
			return nil
		}
		return err
	}

	pipeline.Loop(ctx, cycle, a.cfg.Interval, a.logger)
	return nil
}
