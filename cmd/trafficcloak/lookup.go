package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/egress"
	"github.com/nao1215/trafficcloak/internal/pipeline"
	"github.com/nao1215/trafficcloak/internal/proxy"
)

// NewLookupCmd creates the lookup command.
func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [host...]",
		Short: "Resolve hosts through the resolver chain",
		Long: `Lookup resolves the given hosts, or a random domain of the top-sites CSV
when none is given, through the DNS-over-HTTPS endpoints (routed over the
proxy pool) and then the system resolver.

Examples:
  # Resolve a random popular domain
  trafficcloak lookup

  # Resolve specific hosts
  trafficcloak lookup example.com https://www.wikipedia.org/

  # Probe every proxy of the pool first
  trafficcloak lookup --check-proxies`,
		Args: cobra.ArbitraryArgs,
		RunE: runLookupCmd,
	}

	cmd.Flags().Bool("check-proxies", false, "Probe each proxy of the pool and print its status")
	cmd.Flags().DurationP("timeout", "t", 0, "Timeout for each DoH request (default: 30s)")
	cmd.Flags().Bool("tor", false, "Start an embedded Tor daemon and add it to the proxy pool")
	addReportFlags(cmd)

	return cmd
}

func runLookupCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if timeout, err := cmd.Flags().GetDuration("timeout"); err != nil {
		return err
	} else if timeout > 0 {
		a.cfg.CallTimeout = timeout
	}
	if a.cfg.UseTor, err = cmd.Flags().GetBool("tor"); err != nil {
		return err
	}
	check, err := cmd.Flags().GetBool("check-proxies")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.lookup(ctx, cmd, args, check)
}

func (a *app) lookup(ctx context.Context, cmd *cobra.Command, hosts []string, check bool) error {
	pool, stopTor, err := a.proxyPool(ctx)
	if err != nil {
		return err
	}
	defer stopTor()

	if check {
		pool = a.checkProxies(ctx, cmd, pool)
	}
	chain := a.resolverChain(proxy.NewRotator(pool))

	steps := make([]pipeline.Step, 0, max(len(hosts), 1))
	if len(hosts) == 0 {
		step, err := a.domainLookupStep(chain)
		if err != nil {
			return err
		}
		if step == nil {
			return fmt.Errorf("no host given and no domain list at %s", a.cfg.DataFile(a.cfg.Profiles.Domains))
		}
		steps = append(steps, step)
	}
	for _, host := range hosts {
		steps = append(steps, pipeline.NewLookupStep(chain,
			pipeline.WithLookupHost(host),
			pipeline.WithLookupLogger(a.logger)))
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

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithContinueOnError(true),
	}
	for _, sink := range sinks {
		opts = append(opts, pipeline.WithSink(sink))
	}
	p := pipeline.New(opts...)
	p.AddSteps(steps...)

	_, err = p.Execute(ctx)
	return err
}

// checkProxies probes every descriptor, prints its status and returns the
// usable ones.
func (a *app) checkProxies(ctx context.Context, cmd *cobra.Command, pool []proxy.Descriptor) []proxy.Descriptor {
	out := cmd.OutOrStdout()
	if len(pool) == 0 {
		fmt.Fprintln(out, "Proxy pool is empty; connecting directly.")
		return pool
	}

	usable := make([]proxy.Descriptor, 0, len(pool))
	for _, desc := range pool {
		status := egress.Check(ctx, desc)
		fmt.Fprintf(out, "%-40s %s\n", desc.String(), status)
		if status == egress.ProxyStatusOK {
			usable = append(usable, desc)
			continue
		}
		a.logger.Warn("proxy unusable", "proxy", desc.String(), "status", status.String())
	}
	fmt.Fprintf(out, "%d of %d proxies usable\n\n", len(usable), len(pool))
	return usable
}
