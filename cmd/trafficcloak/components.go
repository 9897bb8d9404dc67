package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/nao1215/trafficcloak/internal/config"
	"github.com/nao1215/trafficcloak/internal/database"
	"github.com/nao1215/trafficcloak/internal/driver"
	"github.com/nao1215/trafficcloak/internal/egress"
	"github.com/nao1215/trafficcloak/internal/model"
	"github.com/nao1215/trafficcloak/internal/pipeline"
	"github.com/nao1215/trafficcloak/internal/proxy"
	"github.com/nao1215/trafficcloak/internal/report"
	"github.com/nao1215/trafficcloak/internal/resolver"
	"github.com/nao1215/trafficcloak/internal/source"
	"github.com/nao1215/trafficcloak/internal/synth"
	"github.com/nao1215/trafficcloak/internal/tor"
	"github.com/nao1215/trafficcloak/internal/traversal"
)

// proxyPool loads the egress pool from the environment, the proxies file
// and the config file. With --tor, an embedded Tor daemon is started and
// appended; the returned stop function shuts it down.
func (a *app) proxyPool(ctx context.Context) ([]proxy.Descriptor, func(), error) {
	pool, err := proxy.Load(os.Getenv, a.cfg.DataFile(config.DefaultProxiesFile), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	pool = append(pool, proxy.ParseList(a.cfg.Profiles.Proxies, a.logger)...)

	stop := func() {}
	if a.cfg.UseTor {
		desc, embedded, err := a.startTor(ctx)
		if err != nil {
			return nil, nil, err
		}
		pool = append(pool, desc)
		stop = func() {
			a.logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				a.logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
	}

	a.logger.Info("proxy pool ready", "proxies", len(pool))
	return pool, stop, nil
}

// startTor starts the embedded daemon and verifies its SOCKS port.
func (a *app) startTor(ctx context.Context) (proxy.Descriptor, *tor.EmbeddedTor, error) {
	a.logger.Info("starting embedded Tor daemon; bootstrapping may take a few minutes")

	embedded := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(a.cfg.TorStartupTimeout),
		tor.WithLogger(a.logger),
	)
	if err := embedded.Start(ctx); err != nil {
		return proxy.Descriptor{}, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	desc, err := embedded.Descriptor()
	if err != nil {
		_ = embedded.Stop() //nolint:errcheck // best effort cleanup
		return proxy.Descriptor{}, nil, err
	}
	if status := egress.CheckSOCKS5(ctx, desc); status != egress.ProxyStatusOK {
		_ = embedded.Stop() //nolint:errcheck // best effort cleanup
		return proxy.Descriptor{}, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}

	a.logger.Info("embedded Tor daemon started", "socks", embedded.SocksAddr())
	return desc, embedded, nil
}

// resolverChain builds the DoH strategies, each lookup routed through the
// next proxy of rotator, followed by the system resolver.
func (a *app) resolverChain(rotator *proxy.Rotator) *resolver.Chain {
	settings := a.cfg.Profiles.Resolver
	endpoints := settings.DoH
	if endpoints == nil {
		endpoints = []string{resolver.DefaultDoHEndpoint}
	}

	clientFor := func() *http.Client {
		desc, _ := rotator.Next()
		client, err := egress.ClientFor(desc, egress.WithTimeout(a.cfg.CallTimeout))
		if err != nil {
			a.logger.Warn("falling back to a direct DoH client", "proxy", desc.String(), "error", err)
			client, _ = egress.ClientFor(proxy.Descriptor{}, egress.WithTimeout(a.cfg.CallTimeout)) //nolint:errcheck // direct clients cannot fail
		}
		return client
	}

	strategies := make([]resolver.Strategy, 0, len(endpoints)+1)
	for _, endpoint := range endpoints {
		strategies = append(strategies, resolver.NewDoHStrategy(endpoint, resolver.WithClientFunc(clientFor)))
	}
	if settings.UseSystem() {
		strategies = append(strategies, resolver.NewSystemStrategy(nil))
	}
	return resolver.NewChain(strategies, resolver.WithLogger(a.logger))
}

// userAgents loads the optional user-agent list.
func (a *app) userAgents() ([]string, error) {
	lines, err := source.LoadLines(a.cfg.DataFile(a.cfg.Profiles.UserAgents))
	if errors.Is(err, source.ErrSourceNotFound) || errors.Is(err, source.ErrEmptySource) {
		return nil, nil
	}
	return lines, err
}

// driverFactory builds drivers for one profile. limiter is shared by every
// session so that politeness holds across steps.
func (a *app) driverFactory(p config.Profile, limiter *driver.HostLimiter) (pipeline.DriverFactory, error) {
	agents, err := a.userAgents()
	if err != nil {
		return nil, fmt.Errorf("failed to load user agents: %w", err)
	}

	return pipeline.NewDriverFactory(pipeline.DriverSettings{
		Kind:             a.cfg.Driver,
		UserAgents:       agents,
		DefaultUserAgent: a.cfg.UserAgent,
		Headers:          p.Headers,
		LinkSelectors:    p.LinkSelectors,
		CallTimeout:      a.cfg.CallTimeout,
		Limiter:          limiter,
		RespectRobots:    a.cfg.RespectRobots,
		MaxBodySize:      a.cfg.MaxBodySize,
		ChromePath:       a.cfg.ChromePath,
		Headless:         !a.cfg.Headful,
		Logger:           a.logger,
	})
}

// sessionOptions returns the step options for a profile.
func (a *app) sessionOptions(p config.Profile, rotator *proxy.Rotator) ([]pipeline.SessionOption, error) {
	deny, err := p.DenyList()
	if err != nil {
		return nil, err
	}

	engine := []traversal.Option{
		traversal.WithDenyPatterns(deny),
		traversal.WithCallTimeout(a.cfg.CallTimeout),
	}
	if !a.cfg.NoDwell {
		engine = append(engine,
			traversal.WithEntryDwell(traversal.Dwell(p.EntryDwell)),
			traversal.WithHopDwell(traversal.Dwell(p.HopDwell)))
	}

	return []pipeline.SessionOption{
		pipeline.WithRotator(rotator),
		pipeline.WithEngineOptions(engine...),
		pipeline.WithSessionLogger(a.logger),
	}, nil
}

// sessionSet holds what the browsing steps share.
type sessionSet struct {
	rotator *proxy.Rotator
	limiter *driver.HostLimiter
}

func (a *app) newSessionSet(pool []proxy.Descriptor) sessionSet {
	return sessionSet{
		rotator: proxy.NewRotator(pool),
		limiter: driver.NewHostLimiter(a.cfg.HostDelay, 0, 0),
	}
}

// searchStep builds a search session from the search profile and the
// query corpus.
func (a *app) searchStep(set sessionSet, p config.Profile) (*pipeline.SessionStep, error) {
	corpus := a.cfg.Profiles.Corpus
	pools := make(map[string]string, len(corpus.Pools))
	for placeholder, file := range corpus.Pools {
		pools[placeholder] = a.cfg.DataFile(file)
	}
	c, err := synth.Load(synth.Sources{Templates: a.cfg.DataFile(corpus.Templates), Pools: pools})
	if err != nil {
		return nil, fmt.Errorf("failed to load query corpus: %w", err)
	}

	factory, err := a.driverFactory(p, set.limiter)
	if err != nil {
		return nil, err
	}
	opts, err := a.sessionOptions(p, set.rotator)
	if err != nil {
		return nil, err
	}

	formURL := p.SearchURL
	if formURL == "" {
		formURL = p.EntryURL
	}
	limits := pipeline.Limits{Depth: p.Depth, LinksPerPage: p.LinksPerPage}
	return pipeline.NewSearchStep(synth.NewSynthesizer(c), formURL, p.QueryField, limits, factory, opts...), nil
}

// crawlStep builds a crawl session from the crawl profile.
func (a *app) crawlStep(set sessionSet, p config.Profile) (*pipeline.SessionStep, error) {
	factory, err := a.driverFactory(p, set.limiter)
	if err != nil {
		return nil, err
	}
	opts, err := a.sessionOptions(p, set.rotator)
	if err != nil {
		return nil, err
	}

	entry := p.EntryURL
	if entry == "" {
		entry = p.SearchURL
	}
	limits := pipeline.Limits{Depth: p.Depth, LinksPerPage: p.LinksPerPage}
	return pipeline.NewCrawlStep(entry, limits, factory, opts...), nil
}

// domainLookupStep resolves a random host of the top-sites CSV. It returns
// nil when the CSV does not exist.
func (a *app) domainLookupStep(chain *resolver.Chain) (*pipeline.LookupStep, error) {
	path := a.cfg.DataFile(a.cfg.Profiles.Domains)
	domains, err := source.LoadDomains(path)
	if errors.Is(err, source.ErrSourceNotFound) {
		a.logger.Warn("domain list not found; skipping lookups", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load domains: %w", err)
	}
	return pipeline.NewLookupStep(chain,
		pipeline.WithLookupDomains(domains),
		pipeline.WithLookupLogger(a.logger)), nil
}

// sinks returns the report printer and, unless disabled, the history
// writer. The close function releases the output file and the database.
func (a *app) sinks(stdout io.Writer) ([]pipeline.Sink, func() error, error) {
	out, closeOut, err := openOutput(a.cfg, stdout)
	if err != nil {
		return nil, nil, err
	}

	writer := reportWriter(a.cfg, out)
	sinks := []pipeline.Sink{
		func(_ context.Context, r *model.Report) error {
			_, err := writer.Write(r)
			return err
		},
	}
	if !a.cfg.SaveToDB {
		return sinks, closeOut, nil
	}

	db, err := database.Open(a.cfg.DBDir, database.DefaultOptions())
	if err != nil {
		_ = closeOut() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.logger.Debug("history database opened", "path", db.Path())

	sinks = append(sinks, func(ctx context.Context, r *model.Report) error {
		if err := db.SaveReport(context.WithoutCancel(ctx), r); err != nil {
			return err
		}
		a.logger.Debug("session saved", "session", r.ID, "digest", database.TrailDigest(r.Trail))
		return nil
	})
	return sinks, func() error { return joinClose(closeOut, db.Close) }, nil
}

// reportWriter picks the writer for the configured format.
func reportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
