package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/nao1215/trafficcloak/internal/model"
	"github.com/nao1215/trafficcloak/internal/proxy"
	"github.com/nao1215/trafficcloak/internal/resolver"
	"github.com/nao1215/trafficcloak/internal/source"
	"github.com/nao1215/trafficcloak/internal/traversal"
)

// ErrNoHosts is returned by a LookupStep with neither a host nor a domain list.
var ErrNoHosts = errors.New("no host to look up")

// Resolver resolves one host. *resolver.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, host string, types ...resolver.RecordType) (resolver.Result, error)
}

// LookupStep resolves a host through the resolver chain. With Host empty,
// a random entry of Domains is used.
type LookupStep struct {
	resolver Resolver
	host     string
	domains  []source.Domain
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// LookupOption configures a LookupStep.
type LookupOption func(*LookupStep)

// WithLookupHost fixes the host to resolve.
func WithLookupHost(host string) LookupOption {
	return func(s *LookupStep) {
		s.host = host
	}
}

// WithLookupDomains sets the ranked list a random host is drawn from.
func WithLookupDomains(domains []source.Domain) LookupOption {
	return func(s *LookupStep) {
		s.domains = domains
	}
}

// WithLookupRand sets the random source used to pick a domain.
func WithLookupRand(rng *rand.Rand) LookupOption {
	return func(s *LookupStep) {
		s.rng = rng
	}
}

// WithLookupLogger sets the logger.
func WithLookupLogger(logger *slog.Logger) LookupOption {
	return func(s *LookupStep) {
		s.logger = logger
	}
}

// NewLookupStep creates a lookup step over r.
func NewLookupStep(r Resolver, opts ...LookupOption) *LookupStep {
	s := &LookupStep{
		resolver: r,
		logger:   slog.New(slog.DiscardHandler),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // host choice is not security sensitive
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *LookupStep) Name() string {
	return "lookup"
}

// Do picks a host and resolves it.
func (s *LookupStep) Do(ctx context.Context) (*model.Report, error) {
	report := model.NewReport(model.KindLookup)

	host, err := s.pick()
	if err != nil {
		report.Finish(model.StateFailed, model.ReasonConfiguration, err)
		return report, err
	}
	report.Entry = host

	result, err := s.resolver.Resolve(ctx, host)
	switch {
	case ctx.Err() != nil:
		report.Finish(model.StateFailed, model.ReasonCancelled, fmt.Errorf("%w: %w", traversal.ErrCancelled, ctx.Err()))
		return report, nil
	case errors.Is(err, resolver.ErrInvalidHost):
		report.Finish(model.StateFailed, model.ReasonConfiguration, err)
		return report, nil
	case err != nil:
		s.logger.Warn("lookup failed", "host", host, "error", err)
		report.Finish(model.StateFailed, model.ReasonResolverError, err)
		return report, nil
	}

	report.Entry = result.Host
	report.Records = result.Records()
	if result.Empty() {
		s.logger.Warn("no DNS records found", "host", result.Host)
		report.Finish(model.StateCompleted, model.ReasonNoRecords, nil)
		return report, nil
	}
	s.logger.Info("resolved", "host", result.Host, "a", result.A, "aaaa", result.AAAA)
	report.Finish(model.StateCompleted, model.ReasonResolved, nil)
	return report, nil
}

func (s *LookupStep) pick() (string, error) {
	if s.host != "" {
		return s.host, nil
	}
	if len(s.domains) == 0 {
		return "", ErrNoHosts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domains[s.rng.IntN(len(s.domains))].Name, nil
}

// Limits bound one traversal session.
type Limits struct {
	Depth        int
	LinksPerPage int
}

// SessionStep runs one traversal session on a fresh driver. The egress
// path is taken from the rotator; an empty pool means direct.
type SessionStep struct {
	name      string
	entry     traversal.EntryAction
	limits    Limits
	rotator   *proxy.Rotator
	newDriver DriverFactory
	engine    []traversal.Option
	logger    *slog.Logger
}

// SessionOption configures a SessionStep.
type SessionOption func(*SessionStep)

// WithRotator sets the proxy rotator shared by all sessions.
func WithRotator(r *proxy.Rotator) SessionOption {
	return func(s *SessionStep) {
		s.rotator = r
	}
}

// WithEngineOptions passes options to the traversal engine.
func WithEngineOptions(opts ...traversal.Option) SessionOption {
	return func(s *SessionStep) {
		s.engine = append(s.engine, opts...)
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionStep) {
		s.logger = logger
	}
}

// NewSessionStep creates a step that traverses from entry.
func NewSessionStep(name string, entry traversal.EntryAction, limits Limits, newDriver DriverFactory, opts ...SessionOption) *SessionStep {
	s := &SessionStep{
		name:      name,
		entry:     entry,
		limits:    limits,
		newDriver: newDriver,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSearchStep submits a synthesized phrase to the search form on
// formURL and wanders from the results.
func NewSearchStep(phrases traversal.Phraser, formURL, field string, limits Limits, newDriver DriverFactory, opts ...SessionOption) *SessionStep {
	entry := traversal.SearchEntry{FormURL: formURL, Field: field, Phrases: phrases}
	return NewSessionStep("search", entry, limits, newDriver, opts...)
}

// NewCrawlStep loads entryURL and wanders from there.
func NewCrawlStep(entryURL string, limits Limits, newDriver DriverFactory, opts ...SessionOption) *SessionStep {
	return NewSessionStep("crawl", traversal.URLEntry{URL: entryURL}, limits, newDriver, opts...)
}

// Name returns the step name.
func (s *SessionStep) Name() string {
	return s.name
}

// Do runs the session. It returns an error only for configuration
// failures: a driver that cannot be built, or an entry that cannot
// produce a target.
func (s *SessionStep) Do(ctx context.Context) (*model.Report, error) {
	var egress proxy.Descriptor
	if s.rotator != nil {
		if d, ok := s.rotator.Next(); ok {
			egress = d
		}
	}

	d, err := s.newDriver(egress)
	if err != nil {
		report := model.NewReport(s.entry.Kind())
		report.Proxy = egress.String()
		err = fmt.Errorf("failed to create driver: %w", err)
		report.Finish(model.StateFailed, model.ReasonConfiguration, err)
		return report, err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			s.logger.Debug("driver close failed", "error", cerr)
		}
	}()

	logger := s.logger
	if !egress.IsZero() {
		logger = logger.With("proxy", egress.String())
	}
	opts := append([]traversal.Option{traversal.WithLogger(logger)}, s.engine...)
	engine := traversal.NewEngine(d, opts...)

	report := engine.Traverse(ctx, s.entry, s.limits.Depth, s.limits.LinksPerPage)
	if !egress.IsZero() {
		report.Proxy = egress.String()
	}
	if report.Reason == model.ReasonConfiguration {
		return report, report.Err
	}
	return report, nil
}

var (
	_ Step = (*LookupStep)(nil)
	_ Step = (*SessionStep)(nil)
)
