package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"time"

	"github.com/nao1215/trafficcloak/internal/driver"
	"github.com/nao1215/trafficcloak/internal/linkfilter"
	"github.com/nao1215/trafficcloak/internal/model"
)

// ErrCancelled wraps the context error of a cancelled session.
var ErrCancelled = errors.New("session cancelled")

// state is a node of the traversal state machine.
type state int

const (
	stateEntering state = iota
	stateOnPage
	stateFollowing
	stateExhausted
	stateFailed
)

// String returns the state name.
func (s state) String() string {
	switch s {
	case stateEntering:
		return "entering"
	case stateOnPage:
		return "on_page"
	case stateFollowing:
		return "following"
	case stateExhausted:
		return "exhausted"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dwell is the range of the simulated reading time after a page load.
// A zero Dwell disables waiting.
type Dwell struct {
	Min time.Duration
	Max time.Duration
}

// Engine runs sessions on one driver. It is not safe for concurrent use;
// parallel sessions each get their own Engine and driver.
type Engine struct {
	driver driver.Driver
	logger *slog.Logger
	rng    *rand.Rand

	// deny is passed to the link filter.
	deny []string

	// callTimeout bounds every driver call. Zero disables it.
	callTimeout time.Duration

	entryDwell Dwell
	hopDwell   Dwell
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRand sets the random source used for link choice and dwell times.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithDenyPatterns sets the URL substrings that make a link ineligible.
func WithDenyPatterns(patterns []string) Option {
	return func(e *Engine) {
		e.deny = slices.Clone(patterns)
	}
}

// WithCallTimeout bounds each driver call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
	}
}

// WithEntryDwell sets the reading time after the entry page.
func WithEntryDwell(d Dwell) Option {
	return func(e *Engine) {
		e.entryDwell = d
	}
}

// WithHopDwell sets the reading time after each followed link.
func WithHopDwell(d Dwell) Option {
	return func(e *Engine) {
		e.hopDwell = d
	}
}

// NewEngine creates an Engine driving d.
func NewEngine(d driver.Driver, opts ...Option) *Engine {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // seed only
	e := &Engine{
		driver:      d,
		logger:      slog.New(slog.DiscardHandler),
		rng:         rand.New(rand.NewPCG(now, now>>1)), //nolint:gosec // not used for security
		callTimeout: 30 * time.Second,
		deny:        []string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// session is the mutable state of one Traverse call.
type session struct {
	report *model.Report

	// depth is the remaining budget of successful hops.
	depth int

	// candidates are the eligible links of the current page not yet tried.
	// nil means the page has not been inspected.
	candidates []model.Link

	// pageLocation is where candidates came from; relative links resolve
	// against it.
	pageLocation string
}

// Traverse runs one session. maxDepth is the number of links to follow
// after the entry page; negative values count as zero. maxLinksPerPage
// caps the candidates considered per page. The returned report is never
// nil.
func (e *Engine) Traverse(ctx context.Context, entry EntryAction, maxDepth, maxLinksPerPage int) *model.Report {
	s := &session{
		report: model.NewReport(entry.Kind()),
		depth:  max(maxDepth, 0),
	}
	logger := e.logger.With("session", s.report.ID, "kind", s.report.Kind)

	current := stateEntering
	for current != stateExhausted && current != stateFailed {
		if err := ctx.Err(); err != nil {
			current = e.cancel(s, err)
			break
		}

		logger.Debug("state", "state", current)
		switch current {
		case stateEntering:
			current = e.enter(ctx, s, entry, logger)
		case stateOnPage:
			current = e.onPage(ctx, s, maxLinksPerPage, logger)
		case stateFollowing:
			current = e.follow(ctx, s, logger)
		}
	}

	s.report.LastLocation = e.driver.CurrentLocation()
	logger.Info("session finished",
		"state", s.report.TerminalState,
		"reason", s.report.Reason,
		"pages", s.report.PagesVisited,
		"failed_navigations", s.report.FailedNavigations)
	return s.report
}

func (e *Engine) enter(ctx context.Context, s *session, entry EntryAction, logger *slog.Logger) state {
	callCtx, cancel := e.callContext(ctx)
	description, err := entry.Enter(callCtx, e.driver)
	cancel()
	s.report.Entry = description

	if err != nil {
		if ctx.Err() != nil {
			return e.cancel(s, ctx.Err())
		}
		reason := model.ReasonEntryFailed
		if errors.Is(err, ErrConfiguration) {
			reason = model.ReasonConfiguration
		}
		logger.Warn("entry failed", "entry", description, "error", err)
		s.report.Finish(model.StateFailed, reason, err)
		return stateFailed
	}

	location := e.driver.CurrentLocation()
	s.report.Visit(location)
	logger.Info("entered", "entry", description, "location", location)

	if err := e.dwell(ctx, e.entryDwell); err != nil {
		return e.cancel(s, err)
	}
	if s.depth == 0 {
		s.report.Finish(model.StateExhausted, model.ReasonDepthReached, nil)
		return stateExhausted
	}
	return stateOnPage
}

func (e *Engine) onPage(ctx context.Context, s *session, maxLinksPerPage int, logger *slog.Logger) state {
	if s.candidates == nil {
		callCtx, cancel := e.callContext(ctx)
		links, err := e.driver.CurrentLinks(callCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return e.cancel(s, ctx.Err())
			}
			s.report.Finish(model.StateFailed, model.ReasonDriverError, fmt.Errorf("failed to list links: %w", err))
			return stateFailed
		}
		s.candidates = linkfilter.FilterWith(e.rng.Shuffle, links, e.deny, maxLinksPerPage)
		s.pageLocation = e.driver.CurrentLocation()
		logger.Debug("page inspected", "location", s.pageLocation, "links", len(links), "eligible", len(s.candidates))
	}

	if len(s.candidates) == 0 {
		s.report.Finish(model.StateExhausted, model.ReasonNoLinks, nil)
		return stateExhausted
	}
	return stateFollowing
}

func (e *Engine) follow(ctx context.Context, s *session, logger *slog.Logger) state {
	i := e.rng.IntN(len(s.candidates))
	link := s.candidates[i]

	target, err := resolve(s.pageLocation, link.URL)
	if err == nil {
		logger.Info("following link", "text", link.TrimmedText(), "url", target, "depth", s.depth)
		callCtx, cancel := e.callContext(ctx)
		err = e.driver.Load(callCtx, target)
		cancel()
	}

	if err != nil {
		if ctx.Err() != nil {
			return e.cancel(s, ctx.Err())
		}
		logger.Warn("failed to follow link", "url", link.URL, "error", err)
		s.report.FailedNavigations++
		s.candidates = slices.Delete(s.candidates, i, i+1)
		return stateOnPage
	}

	s.depth--
	s.candidates = nil
	location := e.driver.CurrentLocation()
	s.report.Visit(location)
	logger.Debug("arrived", "location", location, "remaining_depth", s.depth)

	if err := e.dwell(ctx, e.hopDwell); err != nil {
		return e.cancel(s, err)
	}
	if s.depth > 0 {
		return stateOnPage
	}
	s.report.Finish(model.StateExhausted, model.ReasonDepthReached, nil)
	return stateExhausted
}

// cancel finishes the session as cancelled.
func (e *Engine) cancel(s *session, cause error) state {
	s.report.Finish(model.StateFailed, model.ReasonCancelled, fmt.Errorf("%w: %w", ErrCancelled, cause))
	return stateFailed
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// dwell waits a random duration in d or until ctx is done.
func (e *Engine) dwell(ctx context.Context, d Dwell) error {
	wait := d.Min
	if d.Max > d.Min {
		wait += time.Duration(e.rng.Int64N(int64(d.Max-d.Min) + 1))
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve makes href absolute against base and rejects non-HTTP targets.
func resolve(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err == nil {
			ref = b.ResolveReference(ref)
		}
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported link %q", driver.ErrNavigation, ref.String())
	}
	return ref.String(), nil
}
