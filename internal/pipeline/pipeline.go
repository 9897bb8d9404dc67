package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/trafficcloak/internal/model"
)

// Step is one session of a cycle: a lookup, a search or a crawl.
//
// Do always returns a report. A non-nil error means the step could not
// run at all because of its configuration; ordinary session failures are
// described by the report alone.
type Step interface {
	Do(ctx context.Context) (*model.Report, error)
	Name() string
}

// Sink receives every finished report, for printing or persisting.
// Sinks are never called concurrently.
type Sink func(ctx context.Context, report *model.Report) error

// Pipeline runs the steps of one cycle.
type Pipeline struct {
	steps           []Step
	sinks           []Sink
	logger          *slog.Logger
	continueOnError bool

	sinkMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after a step returned an
// error. The default is to stop, since step errors are configuration
// problems that will not fix themselves.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithSink adds a sink. Sinks run in the order they were added.
func WithSink(sink Sink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, sink)
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:  make([]Step, 0),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// Execute runs the steps one after another and returns their reports.
// Cancellation is checked before each step. The error is the first step
// error, or every step error joined when continue-on-error is set.
func (p *Pipeline) Execute(ctx context.Context) ([]*model.Report, error) {
	reports := make([]*model.Report, 0, len(p.steps))
	var errs []error

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("cycle cancelled", "step", step.Name(), "reason", err)
			return reports, errors.Join(append(errs, err)...)
		}

		report, err := p.run(ctx, step)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
			if !p.continueOnError {
				return reports, err
			}
		}
	}
	return reports, errors.Join(errs...)
}

// RunConcurrent runs every step at the same time. Reports keep the step
// order. A step error does not cancel the other steps.
func (p *Pipeline) RunConcurrent(ctx context.Context) ([]*model.Report, error) {
	reports := make([]*model.Report, len(p.steps))
	errs := make([]error, len(p.steps))

	var g errgroup.Group
	for i, step := range p.steps {
		g.Go(func() error {
			reports[i], errs[i] = p.run(ctx, step)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // step errors are collected in errs

	return reports, errors.Join(errs...)
}

func (p *Pipeline) run(ctx context.Context, step Step) (*model.Report, error) {
	p.logger.Info("executing step", "step", step.Name())

	report, err := step.Do(ctx)
	if report == nil {
		report = model.NewReport("")
		report.Finish(model.StateFailed, model.ReasonConfiguration, err)
	}
	if err != nil {
		p.logger.Error("step failed", "step", step.Name(), "error", err)
	} else {
		p.logger.Debug("step completed", "step", step.Name(),
			"state", report.TerminalState, "reason", report.Reason)
	}

	p.deliver(ctx, report)
	return report, err
}

func (p *Pipeline) deliver(ctx context.Context, report *model.Report) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()

	for _, sink := range p.sinks {
		if err := sink(ctx, report); err != nil {
			p.logger.Warn("report sink failed", "session", report.ID, "error", err)
		}
	}
}
