package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrChainExhausted is returned when every strategy failed with a
	// transport error. It wraps the individual strategy errors.
	ErrChainExhausted = errors.New("all resolver strategies failed")

	// ErrInvalidHost is returned when the host is empty after normalization.
	ErrInvalidHost = errors.New("invalid host")
)

// RecordType is a DNS record type name.
type RecordType string

const (
	// TypeA is an IPv4 address record.
	TypeA RecordType = "A"
	// TypeAAAA is an IPv6 address record.
	TypeAAAA RecordType = "AAAA"
)

// DefaultTypes are queried when Resolve is called without types.
var DefaultTypes = []RecordType{TypeA, TypeAAAA}

// Result holds the records found for Host. Empty slices mean no records.
type Result struct {
	Host string   `json:"host"`
	A    []string `json:"a"`
	AAAA []string `json:"aaaa"`
}

func newResult(host string) Result {
	return Result{Host: host, A: []string{}, AAAA: []string{}}
}

// Empty reports whether no record was found.
func (r Result) Empty() bool {
	return len(r.A) == 0 && len(r.AAAA) == 0
}

// Records returns A records followed by AAAA records.
func (r Result) Records() []string {
	out := make([]string, 0, len(r.A)+len(r.AAAA))
	out = append(out, r.A...)
	return append(out, r.AAAA...)
}

// only keeps the requested types.
func (r Result) only(types []RecordType) Result {
	out := newResult(r.Host)
	for _, t := range types {
		switch t {
		case TypeA:
			out.A = append(out.A, r.A...)
		case TypeAAAA:
			out.AAAA = append(out.AAAA, r.AAAA...)
		}
	}
	return out
}

// Strategy is one way of resolving a host.
//
// Lookup returns an empty Result and nil error when the strategy got a
// valid answer without records, and a non-nil error only for failures
// such as an unreachable endpoint.
type Strategy interface {
	Name() string
	Lookup(ctx context.Context, host string, types []RecordType) (Result, error)
}

// Chain tries strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger used for per-strategy debug output.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// NewChain creates a Chain over strategies, tried in the given order.
func NewChain(strategies []Strategy, opts ...ChainOption) *Chain {
	c := &Chain{
		strategies: strategies,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Resolve normalizes host and queries the strategies in order.
// Without types, DefaultTypes are queried.
func (c *Chain) Resolve(ctx context.Context, host string, types ...RecordType) (Result, error) {
	name := Normalize(host)
	if name == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	if len(types) == 0 {
		types = DefaultTypes
	}

	errs := make([]error, 0, len(c.strategies))
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return newResult(name), err
		}

		result, err := strategy.Lookup(ctx, name, types)
		if err != nil {
			c.logger.Debug("resolver strategy failed",
				"strategy", strategy.Name(), "host", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
			continue
		}

		result = result.only(types)
		result.Host = name
		if !result.Empty() {
			c.logger.Debug("resolver strategy answered",
				"strategy", strategy.Name(), "host", name, "records", len(result.Records()))
			return result, nil
		}
		c.logger.Debug("resolver strategy returned no records",
			"strategy", strategy.Name(), "host", name)
	}

	if len(c.strategies) == 0 {
		return newResult(name), ErrChainExhausted
	}
	if len(errs) == len(c.strategies) {
		return newResult(name), fmt.Errorf("%w: %w", ErrChainExhausted, errors.Join(errs...))
	}
	return newResult(name), nil
}

// Normalize reduces a host name or URL to a lower-case host name without
// scheme, path, port or trailing dot. Internationalized names are
// converted to their ASCII form.
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Hostname()
		}
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return host
}
