package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nao1215/trafficcloak/internal/driver"
	"github.com/nao1215/trafficcloak/internal/egress"
	"github.com/nao1215/trafficcloak/internal/proxy"
	"github.com/nao1215/trafficcloak/internal/source"
)

// ErrUnknownDriver is returned by NewDriverFactory for an unsupported kind.
var ErrUnknownDriver = errors.New("unknown driver kind")

// Driver kinds understood by NewDriverFactory.
const (
	DriverHTTP   = "http"
	DriverChrome = "chrome"
)

const robotsTTL = time.Hour

// DriverFactory creates a fresh driver that egresses through p.
// A zero descriptor means a direct connection.
type DriverFactory func(p proxy.Descriptor) (driver.Driver, error)

// DriverSettings describes the drivers built for each session.
type DriverSettings struct {
	// Kind is DriverHTTP or DriverChrome.
	Kind string

	// UserAgents is the pool a user agent is drawn from per session.
	// DefaultUserAgent is used when it is empty.
	UserAgents       []string
	DefaultUserAgent string

	// Headers are sent on every HTTP driver request.
	Headers map[string]string

	// LinkSelectors narrow link enumeration. Empty means every anchor.
	LinkSelectors []string

	// CallTimeout bounds HTTP requests.
	CallTimeout time.Duration

	// Limiter is shared by all HTTP drivers. Nil disables pacing.
	Limiter *driver.HostLimiter

	RespectRobots bool
	MaxBodySize   int64

	ChromePath string
	Headless   bool

	// Rand picks the user agent. Nil uses a random seed.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// NewDriverFactory returns a factory for s.Kind.
func NewDriverFactory(s DriverSettings) (DriverFactory, error) {
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	rng := s.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // user agent choice is not security sensitive
	}
	var mu sync.Mutex
	userAgent := func() string {
		mu.Lock()
		defer mu.Unlock()
		if ua, err := source.RandomLine(s.UserAgents, rng); err == nil && ua != "" {
			return ua
		}
		return s.DefaultUserAgent
	}

	switch s.Kind {
	case DriverHTTP, "":
		return func(p proxy.Descriptor) (driver.Driver, error) {
			return newHTTPDriver(s, p, userAgent())
		}, nil
	case DriverChrome:
		return func(p proxy.Descriptor) (driver.Driver, error) {
			return newChromeDriver(s, p, userAgent()), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.Kind)
	}
}

func newHTTPDriver(s DriverSettings, p proxy.Descriptor, ua string) (driver.Driver, error) {
	opts := []egress.Option{egress.WithUserAgent(ua)}
	if s.CallTimeout > 0 {
		opts = append(opts, egress.WithTimeout(s.CallTimeout))
	}
	for key, value := range s.Headers {
		opts = append(opts, egress.WithHeader(key, value))
	}
	client, err := egress.ClientFor(p, opts...)
	if err != nil {
		return nil, err
	}

	driverOpts := []driver.HTTPOption{
		driver.WithUserAgent(ua),
		driver.WithLogger(s.Logger),
	}
	if len(s.LinkSelectors) > 0 {
		driverOpts = append(driverOpts, driver.WithLinkSelectors(s.LinkSelectors))
	}
	if s.Limiter != nil {
		driverOpts = append(driverOpts, driver.WithHostLimiter(s.Limiter))
	}
	if s.RespectRobots {
		driverOpts = append(driverOpts, driver.WithRobots(driver.NewRobotsGate(client, ua, robotsTTL)))
	}
	if s.MaxBodySize > 0 {
		driverOpts = append(driverOpts, driver.WithMaxBodySize(s.MaxBodySize))
	}
	return driver.NewHTTPDriver(client, driverOpts...), nil
}

func newChromeDriver(s DriverSettings, p proxy.Descriptor, ua string) driver.Driver {
	if p.HasAuth() {
		s.Logger.Warn("chrome cannot authenticate to proxies; credentials are dropped", "proxy", p.String())
	}
	opts := []driver.ChromeOption{
		driver.WithChromeUserAgent(ua),
		driver.WithChromeProxy(egress.ChromeProxyArg(p)),
		driver.WithHeadless(s.Headless),
		driver.WithExecPath(s.ChromePath),
		driver.WithChromeLogger(s.Logger),
	}
	if len(s.LinkSelectors) > 0 {
		opts = append(opts, driver.WithChromeLinkSelectors(s.LinkSelectors))
	}
	return driver.NewChromeDriver(opts...)
}
