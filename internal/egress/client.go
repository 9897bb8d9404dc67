package egress

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/nao1215/trafficcloak/internal/proxy"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRedirects = 10
)

// settings collects Option values.
type settings struct {
	timeout time.Duration
	headers map[string]string
}

// Option configures the clients built by ClientFor.
type Option func(*settings)

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// WithUserAgent sends ua on every request, redirects included.
func WithUserAgent(ua string) Option {
	return WithHeader("User-Agent", ua)
}

// WithHeader sends a fixed header on every request.
func WithHeader(key, value string) Option {
	return func(s *settings) {
		if value != "" {
			s.headers[key] = value
		}
	}
}

// ClientFor builds an HTTP client that egresses through d. A zero
// descriptor yields a direct client.
func ClientFor(d proxy.Descriptor, opts ...Option) (*http.Client, error) {
	s := &settings{
		timeout: defaultTimeout,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	transport, err := newTransport(d)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	if len(s.headers) > 0 {
		rt = &headerInjectingTransport{base: transport, headers: s.headers}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: rt,
		Timeout:   s.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= defaultMaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

func newTransport(d proxy.Descriptor) (*http.Transport, error) {
	base := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           base.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if d.IsZero() {
		return transport, nil
	}

	switch d.Scheme {
	case proxy.SchemeHTTP, proxy.SchemeHTTPS:
		transport.Proxy = http.ProxyURL(d.URL())
	case proxy.SchemeSOCKS5:
		dialer, err := socks5Dialer(d, base)
		if err != nil {
			return nil, err
		}
		transport.DialContext = dialer
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, d.Scheme)
	}
	return transport, nil
}

// socks5Dialer returns a context-aware dial function through d.
func socks5Dialer(d proxy.Descriptor, forward *net.Dialer) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	var auth *xproxy.Auth
	if d.HasAuth() {
		auth = &xproxy.Auth{User: d.Username, Password: d.Password}
	}

	dialer, err := xproxy.SOCKS5("tcp", d.Addr(), auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(xproxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := dialer.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case result := <-resultCh:
			return result.conn, result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}

// ChromeProxyArg returns the --proxy-server value for d, or "" for a zero
// descriptor. Chrome does not accept credentials in this flag, so they are
// dropped; callers warn when d.HasAuth().
func ChromeProxyArg(d proxy.Descriptor) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// headerInjectingTransport sets fixed headers on every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(clone)
}
