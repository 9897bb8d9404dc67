package driver

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/nao1215/trafficcloak/internal/model"
)

// DefaultLinkSelectors is the selector chain used when none is configured.
// The first selector that matches at least one anchor wins.
var DefaultLinkSelectors = []string{"a[href]"}

// HTTPDriver loads pages with plain HTTP requests.
type HTTPDriver struct {
	// client is built by the caller for the session's egress path.
	client *http.Client

	// userAgent is sent with every request.
	userAgent string

	// selectors are tried in order when listing links.
	selectors []string

	// limiter spaces requests per host. Nil disables it.
	limiter *HostLimiter

	// robots gates requests on robots.txt. Nil disables it.
	robots *RobotsGate

	// maxBodySize caps how much of a response body is parsed.
	maxBodySize int64

	logger *slog.Logger

	// location and doc describe the current page.
	location *url.URL
	doc      *goquery.Document
}

// HTTPOption configures an HTTPDriver.
type HTTPOption func(*HTTPDriver)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(d *HTTPDriver) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithLinkSelectors sets the CSS selector chain used by CurrentLinks.
func WithLinkSelectors(selectors []string) HTTPOption {
	return func(d *HTTPDriver) {
		if len(selectors) > 0 {
			d.selectors = selectors
		}
	}
}

// WithHostLimiter enables per-host request spacing.
func WithHostLimiter(l *HostLimiter) HTTPOption {
	return func(d *HTTPDriver) {
		d.limiter = l
	}
}

// WithRobots enables robots.txt checks.
func WithRobots(g *RobotsGate) HTTPOption {
	return func(d *HTTPDriver) {
		d.robots = g
	}
}

// WithMaxBodySize caps the parsed body size.
func WithMaxBodySize(size int64) HTTPOption {
	return func(d *HTTPDriver) {
		if size > 0 {
			d.maxBodySize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(d *HTTPDriver) {
		d.logger = logger
	}
}

// NewHTTPDriver creates a driver that sends requests with client. A nil
// client means a direct client with a 30 second timeout.
func NewHTTPDriver(client *http.Client, opts ...HTTPOption) *HTTPDriver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	d := &HTTPDriver{
		client:      client,
		userAgent:   DefaultUserAgent,
		selectors:   DefaultLinkSelectors,
		maxBodySize: 5 * 1024 * 1024,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load fetches target and makes it the current page.
func (d *HTTPDriver) Load(ctx context.Context, target string) error {
	u, err := d.checkTarget(ctx, target)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return navigationError(target, 0, err)
	}
	return d.do(req, target)
}

// SubmitForm loads pageURL, fills field with value in the first form that
// has that field and submits it with the form's method.
func (d *HTTPDriver) SubmitForm(ctx context.Context, pageURL, field, value string) error {
	if err := d.Load(ctx, pageURL); err != nil {
		return err
	}

	var form *formInfo
	if len(d.doc.Nodes) > 0 {
		for _, f := range parseNode(d.location, d.doc.Nodes[0]).forms {
			if f.has(field) {
				form = &f
				break
			}
		}
	}
	if form == nil {
		return navigationError(pageURL, 0, fmt.Errorf("%w: field %q", ErrFormNotFound, field))
	}

	action, err := d.checkTarget(ctx, form.action)
	if err != nil {
		return err
	}
	values := form.values(field, value)

	var req *http.Request
	if form.method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		action.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, action.String(), nil)
	}
	if err != nil {
		return navigationError(action.String(), 0, err)
	}
	req.Header.Set("Referer", d.location.String())
	return d.do(req, action.String())
}

// CurrentLinks returns the anchors matched by the first selector that
// yields any. When no selector matches, every anchor of the page is
// returned.
func (d *HTTPDriver) CurrentLinks(_ context.Context) ([]model.Link, error) {
	if d.doc == nil {
		return nil, ErrNoPage
	}

	for _, selector := range d.selectors {
		links := make([]model.Link, 0)
		d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			if resolved := resolveURL(d.location, href); resolved != "" {
				links = append(links, model.Link{URL: resolved, Text: collapseSpace(s.Text())})
			}
		})
		if len(links) > 0 {
			d.logger.Debug("links found", "selector", selector, "count", len(links))
			return links, nil
		}
	}

	if len(d.doc.Nodes) == 0 {
		return []model.Link{}, nil
	}
	return parseNode(d.location, d.doc.Nodes[0]).links, nil
}

// CurrentLocation returns the final URL of the current page.
func (d *HTTPDriver) CurrentLocation() string {
	if d.location == nil {
		return ""
	}
	return d.location.String()
}

// Title returns the title of the current page.
func (d *HTTPDriver) Title() string {
	if d.doc == nil {
		return ""
	}
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Close releases idle connections.
func (d *HTTPDriver) Close() error {
	d.client.CloseIdleConnections()
	d.doc = nil
	return nil
}

// checkTarget validates target and applies robots.txt and rate limits.
func (d *HTTPDriver) checkTarget(ctx context.Context, target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, navigationError(target, 0, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, navigationError(target, 0, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if !d.robots.Allowed(ctx, u) {
		return nil, navigationError(target, 0, ErrDisallowed)
	}
	if err := d.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, navigationError(target, 0, err)
	}
	return u, nil
}

// do sends req and replaces the current page with the response.
func (d *HTTPDriver) do(req *http.Request, target string) error {
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := d.client.Do(req)
	if err != nil {
		return navigationError(target, 0, err)
	}
	body, err := d.readBody(resp)
	if err != nil {
		return navigationError(target, 0, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return navigationError(target, resp.StatusCode, nil)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return navigationError(target, 0, fmt.Errorf("parse html: %w", err))
	}

	d.location = req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		d.location = resp.Request.URL
	}
	d.doc = doc
	d.logger.Debug("page loaded", "url", d.location.String(), "status", resp.StatusCode, "bytes", len(body))
	return nil
}

// readBody decodes the response body and truncates it to maxBodySize.
func (d *HTTPDriver) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		dr, err := deflateReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("deflate decode: %w", err)
		}
		reader = dr
		closers = append(closers, dr)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close() //nolint:errcheck // read-only body
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, d.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// deflateReader decodes a "deflate" content coding. The coding is a zlib
// stream, but some servers send raw DEFLATE, so a body without a valid
// zlib header is read as raw DEFLATE.
func deflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 0 {
		return io.NopCloser(br), nil
	}
	if len(header) == 2 && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}
