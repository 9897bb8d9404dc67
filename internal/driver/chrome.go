package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/trafficcloak/internal/model"
)

// ChromeDriver drives a headless Chrome through chromedp. The browser is
// started on the first call and stopped by Close.
type ChromeDriver struct {
	headless    bool
	userAgent   string
	proxyServer string
	windowW     int
	windowH     int
	settle      time.Duration
	selectors   []string
	execPath    string
	logger      *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context //nolint:containedctx // chromedp keys the browser on this context
	browserCancel context.CancelFunc

	location string
}

// ChromeOption configures a ChromeDriver.
type ChromeOption func(*ChromeDriver)

// WithChromeUserAgent sets the browser user agent.
func WithChromeUserAgent(ua string) ChromeOption {
	return func(d *ChromeDriver) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithChromeProxy sets the --proxy-server flag, e.g. "socks5://host:1080".
func WithChromeProxy(server string) ChromeOption {
	return func(d *ChromeDriver) {
		d.proxyServer = server
	}
}

// WithHeadless toggles headless mode.
func WithHeadless(headless bool) ChromeOption {
	return func(d *ChromeDriver) {
		d.headless = headless
	}
}

// WithWindowSize sets the browser window size.
func WithWindowSize(width, height int) ChromeOption {
	return func(d *ChromeDriver) {
		if width > 0 && height > 0 {
			d.windowW, d.windowH = width, height
		}
	}
}

// WithSettleDelay sets how long to wait after the document is ready so
// that scripts can add late content.
func WithSettleDelay(delay time.Duration) ChromeOption {
	return func(d *ChromeDriver) {
		d.settle = delay
	}
}

// WithChromeLinkSelectors sets the CSS selector chain used by CurrentLinks.
func WithChromeLinkSelectors(selectors []string) ChromeOption {
	return func(d *ChromeDriver) {
		if len(selectors) > 0 {
			d.selectors = selectors
		}
	}
}

// WithExecPath sets the Chrome binary. Empty means chromedp's lookup.
func WithExecPath(path string) ChromeOption {
	return func(d *ChromeDriver) {
		d.execPath = path
	}
}

// WithChromeLogger sets the logger.
func WithChromeLogger(logger *slog.Logger) ChromeOption {
	return func(d *ChromeDriver) {
		d.logger = logger
	}
}

// NewChromeDriver creates a ChromeDriver. No browser is started yet.
func NewChromeDriver(opts ...ChromeOption) *ChromeDriver {
	d := &ChromeDriver{
		headless:  true,
		userAgent: DefaultUserAgent,
		windowW:   1920,
		windowH:   1080,
		settle:    250 * time.Millisecond,
		selectors: DefaultLinkSelectors,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// allocatorOptions returns the Chrome command line for this driver.
func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(d.windowW, d.windowH),
		chromedp.UserAgent(d.userAgent),
	}
	if d.proxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(d.proxyServer))
	}
	if d.execPath != "" {
		opts = append(opts, chromedp.ExecPath(d.execPath))
	}
	return opts
}

// start launches the browser once.
func (d *ChromeDriver) start() error {
	if d.browserCtx != nil {
		return nil
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start chrome: %w", err)
	}
	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	return nil
}

// run executes actions in the browser, bounded by ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := d.start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Load navigates to target and waits for the document to be ready.
func (d *ChromeDriver) Load(ctx context.Context, target string) error {
	var location string
	err := d.run(ctx,
		chromedp.Navigate(target),
		waitForDocumentReady(),
		chromedp.Sleep(d.settle),
		chromedp.Location(&location),
	)
	if err != nil {
		return navigationError(target, 0, err)
	}
	d.location = location
	d.logger.Debug("page loaded", "url", location)
	return nil
}

// SubmitForm loads pageURL, types value into the element named field and
// submits its form.
func (d *ChromeDriver) SubmitForm(ctx context.Context, pageURL, field, value string) error {
	selector := fmt.Sprintf(`[name=%q]`, field)
	var location string
	err := d.run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
		chromedp.Submit(selector, chromedp.ByQuery),
		waitForDocumentReady(),
		chromedp.Sleep(d.settle),
		chromedp.Location(&location),
	)
	if err != nil {
		return navigationError(pageURL, 0, err)
	}
	d.location = location
	return nil
}

// CurrentLinks evaluates the selector chain in the page.
func (d *ChromeDriver) CurrentLinks(ctx context.Context) ([]model.Link, error) {
	if d.browserCtx == nil || d.location == "" {
		return nil, ErrNoPage
	}

	script, err := linksScript(d.selectors)
	if err != nil {
		return nil, err
	}

	links := make([]model.Link, 0)
	if err := d.run(ctx, chromedp.Evaluate(script, &links)); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	for i := range links {
		links[i].Text = collapseSpace(links[i].Text)
	}
	return links, nil
}

// CurrentLocation returns the URL the browser is showing.
func (d *ChromeDriver) CurrentLocation() string {
	return d.location
}

// Close stops the browser.
func (d *ChromeDriver) Close() error {
	if d.browserCancel != nil {
		d.browserCancel()
		d.browserCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.browserCtx = nil
	return nil
}

// linksScript builds a script that returns [{url, text}] for the first
// selector matching at least one anchor, falling back to every anchor.
func linksScript(selectors []string) (string, error) {
	chain := append(append([]string{}, selectors...), "a[href]")
	encoded, err := json.Marshal(chain)
	if err != nil {
		return "", fmt.Errorf("failed to encode selectors: %w", err)
	}
	return strings.ReplaceAll(`(() => {
	for (const sel of SELECTORS) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		const out = [];
		nodes.forEach((a) => {
			const href = a.getAttribute("href");
			if (!href || href.startsWith("#") || /^(javascript|mailto|tel|data):/i.test(href)) return;
			out.push({url: a.href || href, text: (a.innerText || a.textContent || "")});
		});
		if (out.length > 0) return out;
	}
	return [];
})()`, "SELECTORS", string(encoded)), nil
}

// waitForDocumentReady polls document.readyState until it is complete.
func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
