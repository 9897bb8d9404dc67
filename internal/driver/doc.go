// Package driver executes page loads for a browsing session.
//
// A Driver loads a URL, reports where it ended up after redirects and lists
// the anchors of the current page. HTTPDriver does this with plain HTTP
// requests and goquery; ChromeDriver drives a headless Chrome through
// chromedp for sites that need JavaScript. Both also implement
// FormSubmitter so a search can be typed into the engine's own form instead
// of being sent as a crafted URL.
//
// Drivers hold the state of a single session and are not safe for
// concurrent use.
package driver
