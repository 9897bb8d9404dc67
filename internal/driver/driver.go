package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/trafficcloak/internal/model"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	// ErrNavigation is matched by every load failure.
	ErrNavigation = errors.New("navigation failed")

	// ErrNoPage is returned when links are requested before a page loaded.
	ErrNoPage = errors.New("no page loaded")

	// ErrFormNotFound is returned when a page has no form with the
	// requested field.
	ErrFormNotFound = errors.New("search form not found")

	// ErrDisallowed is returned when robots.txt forbids the target.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Driver loads pages and exposes the anchors of the current one.
type Driver interface {
	// Load navigates to target. Failures wrap ErrNavigation.
	Load(ctx context.Context, target string) error

	// CurrentLinks returns the anchors of the current page.
	CurrentLinks(ctx context.Context) ([]model.Link, error)

	// CurrentLocation returns the URL of the current page after
	// redirects, or "" before the first successful load.
	CurrentLocation() string

	// Close releases browser or connection resources.
	Close() error
}

// FormSubmitter is implemented by drivers that can fill in and submit a
// form the way a user would.
type FormSubmitter interface {
	// SubmitForm loads pageURL, sets field to value in the form that
	// contains it and submits that form. Failures wrap ErrNavigation.
	SubmitForm(ctx context.Context, pageURL, field, value string) error
}

// NavigationError describes a failed load.
type NavigationError struct {
	// URL is the target that failed.
	URL string

	// StatusCode is the HTTP status when the server answered, else 0.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *NavigationError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("navigation to %s failed: HTTP %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("navigation to %s failed", e.URL)
	}
}

// Unwrap returns the underlying cause.
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Is makes every NavigationError match ErrNavigation.
func (e *NavigationError) Is(target error) bool {
	return target == ErrNavigation
}

func navigationError(target string, status int, err error) error {
	return &NavigationError{URL: target, StatusCode: status, Err: err}
}
