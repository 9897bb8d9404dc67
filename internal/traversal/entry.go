package traversal

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/nao1215/trafficcloak/internal/driver"
	"github.com/nao1215/trafficcloak/internal/model"
)

// ErrConfiguration marks entry failures caused by configuration rather than
// by the network, such as an empty template corpus.
var ErrConfiguration = errors.New("session configuration error")

// EntryAction starts a session on its first page.
type EntryAction interface {
	// Kind is recorded in the session report.
	Kind() model.Kind

	// Enter loads the first page and returns a description of how the
	// session started (the URL or the query).
	Enter(ctx context.Context, d driver.Driver) (string, error)
}

// URLEntry starts at a fixed URL.
type URLEntry struct {
	URL string
}

// Kind returns model.KindCrawl.
func (e URLEntry) Kind() model.Kind {
	return model.KindCrawl
}

// Enter loads the URL.
func (e URLEntry) Enter(ctx context.Context, d driver.Driver) (string, error) {
	return e.URL, d.Load(ctx, e.URL)
}

// Phraser produces a search phrase.
type Phraser interface {
	Synthesize() (string, error)
}

// SearchEntry searches for a synthesized phrase.
//
// When the driver can submit forms, the phrase is typed into the Field of
// the form on FormURL. Otherwise FormURL is loaded with the phrase as the
// Field query parameter.
type SearchEntry struct {
	FormURL string
	Field   string
	Phrases Phraser
}

// Kind returns model.KindSearch.
func (e SearchEntry) Kind() model.Kind {
	return model.KindSearch
}

// Enter synthesizes a phrase and submits it.
func (e SearchEntry) Enter(ctx context.Context, d driver.Driver) (string, error) {
	if e.Phrases == nil {
		return "", fmt.Errorf("%w: no phrase source", ErrConfiguration)
	}
	phrase, err := e.Phrases.Synthesize()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	field := e.Field
	if field == "" {
		field = "q"
	}

	if fs, ok := d.(driver.FormSubmitter); ok {
		return phrase, fs.SubmitForm(ctx, e.FormURL, field, phrase)
	}

	u, err := url.Parse(e.FormURL)
	if err != nil {
		return phrase, fmt.Errorf("%w: invalid search URL: %w", ErrConfiguration, err)
	}
	q := u.Query()
	q.Set(field, phrase)
	u.RawQuery = q.Encode()
	return phrase, d.Load(ctx, u.String())
}
