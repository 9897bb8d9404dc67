package model

import "strings"

// Link is a candidate hyperlink on the page the driver currently shows.
// It exists only for the duration of one traversal step.
type Link struct {
	// URL is the href value. It may be absolute or relative to the
	// page location.
	URL string `json:"url"`

	// Text is the visible anchor text.
	Text string `json:"text"`
}

// TrimmedText returns the anchor text without surrounding whitespace.
func (l Link) TrimmedText() string {
	return strings.TrimSpace(l.Text)
}
