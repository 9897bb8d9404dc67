// Package linkfilter decides which anchors on a page are worth following.
//
// A link is eligible when its trimmed anchor text is longer than two and
// shorter than one hundred characters and its URL contains none of the
// deny-list substrings. Eligible links are shuffled before being cut down to
// the per-page limit so that the survivors are not biased toward the top of
// the page.
package linkfilter
