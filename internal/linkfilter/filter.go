package linkfilter

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/trafficcloak/internal/model"
)

const (
	// MinTextLength is the exclusive lower bound on anchor text length.
	MinTextLength = 2
	// MaxTextLength is the exclusive upper bound on anchor text length.
	MaxTextLength = 100
)

// ShuffleFunc has the signature of rand.Shuffle and (*rand.Rand).Shuffle.
type ShuffleFunc func(n int, swap func(i, j int))

// Filter returns at most maxLinksPerPage eligible links in random order.
// A maxLinksPerPage below one disables truncation. The result is never nil.
func Filter(candidates []model.Link, deny []string, maxLinksPerPage int) []model.Link {
	return FilterWith(rand.Shuffle, candidates, deny, maxLinksPerPage)
}

// FilterWith is Filter with an explicit shuffle, for deterministic callers.
func FilterWith(shuffle ShuffleFunc, candidates []model.Link, deny []string, maxLinksPerPage int) []model.Link {
	eligible := make([]model.Link, 0, len(candidates))
	for _, link := range candidates {
		if Eligible(link, deny) {
			eligible = append(eligible, link)
		}
	}

	shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	if maxLinksPerPage > 0 && len(eligible) > maxLinksPerPage {
		eligible = eligible[:maxLinksPerPage]
	}
	return eligible
}

// Eligible reports whether a single link passes the text and deny checks.
func Eligible(link model.Link, deny []string) bool {
	length := TextLength(link.Text)
	if length <= MinTextLength || length >= MaxTextLength {
		return false
	}
	return !Denied(link.URL, deny)
}

// Denied reports whether rawURL contains any of the deny substrings.
// Empty patterns are ignored.
func Denied(rawURL string, deny []string) bool {
	for _, pattern := range deny {
		if pattern != "" && strings.Contains(rawURL, pattern) {
			return true
		}
	}
	return false
}

// TextLength counts the characters of the trimmed anchor text after NFC
// normalization, so a base letter plus combining mark counts once.
func TextLength(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return utf8.RuneCountInString(norm.NFC.String(trimmed))
}
