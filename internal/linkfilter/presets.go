package linkfilter

import "strings"

// WikipediaDenyPatterns excludes MediaWiki namespaces that are not articles.
var WikipediaDenyPatterns = []string{
	"/wiki/File:",
	"/wiki/Category:",
	"/wiki/Template:",
	"/wiki/Help:",
	"/wiki/Wikipedia:",
	"/wiki/Special:",
	"/wiki/Talk:",
	"/wiki/User:",
	"/wiki/MediaWiki:",
}

// SelfLinkPatterns excludes links that point back into a search engine
// (result pages, account and settings pages) so that a session leaves the
// engine after the search. host is the engine host, e.g. "www.google.com".
func SelfLinkPatterns(host string) []string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	patterns := []string{
		"/search?",
		"/preferences",
		"/advanced_search",
		"/setprefs",
		"javascript:",
	}
	if host == "" {
		return patterns
	}
	return append(patterns,
		host+"/",
		"accounts."+host,
		"support."+host,
		"policies."+host,
		"maps."+host,
	)
}

// Presets maps a preset name used in configuration to its patterns.
// Search engine presets need the engine host and are built by the caller
// with SelfLinkPatterns.
func Presets() map[string][]string {
	return map[string][]string{
		"wikipedia": WikipediaDenyPatterns,
	}
}
