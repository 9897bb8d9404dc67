package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/nao1215/trafficcloak/internal/linkfilter"
)

// PresetSelf expands to the self-link patterns of the profile's search host.
const PresetSelf = "self"

// Dwell is a simulated reading time range.
type Dwell struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Profile configures one kind of session.
type Profile struct {
	// EntryURL is loaded first by a crawl session.
	EntryURL string `yaml:"entryUrl,omitempty"`

	// SearchURL is the page holding the search form of a search session.
	SearchURL string `yaml:"searchUrl,omitempty"`

	// QueryField is the name of the search input. Defaults to "q".
	QueryField string `yaml:"queryField,omitempty"`

	// DenyPatterns are URL substrings that make a link ineligible.
	DenyPatterns []string `yaml:"denyPatterns,omitempty"`

	// DenyPresets name built-in pattern sets: "wikipedia" or "self".
	DenyPresets []string `yaml:"denyPresets,omitempty"`

	// LinkSelectors are CSS selectors tried in order for link discovery.
	LinkSelectors []string `yaml:"linkSelectors,omitempty"`

	// Depth is the number of hops after the entry page.
	Depth int `yaml:"depth"`

	// LinksPerPage caps the candidate links considered per page.
	LinksPerPage int `yaml:"linksPerPage"`

	// EntryDwell is the reading time after the entry page.
	EntryDwell Dwell `yaml:"entryDwell"`

	// HopDwell is the reading time after each hop.
	HopDwell Dwell `yaml:"hopDwell"`

	// Headers are extra HTTP headers sent by the HTTP driver.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Corpus lists the template file and the word pool files of the
// query synthesizer. Relative paths are resolved against the data dir.
type Corpus struct {
	Templates string            `yaml:"templates"`
	Pools     map[string]string `yaml:"pools"`
}

// Resolver configures the DNS strategy chain.
type Resolver struct {
	// DoH lists DNS-over-HTTPS JSON endpoints, tried in order.
	DoH []string `yaml:"doh,omitempty"`

	// System appends the system resolver to the chain. Nil means true.
	System *bool `yaml:"system,omitempty"`
}

// UseSystem reports whether the system resolver is part of the chain.
func (r Resolver) UseSystem() bool {
	return r.System == nil || *r.System
}

// File represents the structure of the .trafficcloak configuration file.
type File struct {
	Search   Profile  `yaml:"search"`
	Crawl    Profile  `yaml:"crawl"`
	Corpus   Corpus   `yaml:"corpus"`
	Resolver Resolver `yaml:"resolver"`

	// Proxies are proxy URIs added to the pool after PROXIES/PROXIES_FILE.
	Proxies []string `yaml:"proxies,omitempty"`

	// Domains is the rank,domain CSV used by the lookup action.
	Domains string `yaml:"domains,omitempty"`

	// UserAgents is the optional user-agent list file.
	UserAgents string `yaml:"userAgents,omitempty"`
}

// DefaultSearchProfile submits a synthesized phrase to Google and
// wanders three hops away from the result page.
func DefaultSearchProfile() Profile {
	return Profile{
		SearchURL:   "https://www.google.com/",
		QueryField:  "q",
		DenyPresets: []string{PresetSelf},
		LinkSelectors: []string{
			`a[jsname="UWckNb"]`,
			"h3 > a",
			"[data-ved] h3 a",
			`div[data-ved] a[href^="http"]`,
			`#search a[href^="http"]`,
			`#rso a[href^="http"]`,
			"cite + a",
			"a[ping]",
			"a[href]",
		},
		Depth:        3,
		LinksPerPage: 10,
		EntryDwell:   Dwell{Min: 2 * time.Second, Max: 4 * time.Second},
		HopDwell:     Dwell{Min: 2 * time.Second, Max: 6 * time.Second},
	}
}

// DefaultCrawlProfile starts from a random Wikipedia article and follows
// article links only.
func DefaultCrawlProfile() Profile {
	return Profile{
		EntryURL:    "https://en.wikipedia.org/wiki/Special:Random",
		DenyPresets: []string{"wikipedia"},
		LinkSelectors: []string{
			`#mw-content-text a[href^="/wiki/"]:not([href*=":"]):not([href*="#"])`,
			`.mw-parser-output a[href^="/wiki/"]:not([href*=":"]):not([href*="#"])`,
			`#bodyContent a[href^="/wiki/"]:not([href*=":"]):not([href*="#"])`,
		},
		Depth:        5,
		LinksPerPage: 10,
		EntryDwell:   Dwell{Min: 3 * time.Second, Max: 8 * time.Second},
		HopDwell:     Dwell{Min: 2 * time.Second, Max: 6 * time.Second},
	}
}

// DefaultCorpus is the data file layout shipped in data/.
func DefaultCorpus() Corpus {
	return Corpus{
		Templates: "sentence.txt",
		Pools: map[string]string{
			"[noun]":   "nouns.txt",
			"[object]": "object.txt",
			"[verb]":   "verb.txt",
			"[number]": "number.txt",
		},
	}
}

// DefaultFile returns the built-in configuration.
func DefaultFile() *File {
	return &File{
		Search:     DefaultSearchProfile(),
		Crawl:      DefaultCrawlProfile(),
		Corpus:     DefaultCorpus(),
		Domains:    DefaultDomainsFile,
		UserAgents: DefaultUserAgentsFile,
	}
}

// Merge overlays the values set in cf on the built-in configuration.
func (cf *File) Merge() *File {
	out := DefaultFile()
	out.Search = mergeProfile(out.Search, cf.Search)
	out.Crawl = mergeProfile(out.Crawl, cf.Crawl)
	if cf.Corpus.Templates != "" {
		out.Corpus.Templates = cf.Corpus.Templates
	}
	if len(cf.Corpus.Pools) > 0 {
		out.Corpus.Pools = cf.Corpus.Pools
	}
	out.Resolver = cf.Resolver
	out.Proxies = cf.Proxies
	if cf.Domains != "" {
		out.Domains = cf.Domains
	}
	if cf.UserAgents != "" {
		out.UserAgents = cf.UserAgents
	}
	return out
}

func mergeProfile(base, override Profile) Profile {
	result := base
	if override.EntryURL != "" {
		result.EntryURL = override.EntryURL
	}
	if override.SearchURL != "" {
		result.SearchURL = override.SearchURL
	}
	if override.QueryField != "" {
		result.QueryField = override.QueryField
	}
	if override.DenyPatterns != nil {
		result.DenyPatterns = override.DenyPatterns
	}
	if override.DenyPresets != nil {
		result.DenyPresets = override.DenyPresets
	}
	if len(override.LinkSelectors) > 0 {
		result.LinkSelectors = override.LinkSelectors
	}
	if override.Depth != 0 {
		result.Depth = override.Depth
	}
	if override.LinksPerPage != 0 {
		result.LinksPerPage = override.LinksPerPage
	}
	if override.EntryDwell != (Dwell{}) {
		result.EntryDwell = override.EntryDwell
	}
	if override.HopDwell != (Dwell{}) {
		result.HopDwell = override.HopDwell
	}
	if len(override.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(override.Headers))
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	return result
}

// DenyList expands the presets and appends the explicit patterns.
func (p Profile) DenyList() ([]string, error) {
	presets := linkfilter.Presets()
	var out []string
	for _, name := range p.DenyPresets {
		if name == PresetSelf {
			out = append(out, linkfilter.SelfLinkPatterns(p.searchHost())...)
			continue
		}
		patterns, ok := presets[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
		out = append(out, patterns...)
	}
	out = append(out, p.DenyPatterns...)
	return slices.Compact(out), nil
}

func (p Profile) searchHost() string {
	raw := p.SearchURL
	if raw == "" {
		raw = p.EntryURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Validate checks one profile.
func (p Profile) Validate() error {
	if p.EntryURL == "" && p.SearchURL == "" {
		return ErrNoEntry
	}
	if p.Depth < 0 {
		return ErrInvalidDepth
	}
	if p.LinksPerPage <= 0 {
		return ErrInvalidLinksPerPage
	}
	for _, d := range []Dwell{p.EntryDwell, p.HopDwell} {
		if d.Min < 0 || d.Max < 0 || d.Min > d.Max {
			return ErrInvalidDwell
		}
	}
	if _, err := p.DenyList(); err != nil {
		return err
	}
	return nil
}

// Validate checks both profiles.
func (cf *File) Validate() error {
	if err := cf.Search.Validate(); err != nil {
		return err
	}
	return cf.Crawl.Validate()
}
