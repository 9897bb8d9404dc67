package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/trafficcloak/internal/source"
)

const (
	// EnvProxies holds an inline, comma separated pool.
	EnvProxies = "PROXIES"
	// EnvProxiesFile names a pool file. It is read only when PROXIES is empty.
	EnvProxiesFile = "PROXIES_FILE"
)

// ParseList parses each entry in order and skips the ones that fail,
// logging a warning for each.
func ParseList(entries []string, logger *slog.Logger) []Descriptor {
	pool := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		d, err := ParseURI(entry)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping proxy entry", "entry", redact(entry), "error", err)
			}
			continue
		}
		pool = append(pool, d)
	}
	return pool
}

// ParseInline parses a comma separated list.
func ParseInline(raw string, logger *slog.Logger) []Descriptor {
	return ParseList(strings.Split(raw, ","), logger)
}

// LoadFile parses a file with one descriptor per line.
func LoadFile(path string, logger *slog.Logger) ([]Descriptor, error) {
	lines, err := source.LoadLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxy file: %w", err)
	}
	return ParseList(lines, logger), nil
}

// Load builds the pool from the environment. PROXIES wins over
// PROXIES_FILE, which wins over defaultFile. A missing file yields an empty
// pool; other read errors are returned.
func Load(getenv func(string) string, defaultFile string, logger *slog.Logger) ([]Descriptor, error) {
	if inline := strings.TrimSpace(getenv(EnvProxies)); inline != "" {
		return ParseInline(inline, logger), nil
	}

	path := strings.TrimSpace(getenv(EnvProxiesFile))
	if path == "" {
		path = defaultFile
	}
	if path == "" {
		return []Descriptor{}, nil
	}

	pool, err := LoadFile(path, logger)
	if errors.Is(err, source.ErrSourceNotFound) {
		return []Descriptor{}, nil
	}
	return pool, err
}

// redact hides the password of a raw entry that failed to parse.
func redact(entry string) string {
	schemeEnd := strings.Index(entry, "://")
	at := strings.LastIndex(entry, "@")
	if schemeEnd < 0 || at < schemeEnd {
		return entry
	}
	userinfo := entry[schemeEnd+3 : at]
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		return entry[:schemeEnd+3] + user + ":***" + entry[at:]
	}
	return entry
}
