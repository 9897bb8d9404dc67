// Package source loads line-oriented data files: sentence templates, word
// pools, user agents and the ranked domain list used for lookups.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

var (
	// ErrSourceNotFound is returned when a data file does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrEmptySource is returned when a random pick is requested from an
	// empty set of lines.
	ErrEmptySource = errors.New("source has no lines")
)

// LoadLines reads path and returns one entry per line, in file order.
// Trailing carriage returns are stripped and blank lines are skipped.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // data file paths come from operator configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	lines := make([]string, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// RandomLine returns one line chosen uniformly at random.
func RandomLine(lines []string, rng *rand.Rand) (string, error) {
	if len(lines) == 0 {
		return "", ErrEmptySource
	}
	return lines[rng.IntN(len(lines))], nil
}
