package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Domain is one row of a ranked site list such as top-1m.csv.
type Domain struct {
	Rank string
	Name string
}

// LoadDomains reads a "rank,domain" CSV file. Rows without a second column
// or with an empty domain are skipped.
func LoadDomains(path string) ([]Domain, error) {
	f, err := os.Open(path) //nolint:gosec // data file paths come from operator configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return parseDomains(f)
}

func parseDomains(r io.Reader) ([]Domain, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	domains := make([]Domain, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse domain list: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[1])
		if name == "" {
			continue
		}
		domains = append(domains, Domain{Rank: strings.TrimSpace(record[0]), Name: name})
	}
	return domains, nil
}
