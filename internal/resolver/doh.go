package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultDoHEndpoint is the JSON DNS-over-HTTPS endpoint used when none is
// configured.
const DefaultDoHEndpoint = "https://dns.google/resolve"

const maxDoHResponseSize = 1 << 20

// typeCodes maps record types to their numeric codes in DoH answers.
var typeCodes = map[RecordType]int{
	TypeA:    1,
	TypeAAAA: 28,
}

// dohResponse is the JSON DNS response shape used by dns.google and
// cloudflare-dns.com.
type dohResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
		TTL  int    `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// DoHStrategy queries a JSON DNS-over-HTTPS endpoint.
type DoHStrategy struct {
	endpoint string
	client   func() *http.Client
}

// DoHOption configures a DoHStrategy.
type DoHOption func(*DoHStrategy)

// WithClientFunc sets the function that provides the HTTP client for each
// lookup. Callers use it to route each lookup through the next proxy.
func WithClientFunc(fn func() *http.Client) DoHOption {
	return func(s *DoHStrategy) {
		s.client = fn
	}
}

// WithHTTPClient uses one fixed HTTP client.
func WithHTTPClient(client *http.Client) DoHOption {
	return func(s *DoHStrategy) {
		s.client = func() *http.Client { return client }
	}
}

// NewDoHStrategy creates a strategy for endpoint. An empty endpoint means
// DefaultDoHEndpoint.
func NewDoHStrategy(endpoint string, opts ...DoHOption) *DoHStrategy {
	if endpoint == "" {
		endpoint = DefaultDoHEndpoint
	}
	s := &DoHStrategy{endpoint: endpoint}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		client := &http.Client{Timeout: 5 * time.Second}
		s.client = func() *http.Client { return client }
	}
	return s
}

// Name returns "doh:" followed by the endpoint host.
func (s *DoHStrategy) Name() string {
	if u, err := url.Parse(s.endpoint); err == nil && u.Host != "" {
		return "doh:" + u.Host
	}
	return "doh"
}

// Lookup issues one query per record type. A response with a non-zero
// Status, a non-2xx HTTP status or a body that is not valid JSON counts as
// no records. Only transport failures are errors, and only when no type
// produced an answer.
func (s *DoHStrategy) Lookup(ctx context.Context, host string, types []RecordType) (Result, error) {
	result := newResult(host)
	client := s.client()

	errs := make([]error, 0)
	answered := false
	for _, t := range types {
		code, ok := typeCodes[t]
		if !ok {
			continue
		}

		records, err := s.query(ctx, client, host, t, code)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		answered = true

		switch t {
		case TypeA:
			result.A = append(result.A, records...)
		case TypeAAAA:
			result.AAAA = append(result.AAAA, records...)
		}
	}

	if !answered && len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (s *DoHStrategy) query(ctx context.Context, client *http.Client, host string, t RecordType, code int) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", s.endpoint, err)
	}
	q := u.Query()
	q.Set("name", host)
	q.Set("type", string(t))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", host, t, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return []string{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDoHResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", host, t, err)
	}

	var parsed dohResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Status != 0 {
		return []string{}, nil
	}

	records := make([]string, 0, len(parsed.Answer))
	for _, answer := range parsed.Answer {
		if answer.Type == code && strings.TrimSpace(answer.Data) != "" {
			records = append(records, strings.TrimSpace(answer.Data))
		}
	}
	return records, nil
}
