package resolver

import (
	"context"
	"errors"
	"net"
)

// SystemStrategy resolves through net.Resolver, which uses the operating
// system configuration.
type SystemStrategy struct {
	resolver *net.Resolver
}

// NewSystemStrategy creates a SystemStrategy. A nil resolver means
// net.DefaultResolver.
func NewSystemStrategy(resolver *net.Resolver) *SystemStrategy {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &SystemStrategy{resolver: resolver}
}

// Name returns "system".
func (s *SystemStrategy) Name() string {
	return "system"
}

// Lookup resolves each type separately. NXDOMAIN and empty answers are
// reported as no records.
func (s *SystemStrategy) Lookup(ctx context.Context, host string, types []RecordType) (Result, error) {
	result := newResult(host)
	errs := make([]error, 0)
	answered := false

	for _, t := range types {
		network := ""
		switch t {
		case TypeA:
			network = "ip4"
		case TypeAAAA:
			network = "ip6"
		default:
			continue
		}

		ips, err := s.resolver.LookupIP(ctx, network, host)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				answered = true
				continue
			}
			errs = append(errs, err)
			continue
		}
		answered = true

		for _, ip := range ips {
			if t == TypeA {
				result.A = append(result.A, ip.String())
			} else {
				result.AAAA = append(result.AAAA, ip.String())
			}
		}
	}

	if !answered && len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}
