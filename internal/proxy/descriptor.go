package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the protocol spoken to the proxy.
type Scheme string

const (
	// SchemeHTTP is a plain HTTP proxy.
	SchemeHTTP Scheme = "http"
	// SchemeHTTPS is an HTTP proxy reached over TLS.
	SchemeHTTPS Scheme = "https"
	// SchemeSOCKS5 is a SOCKS5 proxy.
	SchemeSOCKS5 Scheme = "socks5"
)

var (
	// ErrInvalidDescriptor is returned for text that is not a proxy URI
	// with scheme, host and port.
	ErrInvalidDescriptor = errors.New("invalid proxy descriptor")

	// ErrUnsupportedScheme is returned for schemes other than http, https
	// and socks5.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
)

// Descriptor is one egress path.
type Descriptor struct {
	Scheme   Scheme
	Host     string
	Port     int
	Username string
	Password string
}

// ParseURI parses scheme://[user[:pass]@]host:port.
func ParseURI(raw string) (Descriptor, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	if u.Scheme == "" || u.Hostname() == "" || u.Port() == "" {
		return Descriptor{}, fmt.Errorf("%w: scheme, host and port are required", ErrInvalidDescriptor)
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	switch scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS5:
	default:
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Descriptor{}, fmt.Errorf("%w: port %q out of range", ErrInvalidDescriptor, u.Port())
	}

	d := Descriptor{
		Scheme: scheme,
		Host:   u.Hostname(),
		Port:   port,
	}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	return d, nil
}

// Addr returns host:port.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// HasAuth reports whether the descriptor carries credentials.
func (d Descriptor) HasAuth() bool {
	return d.Username != ""
}

// URL returns the descriptor as a URL, credentials included.
func (d Descriptor) URL() *url.URL {
	u := &url.URL{
		Scheme: string(d.Scheme),
		Host:   d.Addr(),
	}
	switch {
	case d.Password != "":
		u.User = url.UserPassword(d.Username, d.Password)
	case d.Username != "":
		u.User = url.User(d.Username)
	}
	return u
}

// String returns the descriptor without credentials. It is safe to log.
func (d Descriptor) String() string {
	return string(d.Scheme) + "://" + d.Addr()
}

// IsZero reports whether d is the zero Descriptor.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}
