// Package tor runs an embedded Tor daemon with tornago and exposes its
// SOCKS listener as a socks5 proxy descriptor, so that Tor is simply one
// more egress path in the rotation pool.
package tor
