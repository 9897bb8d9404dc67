// Package egress builds network clients for a proxy descriptor.
//
// ClientFor returns an *http.Client that routes through an http, https or
// socks5 proxy, or connects directly when the descriptor is zero.
// ChromeProxyArg converts a descriptor into the value of Chrome's
// --proxy-server flag. Check probes a proxy before it is used; for SOCKS5
// proxies it performs a real protocol handshake rather than a bare TCP
// connect, so that a port answered by some other service is reported as
// the wrong type.
package egress
