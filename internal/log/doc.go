// Package log provides slog loggers that mask sensitive values.
//
// The SecureHandler masks:
//   - HTTP headers such as Cookie, Authorization and Proxy-Authorization
//   - attributes whose key names a secret (password, token, auth, ...)
//   - values that look like bearer or basic credentials
//   - the userinfo part of proxy URIs, keeping scheme, host and port
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("session started", "proxy", "socks5://user:pw@10.0.0.1:1080")
//	// proxy=socks5://***REDACTED***@10.0.0.1:1080
//
// The same logger is handed to tornago when the embedded Tor daemon is used.
package log
