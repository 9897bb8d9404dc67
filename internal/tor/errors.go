package tor

import "errors"

var (
	// ErrNotRunning is returned when the SOCKS address of a daemon that was
	// never started, or already stopped, is requested.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")

	// ErrInvalidSocksAddr is returned when the daemon reports a SOCKS
	// address that is not host:port.
	ErrInvalidSocksAddr = errors.New("invalid Tor SOCKS address: expected host:port")
)
