package egress

import "errors"

var (
	// ErrProxyWrongType is returned when the proxy answers but does not
	// speak the expected protocol.
	ErrProxyWrongType = errors.New("proxy does not speak the expected protocol")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrProxyAuthRejected is returned when the proxy refuses the
	// configured credentials.
	ErrProxyAuthRejected = errors.New("proxy rejected credentials")

	// ErrUnsupportedScheme is returned for descriptors this package cannot
	// build a client for.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
)

// ProxyStatus is the result of probing a proxy.
type ProxyStatus int

const (
	// ProxyStatusOK means the proxy accepted a connection request.
	ProxyStatusOK ProxyStatus = iota
	// ProxyStatusWrongType means something answered that is not the
	// expected kind of proxy.
	ProxyStatusWrongType
	// ProxyStatusCannotConnect means the proxy address is unreachable.
	ProxyStatusCannotConnect
	// ProxyStatusTimeout means the probe timed out.
	ProxyStatusTimeout
	// ProxyStatusAuthRejected means the credentials were refused.
	ProxyStatusAuthRejected
)

// String returns a human-readable description of the status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	case ProxyStatusAuthRejected:
		return "auth rejected"
	default:
		return "unknown"
	}
}

// Error returns the matching sentinel error, or nil for ProxyStatusOK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyWrongType
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	case ProxyStatusAuthRejected:
		return ErrProxyAuthRejected
	default:
		return errors.New("unknown proxy status")
	}
}
