package egress

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/nao1215/trafficcloak/internal/proxy"
)

// checkTimeout bounds a whole probe.
const checkTimeout = 5 * time.Second

// SOCKS5 protocol constants (RFC 1928, RFC 1929).
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthUserPass  = 0x02
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03
	socks5UserPassVer   = 0x01

	// socks5ProbeHost is the CONNECT target of the probe. Any reply,
	// success or failure, proves the proxy processed the request.
	socks5ProbeHost = "example.com"
	socks5ProbePort = 80
)

// Check probes d. SOCKS5 proxies get a full handshake including
// username/password negotiation when credentials are set; HTTP proxies
// only need to accept a TCP connection.
func Check(ctx context.Context, d proxy.Descriptor) ProxyStatus {
	if d.Scheme == proxy.SchemeSOCKS5 {
		return CheckSOCKS5(ctx, d)
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return dialStatus(ctx)
	}
	_ = conn.Close() //nolint:errcheck // probe connection
	return ProxyStatusOK
}

// CheckSOCKS5 performs a SOCKS5 greeting, optional authentication and a
// CONNECT request against d.
func CheckSOCKS5(ctx context.Context, d proxy.Descriptor) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return dialStatus(ctx)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ProxyStatusCannotConnect
		}
	}

	method := byte(socks5AuthNone)
	if d.HasAuth() {
		method = socks5AuthUserPass
	}
	if _, err := conn.Write([]byte{socks5Version, 0x01, method}); err != nil {
		return ProxyStatusCannotConnect
	}

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return readStatus(err)
	}
	if greeting[0] != socks5Version {
		return ProxyStatusWrongType
	}
	switch greeting[1] {
	case socks5AuthNone:
	case socks5AuthUserPass:
		if status := authenticate(conn, d); status != ProxyStatusOK {
			return status
		}
	case socks5AuthNoAccept:
		if d.HasAuth() {
			return ProxyStatusAuthRejected
		}
		return ProxyStatusWrongType
	default:
		return ProxyStatusWrongType
	}

	req := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	req = append(req, socks5ProbeHost...)
	req = append(req, byte(socks5ProbePort>>8), byte(socks5ProbePort&0xFF))
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	reply := make([]byte, 4)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return readStatus(err)
	}
	if reply[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// authenticate runs RFC 1929 username/password subnegotiation.
func authenticate(conn net.Conn, d proxy.Descriptor) ProxyStatus {
	if len(d.Username) > 255 || len(d.Password) > 255 {
		return ProxyStatusAuthRejected
	}
	msg := []byte{socks5UserPassVer, byte(len(d.Username))}
	msg = append(msg, d.Username...)
	msg = append(msg, byte(len(d.Password)))
	msg = append(msg, d.Password...)
	if _, err := conn.Write(msg); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readStatus(err)
	}
	if resp[0] != socks5UserPassVer {
		return ProxyStatusWrongType
	}
	if resp[1] != 0x00 {
		return ProxyStatusAuthRejected
	}
	return ProxyStatusOK
}

func dialStatus(ctx context.Context) ProxyStatus {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusCannotConnect
}

func readStatus(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
