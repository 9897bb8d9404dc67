package egress

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/nao1215/trafficcloak/internal/proxy"
)

// startFakeProxy serves one connection with handle and returns a
// descriptor pointing at it.
func startFakeProxy(t *testing.T, scheme proxy.Scheme, handle func(conn net.Conn)) proxy.Descriptor {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() }) //nolint:errcheck

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to split address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse port: %v", err)
	}
	return proxy.Descriptor{Scheme: scheme, Host: host, Port: port}
}

// acceptConnect reads a CONNECT request and answers with a failure reply.
func acceptConnect(conn net.Conn) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	rest := make([]byte, int(header[4])+2)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return
	}
	// host unreachable still proves the proxy handled the request
	_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0}) //nolint:errcheck
}

// TestCheckSOCKS5 tests the SOCKS5 handshake check.
func TestCheckSOCKS5(t *testing.T) {
	t.Parallel()

	t.Run("returns CannotConnect for closed port", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := listener.Addr().(*net.TCPAddr) //nolint:errcheck,forcetypeassert // always TCP
		_ = listener.Close()                   //nolint:errcheck

		d := proxy.Descriptor{Scheme: proxy.SchemeSOCKS5, Host: "127.0.0.1", Port: addr.Port}
		if status := CheckSOCKS5(context.Background(), d); status != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", status)
		}
	})

	t.Run("returns WrongType for HTTP server", func(t *testing.T) {
		t.Parallel()

		d := startFakeProxy(t, proxy.SchemeSOCKS5, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)                                         //nolint:errcheck
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n")) //nolint:errcheck
		})
		if status := CheckSOCKS5(context.Background(), d); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})

	t.Run("returns OK for proxy without auth", func(t *testing.T) {
		t.Parallel()

		d := startFakeProxy(t, proxy.SchemeSOCKS5, func(conn net.Conn) {
			buf := make([]byte, 3)
			if _, err := io.ReadFull(conn, buf); err != nil {
				return
			}
			_, _ = conn.Write([]byte{0x05, 0x00}) //nolint:errcheck
			acceptConnect(conn)
		})
		if status := CheckSOCKS5(context.Background(), d); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", status)
		}
	})

	t.Run("returns OK after username/password negotiation", func(t *testing.T) {
		t.Parallel()

		d := startFakeProxy(t, proxy.SchemeSOCKS5, func(conn net.Conn) {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(conn, greeting); err != nil || greeting[2] != 0x02 {
				return
			}
			_, _ = conn.Write([]byte{0x05, 0x02}) //nolint:errcheck

			head := make([]byte, 2)
			if _, err := io.ReadFull(conn, head); err != nil {
				return
			}
			user := make([]byte, head[1]+1)
			if _, err := io.ReadFull(conn, user); err != nil {
				return
			}
			pass := make([]byte, user[len(user)-1])
			if _, err := io.ReadFull(conn, pass); err != nil {
				return
			}
			if string(user[:len(user)-1]) != "alice" || string(pass) != "s3cret" {
				_, _ = conn.Write([]byte{0x01, 0x01}) //nolint:errcheck
				return
			}
			_, _ = conn.Write([]byte{0x01, 0x00}) //nolint:errcheck
			acceptConnect(conn)
		})
		d.Username, d.Password = "alice", "s3cret"

		if status := CheckSOCKS5(context.Background(), d); status != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", status)
		}
	})

	t.Run("returns AuthRejected for bad credentials", func(t *testing.T) {
		t.Parallel()

		d := startFakeProxy(t, proxy.SchemeSOCKS5, func(conn net.Conn) {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(conn, greeting); err != nil {
				return
			}
			_, _ = conn.Write([]byte{0x05, 0x02}) //nolint:errcheck
			buf := make([]byte, 64)
			_, _ = conn.Read(buf)                 //nolint:errcheck
			_, _ = conn.Write([]byte{0x01, 0x01}) //nolint:errcheck
		})
		d.Username, d.Password = "mallory", "wrong"

		status := CheckSOCKS5(context.Background(), d)
		if status != ProxyStatusAuthRejected {
			t.Errorf("expected ProxyStatusAuthRejected, got %v", status)
		}
		if !errors.Is(status.Error(), ErrProxyAuthRejected) {
			t.Errorf("expected ErrProxyAuthRejected, got %v", status.Error())
		}
	})

	t.Run("returns WrongType when no method is acceptable", func(t *testing.T) {
		t.Parallel()

		d := startFakeProxy(t, proxy.SchemeSOCKS5, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)                 //nolint:errcheck
			_, _ = conn.Write([]byte{0x05, 0xFF}) //nolint:errcheck
		})
		if status := CheckSOCKS5(context.Background(), d); status != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", status)
		}
	})
}

// TestCheck tests the generic check for HTTP proxies.
func TestCheck(t *testing.T) {
	t.Parallel()

	d := startFakeProxy(t, proxy.SchemeHTTP, func(net.Conn) {})
	if status := Check(context.Background(), d); status != ProxyStatusOK {
		t.Errorf("expected ProxyStatusOK, got %v", status)
	}
}

// TestProxyStatus tests status descriptions and errors.
func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status ProxyStatus
		text   string
		err    error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type", ErrProxyWrongType},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
		{ProxyStatusAuthRejected, "auth rejected", ErrProxyAuthRejected},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()

			if tc.status.String() != tc.text {
				t.Errorf("expected %q, got %q", tc.text, tc.status.String())
			}
			if !errors.Is(tc.status.Error(), tc.err) {
				t.Errorf("expected %v, got %v", tc.err, tc.status.Error())
			}
		})
	}

	if ProxyStatus(99).String() != "unknown" {
		t.Error("expected unknown for invalid status")
	}
}
