package tor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nao1215/tornago"

	"github.com/nao1215/trafficcloak/internal/proxy"
)

// DefaultStartupTimeout is the time allowed for Tor to bootstrap.
const DefaultStartupTimeout = 3 * time.Minute

// EmbeddedTor manages a Tor daemon started by tornago.
//
// Bootstrapping takes one to three minutes: Tor downloads the consensus,
// builds its first circuits and opens the SOCKS and control listeners.
type EmbeddedTor struct {
	mu             sync.Mutex
	process        *tornago.TorProcess
	socksAddr      string
	controlAddr    string
	startupTimeout time.Duration
	logger         *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.startupTimeout = timeout
		}
	}
}

// WithLogger sets the logger for lifecycle messages.
func WithLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.logger = logger
	}
}

// NewEmbeddedTor creates a new embedded Tor manager.
// Call Start to launch the daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		startupTimeout: DefaultStartupTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and waits until it has
// bootstrapped. If ctx is cancelled meanwhile, the daemon is stopped and
// ctx.Err() is returned.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	e.logger.Info("starting embedded Tor", "timeout", e.startupTimeout)
	began := time.Now()

	type started struct {
		process *tornago.TorProcess
		err     error
	}
	done := make(chan started, 1)
	go func() {
		process, err := tornago.StartTorDaemon(launchCfg)
		done <- started{process: process, err: err}
	}()

	var result started
	select {
	case <-ctx.Done():
		// The daemon may still come up; stop it once it does.
		go func() {
			if r := <-done; r.err == nil {
				_ = r.process.Stop() //nolint:errcheck // best effort cleanup
			}
		}()
		return ctx.Err()
	case result = <-done:
	}
	if result.err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", result.err)
	}

	e.mu.Lock()
	e.process = result.process
	e.socksAddr = result.process.SocksAddr()
	e.controlAddr = result.process.ControlAddr()
	e.mu.Unlock()

	e.logger.Info("embedded Tor ready",
		"socks", e.socksAddr, "elapsed", time.Since(began).Round(time.Second))
	return nil
}

// Stop shuts the daemon down. It is safe to call more than once and on
// an instance that was never started.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the SOCKS5 listener address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.socksAddr
}

// ControlAddr returns the control port address, or "" when not running.
func (e *EmbeddedTor) ControlAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controlAddr
}

// IsRunning reports whether the daemon is running.
func (e *EmbeddedTor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process != nil
}

// Descriptor returns the daemon's SOCKS listener as a socks5 proxy
// descriptor that can join the rotation pool.
func (e *EmbeddedTor) Descriptor() (proxy.Descriptor, error) {
	addr := e.SocksAddr()
	if addr == "" {
		return proxy.Descriptor{}, ErrNotRunning
	}
	return SocksDescriptor(addr)
}

// SocksDescriptor converts a host:port SOCKS address into a descriptor.
// An empty host (":9050") means the loopback interface.
func SocksDescriptor(addr string) (proxy.Descriptor, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return proxy.Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidSocksAddr, addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return proxy.Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidSocksAddr, addr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return proxy.Descriptor{Scheme: proxy.SchemeSOCKS5, Host: host, Port: port}, nil
}
