package driver

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out requests to the same host. It combines a fixed
// minimum delay with an optional token bucket.
type HostLimiter struct {
	delay    time.Duration
	requests int
	window   time.Duration

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter. A zero delay disables the delay and
// requests or window of zero disable the token bucket.
func NewHostLimiter(delay time.Duration, requests int, window time.Duration) *HostLimiter {
	return &HostLimiter{
		delay:    delay,
		requests: requests,
		window:   window,
		last:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *HostLimiter) rateEnabled() bool {
	return l.requests > 0 && l.window > 0
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" || (l.delay <= 0 && !l.rateEnabled()) {
		return nil
	}
	host = strings.ToLower(host)

	var (
		sleep   time.Duration
		limiter *rate.Limiter
	)
	l.mu.Lock()
	if l.delay > 0 {
		now := time.Now()
		send := now
		if last, ok := l.last[host]; ok && last.Add(l.delay).After(now) {
			send = last.Add(l.delay)
		}
		// The slot is taken before sleeping so concurrent callers queue
		// behind it.
		l.last[host] = send
		sleep = send.Sub(now)
	}
	if l.rateEnabled() {
		limiter = l.limiterLocked(host)
	}
	l.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (l *HostLimiter) limiterLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval := l.window / time.Duration(l.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), l.requests)
	l.limiters[host] = limiter
	return limiter
}
