package scheduler

import (
	"context"
	"net"
	"time"
)

// NetworkProbe reports whether the network needed by a job is reachable.
type NetworkProbe interface {
	Available(ctx context.Context) bool
}

// ProbeFunc adapts a function to NetworkProbe.
type ProbeFunc func(ctx context.Context) bool

// Available calls f.
func (f ProbeFunc) Available(ctx context.Context) bool {
	return f(ctx)
}

// AlwaysOnline is a probe that never defers a job.
var AlwaysOnline = ProbeFunc(func(context.Context) bool { return true })

// DialProbe checks connectivity by opening a TCP connection to Addr.
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

// Available reports whether a TCP connection to Addr succeeds within Timeout.
func (p DialProbe) Available(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
