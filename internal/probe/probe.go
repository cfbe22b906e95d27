// Package probe performs single TCP reachability checks.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/plexmon/plexmon/internal/metrics"
)

// DefaultTimeout bounds a single connect attempt.
const DefaultTimeout = 5 * time.Second

// Reason classifies a failed probe.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonTimeout Reason = "timeout"
	ReasonRefused Reason = "refused"
	ReasonOther   Reason = "other"
)

// Result is the outcome of one probe.
type Result struct {
	Reachable bool
	Reason    Reason
	// Detail is the underlying error text for ReasonOther.
	Detail  string
	Latency time.Duration
}

// Description renders the failure for alert text.
func (r Result) Description() string {
	switch r.Reason {
	case ReasonNone:
		return "reachable"
	case ReasonTimeout:
		return "Timeout (No response)"
	case ReasonRefused:
		return "Connection refused"
	default:
		if r.Detail != "" {
			return fmt.Sprintf("Error (%s)", r.Detail)
		}
		return "Error"
	}
}

// Checker is anything able to run a probe. The monitor depends on this
// rather than on Prober so tests can script results.
type Checker interface {
	Check(ctx context.Context) Result
}

// Prober checks a fixed host:port by opening a bare TCP connection.
type Prober struct {
	addr    string
	timeout time.Duration
	dialer  *net.Dialer
}

// New creates a Prober for addr. A zero timeout selects DefaultTimeout.
func New(addr string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		addr:    addr,
		timeout: timeout,
		dialer:  &net.Dialer{},
	}
}

// Addr returns the probed endpoint.
func (p *Prober) Addr() string {
	return p.addr
}

// Check connects, closes immediately and classifies the outcome. It never
// retries.
func (p *Prober) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	latency := time.Since(start)

	if err == nil {
		conn.Close()
		metrics.RecordProbe("reachable", latency)
		return Result{Reachable: true, Latency: latency}
	}

	res := Result{Reason: classify(err), Latency: latency}
	if res.Reason == ReasonOther {
		res.Detail = errorCode(err)
	}
	metrics.RecordProbe(string(res.Reason), latency)
	return res
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonOther
}

// errorCode extracts the most specific description of a dial failure.
func errorCode(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns: " + dnsErr.Err
	}
	return err.Error()
}
