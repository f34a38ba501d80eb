// Package probe defines the single-target network probe contract shared by
// every probe kind, the result model and the kind registry.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/shii9/reconkit/internal/target"
)

// Kind names a probe implementation.
type Kind string

const (
	KindTCP     Kind = "tcp"
	KindTLS     Kind = "tls"
	KindWhois   Kind = "whois"
	KindProxy   Kind = "proxy"
	KindHeaders Kind = "headers"
	KindDNS     Kind = "dns"
	KindProfile Kind = "profile"
)

// Shape is the input line shape a kind expects.
func (k Kind) Shape() target.Shape {
	switch k {
	case KindTCP:
		return target.ShapeHostPort
	case KindTLS:
		return target.ShapeHost
	case KindWhois, KindDNS:
		return target.ShapeDomain
	case KindProxy:
		return target.ShapeProxy
	default:
		return target.ShapeURL
	}
}

// Status is the lifecycle state of one batch slot.
type Status string

const (
	StatusQueued   Status = "Queued"
	StatusScanning Status = "Scanning"
	StatusOpen     Status = "Open"
	StatusClosed   Status = "Closed"
	StatusActive   Status = "Active"
	StatusDead     Status = "Dead"
	StatusTimeout  Status = "Timeout"
	StatusError    Status = "Error"
	StatusNotFound Status = "NotFound"
	StatusInvalid  Status = "Invalid"
)

func (s Status) Terminal() bool {
	return s != StatusQueued && s != StatusScanning && s != ""
}

func (s Status) Succeeded() bool {
	return s == StatusOpen || s == StatusActive
}

// Defaults carries the per-kind fallbacks used when a batch does not set them.
type Defaults struct {
	Port    int           `json:"port,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

// Result is the outcome of one probe invocation. Metadata is set only on success.
type Result struct {
	Kind        Kind          `json:"kind" yaml:"kind"`
	Target      target.Target `json:"target" yaml:"target"`
	Status      Status        `json:"status" yaml:"status"`
	LatencyMs   *int64        `json:"latency_ms" yaml:"latency_ms"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata    Metadata      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Attempts    int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Generation  uint64        `json:"generation" yaml:"generation"`
	CompletedAt time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Latency returns the measured latency, zero when none was recorded.
func (r Result) Latency() time.Duration {
	if r.LatencyMs == nil {
		return 0
	}
	return time.Duration(*r.LatencyMs) * time.Millisecond
}

// Prober is implemented by each probe kind. Probe must always return a
// result with a terminal status and must not block past timeout.
type Prober interface {
	Kind() Kind
	Defaults() Defaults
	Probe(ctx context.Context, t target.Target, timeout time.Duration) Result
}

func latencyMs(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

// Success builds a successful result.
func Success(kind Kind, t target.Target, status Status, latency time.Duration, md Metadata) Result {
	return Result{
		Kind:        kind,
		Target:      t,
		Status:      status,
		LatencyMs:   latencyMs(latency),
		Metadata:    md,
		Attempts:    1,
		CompletedAt: time.Now(),
	}
}

// Failure builds a negative terminal result. A zero latency means none was measured.
func Failure(kind Kind, t target.Target, status Status, latency time.Duration, err error) Result {
	r := Result{
		Kind:        kind,
		Target:      t,
		Status:      status,
		Attempts:    1,
		CompletedAt: time.Now(),
	}
	if latency > 0 {
		r.LatencyMs = latencyMs(latency)
	}
	if err != nil {
		r.Error = ErrorText(err)
	}
	return r
}

// Invalid resolves a target that failed parsing, without any network I/O.
func Invalid(kind Kind, t target.Target) Result {
	r := Result{Kind: kind, Target: t, Status: StatusInvalid, CompletedAt: time.Now()}
	if t.Err != nil {
		r.Error = "Invalid Format: " + strings.TrimPrefix(t.Err.Error(), target.ErrInvalidFormat.Error()+": ")
	} else {
		r.Error = "Invalid Format"
	}
	return r
}

// Canceled resolves a slot that was never probed because the batch was canceled.
func Canceled(kind Kind, t target.Target) Result {
	return Result{Kind: kind, Target: t, Status: StatusError, Error: "canceled", CompletedAt: time.Now()}
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ErrorText shortens common network errors for display.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return fmt.Sprintf("%s: %v", opErr.Op, opErr.Err)
	}
	return err.Error()
}
