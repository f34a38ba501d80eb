package ports

import (
	"context"
	"errors"
	"net"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

// DefaultTimeout bounds a single connect attempt.
const DefaultTimeout = 2 * time.Second

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

// commonPorts is the list used when a port scan asks for "common".
var commonPorts = []int{
	21, 22, 23, 25, 53, 67, 68, 69,
	80, 88, 110, 111, 119, 123, 135, 139,
	143, 161, 179, 194, 389, 443, 445, 465,
	514, 587, 631, 636, 873, 993, 995, 1080,
	1433, 1521, 1723, 1883, 2049, 3306, 3389,
	4443, 5060, 5432, 5900, 6379, 8000, 8080,
	8443, 9000, 9200, 11211, 27017, 5000, 5985,
	3000, 8888, 9090, 9443, 10000,
}

// CommonPorts returns a sorted copy of the common port list.
func CommonPorts() []int {
	out := append([]int(nil), commonPorts...)
	sort.Ints(out)
	return out
}

// -----------------------------------------------------------------------------
// Prober
// -----------------------------------------------------------------------------

// Scanner is the TCP connect prober.
type Scanner struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func NewScanner(timeout time.Duration, log zerolog.Logger) *Scanner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scanner{
		timeout: timeout,
		logger:  log.With().Str("component", "tcp").Logger(),
	}
}

func (*Scanner) Kind() probe.Kind { return probe.KindTCP }

func (s *Scanner) Defaults() probe.Defaults {
	return probe.Defaults{Timeout: s.timeout}
}

// Probe attempts a TCP connect. A completed handshake is Open, a refusal is
// Closed and an expired deadline is Timeout.
func (s *Scanner) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", t.Address())
	latency := time.Since(start)
	if err != nil {
		status := classify(err)
		s.logger.Debug().Str("addr", t.Address()).Str("status", string(status)).Err(err).Msg("Port not open")
		return probe.Failure(probe.KindTCP, t, status, latency, err)
	}
	_ = conn.Close()

	s.logger.Debug().Str("addr", t.Address()).Dur("latency", latency).Msg("Port open")
	return probe.Success(probe.KindTCP, t, probe.StatusOpen, latency, probe.PortInfo{
		Port:    t.Port,
		State:   "open",
		Service: WellKnownService(t.Port),
	})
}

func classify(err error) probe.Status {
	var dnsErr *net.DNSError
	switch {
	case probe.IsTimeout(err):
		return probe.StatusTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return probe.StatusClosed
	case errors.As(err, &dnsErr), errors.Is(err, context.Canceled):
		return probe.StatusError
	default:
		return probe.StatusClosed
	}
}

// PortState is the open/closed view of a TCP status used by port listings.
func PortState(s probe.Status) string {
	if s == probe.StatusOpen {
		return "open"
	}
	return "closed"
}
