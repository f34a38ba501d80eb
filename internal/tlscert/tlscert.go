// Package tlscert retrieves and grades the leaf certificate of a TLS endpoint.
package tlscert

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultPort    = 443
	DefaultTimeout = 5 * time.Second
)

var errNoCertificate = errors.New("no peer certificate")

type Inspector struct {
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewInspector(timeout time.Duration, log zerolog.Logger) *Inspector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Inspector{
		timeout: timeout,
		now:     time.Now,
		logger:  log.With().Str("component", "tls").Logger(),
	}
}

func (*Inspector) Kind() probe.Kind { return probe.KindTLS }

func (i *Inspector) Defaults() probe.Defaults {
	return probe.Defaults{Port: DefaultPort, Timeout: i.timeout}
}

// Probe completes a TLS handshake without chain verification and reports the
// leaf certificate. SNI is sent when the target is a name.
func (i *Inspector) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := &tls.Config{InsecureSkipVerify: true} //nolint:gosec // inspection only
	if net.ParseIP(t.Host) == nil {
		cfg.ServerName = t.Host
	}
	d := tls.Dialer{Config: cfg}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", t.Address())
	latency := time.Since(start)
	if err != nil {
		status := probe.StatusError
		switch {
		case probe.IsTimeout(err):
			status = probe.StatusTimeout
		case errors.Is(err, syscall.ECONNREFUSED):
			status = probe.StatusClosed
		}
		i.logger.Debug().Str("addr", t.Address()).Err(err).Msg("TLS handshake failed")
		return probe.Failure(probe.KindTLS, t, status, latency, err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return probe.Failure(probe.KindTLS, t, probe.StatusError, latency, fmt.Errorf("unexpected conn type %T", conn))
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return probe.Failure(probe.KindTLS, t, probe.StatusError, latency, errNoCertificate)
	}

	leaf := state.PeerCertificates[0]
	days := DaysRemaining(leaf.NotAfter, i.now())
	info := probe.CertInfo{
		DaysRemaining: days,
		ValidFrom:     leaf.NotBefore,
		ValidTo:       leaf.NotAfter,
		Issuer:        leaf.Issuer.String(),
		Subject:       leaf.Subject.String(),
		Protocol:      VersionName(state.Version),
		Cipher:        tls.CipherSuiteName(state.CipherSuite),
		SANs:          leaf.DNSNames,
		Grade:         Grade(days),
	}
	for _, ip := range leaf.IPAddresses {
		info.SANs = append(info.SANs, ip.String())
	}

	i.logger.Debug().Str("addr", t.Address()).Int("days", days).Str("grade", info.Grade).Msg("Certificate retrieved")
	return probe.Success(probe.KindTLS, t, probe.StatusActive, latency, info)
}

// DaysRemaining is floor((notAfter-now)/24h); expired certificates go negative.
func DaysRemaining(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}

// Grade buckets days remaining: A+ above 60, B above 30, otherwise F.
func Grade(days int) string {
	switch {
	case days > 60:
		return "A+"
	case days > 30:
		return "B"
	default:
		return "F"
	}
}

// VersionName returns a human-readable TLS version.
func VersionName(v uint16) string {
	switch v {
	case tls.VersionSSL30: //nolint:staticcheck
		return "SSLv3"
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("unknown(0x%x)", v)
	}
}
