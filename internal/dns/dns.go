package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultPort    = 53
	DefaultTimeout = 3 * time.Second

	fallbackServer = "1.1.1.1:53"
	resolvConf     = "/etc/resolv.conf"
)

// Resolver is the DNS prober: one A and one AAAA query per name.
type Resolver struct {
	server  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewResolver queries server (host or host:port). An empty server selects the
// first nameserver from /etc/resolv.conf.
func NewResolver(server string, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		server:  normalizeServer(server),
		timeout: timeout,
		logger:  log.With().Str("component", "dns").Logger(),
	}
}

func normalizeServer(server string) string {
	if server == "" {
		cfg, err := mdns.ClientConfigFromFile(resolvConf)
		if err != nil || len(cfg.Servers) == 0 {
			return fallbackServer
		}
		return net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		return net.JoinHostPort(server, "53")
	}
	return server
}

func (*Resolver) Kind() probe.Kind { return probe.KindDNS }

func (r *Resolver) Defaults() probe.Defaults {
	return probe.Defaults{Port: DefaultPort, Timeout: r.timeout}
}

// Probe resolves the target name. NXDOMAIN or an empty answer is NotFound.
func (r *Resolver) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &mdns.Client{Timeout: timeout}
	info := probe.DNSInfo{Name: t.Host, Server: r.server}

	start := time.Now()
	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		m := new(mdns.Msg)
		m.SetQuestion(mdns.Fqdn(t.Host), qtype)
		m.RecursionDesired = true

		in, _, err := client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			latency := time.Since(start)
			status := probe.StatusError
			if probe.IsTimeout(err) {
				status = probe.StatusTimeout
			}
			r.logger.Debug().Str("name", t.Host).Err(err).Msg("DNS exchange failed")
			return probe.Failure(probe.KindDNS, t, status, latency, err)
		}

		info.Rcode = mdns.RcodeToString[in.Rcode]
		if in.Rcode == mdns.RcodeNameError {
			return probe.Failure(probe.KindDNS, t, probe.StatusNotFound, time.Since(start), fmt.Errorf("NXDOMAIN %s", t.Host))
		}
		if in.Rcode != mdns.RcodeSuccess {
			return probe.Failure(probe.KindDNS, t, probe.StatusError, time.Since(start), errors.New(info.Rcode))
		}
		collect(&info, in.Answer)
	}
	latency := time.Since(start)

	if len(info.Addresses) == 0 {
		return probe.Failure(probe.KindDNS, t, probe.StatusNotFound, latency, fmt.Errorf("no address records for %s", t.Host))
	}
	return probe.Success(probe.KindDNS, t, probe.StatusActive, latency, info)
}

func collect(info *probe.DNSInfo, answers []mdns.RR) {
	for _, rr := range answers {
		switch v := rr.(type) {
		case *mdns.A:
			info.Addresses = append(info.Addresses, v.A.String())
		case *mdns.AAAA:
			info.Addresses = append(info.Addresses, v.AAAA.String())
		case *mdns.CNAME:
			if !contains(info.CNAMEs, v.Target) {
				info.CNAMEs = append(info.CNAMEs, v.Target)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
