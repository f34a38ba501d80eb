package whois

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	whoisclient "github.com/likexian/whois"
	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultPort    = 43
	DefaultTimeout = 5 * time.Second
)

var errEmptyResponse = errors.New("empty whois response")

// DialFunc opens the TCP connection to a WHOIS server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ctxDialer adapts a DialFunc to the dialer interface the whois client takes,
// binding every dial to the probe context.
type ctxDialer struct {
	ctx  context.Context
	dial DialFunc
}

func (d ctxDialer) Dial(network, addr string) (net.Conn, error) {
	conn, err := d.dial(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := d.ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// Client is the WHOIS prober.
type Client struct {
	servers       map[string]string
	defaultServer string
	timeout       time.Duration
	dial          DialFunc
	logger        zerolog.Logger
}

type Option func(*Client)

// WithServers replaces the TLD to server table.
func WithServers(table map[string]string) Option {
	return func(c *Client) {
		if len(table) > 0 {
			c.servers = table
		}
	}
}

func WithDefaultServer(server string) Option {
	return func(c *Client) {
		if server != "" {
			c.defaultServer = server
		}
	}
}

func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

func NewClient(timeout time.Duration, log zerolog.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var d net.Dialer
	c := &Client{
		servers:       DefaultServers,
		defaultServer: DefaultServer,
		timeout:       timeout,
		dial:          d.DialContext,
		logger:        log.With().Str("component", "whois").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (*Client) Kind() probe.Kind { return probe.KindWhois }

func (c *Client) Defaults() probe.Defaults {
	return probe.Defaults{Port: DefaultPort, Timeout: c.timeout}
}

type reply struct {
	raw string
	err error
}

// Probe queries the registry server for the target domain. The raw response
// is kept whenever one was read, including NotFound answers.
func (c *Client) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	domain := t.Host
	server := ServerFor(domain, c.servers, c.defaultServer)
	wc := whoisclient.NewClient().
		SetDialer(ctxDialer{ctx: ctx, dial: c.dial}).
		SetTimeout(timeout).
		SetDisableReferral(true).
		SetDisableStats(true)

	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		raw, err := wc.Whois(domain, server)
		done <- reply{raw: raw, err: err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		r.err = ctx.Err()
	case r = <-done:
	}
	latency := time.Since(start)

	if r.err != nil {
		status := probe.StatusError
		if probe.IsTimeout(r.err) {
			status = probe.StatusTimeout
		}
		c.logger.Debug().Str("domain", domain).Str("server", server).Err(r.err).Msg("WHOIS query failed")
		res := probe.Failure(probe.KindWhois, t, status, latency, r.err)
		if r.raw != "" {
			res.Metadata = probe.WhoisInfo{Domain: domain, Server: server, Raw: r.raw}
		}
		return res
	}
	if strings.TrimSpace(r.raw) == "" {
		return probe.Failure(probe.KindWhois, t, probe.StatusError, latency, errEmptyResponse)
	}

	f, notFound := extract(r.raw)
	info := probe.WhoisInfo{
		Domain:      domain,
		Server:      server,
		Registrar:   f.Registrar,
		Expiry:      f.Expiry,
		Created:     f.Created,
		NameServers: f.NameServers,
		Statuses:    f.Statuses,
		Raw:         r.raw,
	}
	if notFound {
		res := probe.Failure(probe.KindWhois, t, probe.StatusNotFound, latency, nil)
		res.Error = "no match for " + domain
		res.Metadata = probe.WhoisInfo{Domain: domain, Server: server, Raw: r.raw}
		return res
	}

	c.logger.Debug().Str("domain", domain).Str("server", server).Str("registrar", f.Registrar).Msg("WHOIS resolved")
	return probe.Success(probe.KindWhois, t, probe.StatusActive, latency, info)
}
