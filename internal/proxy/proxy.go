package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	xproxy "golang.org/x/net/proxy"

	"github.com/shii9/reconkit/internal/geolocation"
	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultTimeout = 5 * time.Second
	MinTimeout     = 3 * time.Second
	MaxTimeout     = 10 * time.Second

	// DefaultEchoURL returns the caller's IP with country and city.
	DefaultEchoURL = "http://ip-api.com/json/?fields=status,message,country,countryCode,city,query"

	maxEchoBody = 64 << 10
)

// Anonymity levels, bucketed by round-trip latency.
const (
	Elite       = "Elite"
	Anonymous   = "Anonymous"
	Transparent = "Transparent"
)

// Anonymity buckets a proxy by latency: under 300ms Elite, under 1s Anonymous.
func Anonymity(latency time.Duration) string {
	switch {
	case latency < 300*time.Millisecond:
		return Elite
	case latency < time.Second:
		return Anonymous
	default:
		return Transparent
	}
}

// Validator is the proxy prober. It fetches an IP echo endpoint through the
// proxy and reports the exit address.
type Validator struct {
	echoURL string
	timeout time.Duration
	geo     geolocation.Resolver
	logger  zerolog.Logger
}

type Option func(*Validator)

func WithEchoURL(u string) Option {
	return func(v *Validator) {
		if u != "" {
			v.echoURL = u
		}
	}
}

// WithGeo sets the resolver used when the echo response carries no location.
func WithGeo(r geolocation.Resolver) Option {
	return func(v *Validator) { v.geo = r }
}

func NewValidator(timeout time.Duration, log zerolog.Logger, opts ...Option) *Validator {
	v := &Validator{
		echoURL: DefaultEchoURL,
		timeout: ClampTimeout(timeout),
		logger:  log.With().Str("component", "proxy").Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ClampTimeout keeps proxy timeouts within 3-10s; zero selects the default.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

func (*Validator) Kind() probe.Kind { return probe.KindProxy }

func (v *Validator) Defaults() probe.Defaults {
	return probe.Defaults{Timeout: v.timeout}
}

// Probe sends one GET to the echo endpoint through the proxy. Any transport
// failure or non-2xx answer is Dead.
func (v *Validator) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := v.clientFor(t, timeout)
	if err != nil {
		return probe.Failure(probe.KindProxy, t, probe.StatusError, 0, err)
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.echoURL, nil)
	if err != nil {
		return probe.Failure(probe.KindProxy, t, probe.StatusError, 0, err)
	}
	req.Header.Set("User-Agent", "reconkit-proxycheck/1.0")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		latency := time.Since(start)
		status := probe.StatusDead
		if probe.IsTimeout(err) {
			status = probe.StatusTimeout
		}
		v.logger.Debug().Str("proxy", t.Address()).Err(err).Msg("Proxy request failed")
		return probe.Failure(probe.KindProxy, t, status, latency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	latency := time.Since(start)
	if err != nil {
		status := probe.StatusDead
		if probe.IsTimeout(err) {
			status = probe.StatusTimeout
		}
		return probe.Failure(probe.KindProxy, t, status, latency, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return probe.Failure(probe.KindProxy, t, probe.StatusDead, latency, fmt.Errorf("echo returned HTTP %d", resp.StatusCode))
	}

	info := probe.ProxyInfo{
		Proxy:     t.Address(),
		Scheme:    t.Scheme,
		Anonymity: Anonymity(latency),
	}
	loc, err := geolocation.ParseEcho(body)
	if err != nil {
		v.logger.Debug().Str("proxy", t.Address()).Err(err).Msg("Echo body not understood")
	}
	info.IP = loc.IP
	info.Country = loc.Country
	info.City = loc.City
	if info.Country == "" && info.IP != "" && v.geo != nil {
		if g, err := v.geo.Lookup(info.IP); err == nil {
			info.Country = g.Country
			info.City = g.City
		}
	}

	v.logger.Debug().Str("proxy", t.Address()).Dur("latency", latency).Str("anonymity", info.Anonymity).Msg("Proxy alive")
	return probe.Success(probe.KindProxy, t, probe.StatusActive, latency, info)
}

// clientFor builds a one-shot client routed through the target proxy.
func (v *Validator) clientFor(t target.Target, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: timeout,
	}

	switch t.Scheme {
	case "socks5":
		var auth *xproxy.Auth
		if t.Credentials != nil {
			auth = &xproxy.Auth{User: t.Credentials.User, Password: t.Credentials.Pass}
		}
		dialer, err := xproxy.SOCKS5("tcp", t.Address(), auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		cd, ok := dialer.(xproxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	default:
		scheme := t.Scheme
		if scheme == "" {
			scheme = "http"
		}
		u := &url.URL{Scheme: scheme, Host: t.Address()}
		if t.Credentials != nil {
			u.User = url.UserPassword(t.Credentials.User, t.Credentials.Pass)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
