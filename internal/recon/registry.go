package recon

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/config"
	"github.com/shii9/reconkit/internal/dns"
	"github.com/shii9/reconkit/internal/geolocation"
	"github.com/shii9/reconkit/internal/http"
	"github.com/shii9/reconkit/internal/ports"
	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/proxy"
	"github.com/shii9/reconkit/internal/social"
	"github.com/shii9/reconkit/internal/tlscert"
	"github.com/shii9/reconkit/internal/whois"
)

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewRegistry registers every probe kind configured by cfg. The returned
// closer releases resources such as the geo database.
func NewRegistry(cfg config.Config, log zerolog.Logger) (*probe.Registry, io.Closer, error) {
	p := cfg.Probes
	var res closers

	proxyOpts := []proxy.Option{proxy.WithEchoURL(p.Proxy.EchoURL)}
	if p.Proxy.GeoDB != "" {
		geo, err := geolocation.OpenMaxMind(p.Proxy.GeoDB)
		if err != nil {
			return nil, nil, err
		}
		res = append(res, geo)
		proxyOpts = append(proxyOpts, proxy.WithGeo(geo))
	}

	servers := make(map[string]string, len(whois.DefaultServers)+len(p.Whois.Servers))
	for k, v := range whois.DefaultServers {
		servers[k] = v
	}
	for k, v := range p.Whois.Servers {
		servers[k] = v
	}

	reg := probe.NewRegistry(log)
	reg.Register(ports.NewScanner(p.TCP.Timeout, log))
	reg.Register(tlscert.NewInspector(p.TLS.Timeout, log))
	reg.Register(whois.NewClient(p.Whois.Timeout, log,
		whois.WithServers(servers),
		whois.WithDefaultServer(p.Whois.DefaultServer),
	))
	reg.Register(proxy.NewValidator(p.Proxy.Timeout, log, proxyOpts...))
	reg.Register(http.NewAnalyzer(p.Headers.Timeout, log,
		http.WithScoring(p.Headers.Penalty, p.Headers.Ceiling),
		http.WithInsecureTLS(p.Headers.InsecureTLS),
	))
	reg.Register(dns.NewResolver(p.DNS.Server, p.DNS.Timeout, log))
	reg.Register(social.NewFetcher(p.Profile.Timeout, p.Profile.Retries, log))
	return reg, res, nil
}
