package http

import (
	"context"
	"crypto/tls"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultPort    = 443
	DefaultTimeout = 10 * time.Second

	// DefaultPenalty is deducted from DefaultCeiling per missing header.
	DefaultPenalty = 15
	DefaultCeiling = 100

	maxRedirects = 10
)

// SecurityHeaders is the checklist each response is scored against.
var SecurityHeaders = []string{
	"Content-Security-Policy",
	"Strict-Transport-Security",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"Permissions-Policy",
}

// Score checks h against the checklist. present holds the values found,
// issues names every missing header, and score is ceiling minus penalty per
// missing header, never below zero.
func Score(h stdhttp.Header, checklist []string, penalty, ceiling int) (present map[string]string, issues []string, score int) {
	present = make(map[string]string)
	issues = []string{}
	for _, k := range checklist {
		if v := h.Get(k); v != "" {
			present[k] = v
			continue
		}
		issues = append(issues, "Missing "+k)
	}
	score = ceiling - penalty*len(issues)
	if score < 0 {
		score = 0
	}
	return present, issues, score
}

// Analyzer is the header analysis prober.
type Analyzer struct {
	timeout   time.Duration
	penalty   int
	ceiling   int
	checklist []string
	insecure  bool
	logger    zerolog.Logger
}

type Option func(*Analyzer)

// WithScoring overrides the per-header penalty and the starting score.
func WithScoring(penalty, ceiling int) Option {
	return func(a *Analyzer) {
		if penalty > 0 {
			a.penalty = penalty
		}
		if ceiling > 0 {
			a.ceiling = ceiling
		}
	}
}

// WithInsecureTLS skips certificate verification.
func WithInsecureTLS(skip bool) Option {
	return func(a *Analyzer) { a.insecure = skip }
}

func NewAnalyzer(timeout time.Duration, log zerolog.Logger, opts ...Option) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a := &Analyzer{
		timeout:   timeout,
		penalty:   DefaultPenalty,
		ceiling:   DefaultCeiling,
		checklist: SecurityHeaders,
		logger:    log.With().Str("component", "headers").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (*Analyzer) Kind() probe.Kind { return probe.KindHeaders }

func (a *Analyzer) Defaults() probe.Defaults {
	return probe.Defaults{Port: DefaultPort, Timeout: a.timeout}
}

// Probe sends a HEAD request, following redirects, and scores the final
// response headers. Any response is Active; only transport failures are not.
func (a *Analyzer) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &stdhttp.Client{
		Timeout: timeout,
		Transport: &stdhttp.Transport{
			Proxy:               stdhttp.ProxyFromEnvironment,
			DisableKeepAlives:   true,
			TLSHandshakeTimeout: timeout,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: a.insecure}, //nolint:gosec // opt-in
		},
		CheckRedirect: func(_ *stdhttp.Request, via []*stdhttp.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodHead, t.URL, nil)
	if err != nil {
		return probe.Failure(probe.KindHeaders, t, probe.StatusError, 0, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (reconkit header audit)")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		status := probe.StatusDead
		if probe.IsTimeout(err) {
			status = probe.StatusTimeout
		}
		a.logger.Debug().Str("url", t.URL).Err(err).Msg("HEAD request failed")
		return probe.Failure(probe.KindHeaders, t, status, latency, err)
	}
	resp.Body.Close()

	present, issues, score := Score(resp.Header, a.checklist, a.penalty, a.ceiling)
	report := probe.HeaderReport{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Server:     resp.Header.Get("Server"),
		Headers:    present,
		Issues:     issues,
		Score:      score,
	}

	a.logger.Debug().Str("url", t.URL).Int("score", score).Int("issues", len(issues)).Msg("Headers scored")
	return probe.Success(probe.KindHeaders, t, probe.StatusActive, latency, report)
}
