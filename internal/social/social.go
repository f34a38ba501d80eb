package social

import (
	"context"
	"errors"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	xhtml "golang.org/x/net/html"

	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 1

	userAgent   = "reconkit/1.0 (+https://github.com/shii9/reconkit)"
	maxBodyRead = 1 << 20
)

// Fetcher is the profile prober. It fetches a profile page and reads the
// title and meta tags.
type Fetcher struct {
	timeout time.Duration
	retries int
	logger  zerolog.Logger
}

func NewFetcher(timeout time.Duration, retries int, log zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		timeout: timeout,
		retries: retries,
		logger:  log.With().Str("component", "profile").Logger(),
	}
}

func (*Fetcher) Kind() probe.Kind { return probe.KindProfile }

func (f *Fetcher) Defaults() probe.Defaults {
	return probe.Defaults{Port: 443, Timeout: f.timeout}
}

// Probe GETs the profile URL. 200 is Active, 404 NotFound, any other status
// Dead. A connection-level failure is retried; a timeout is not.
func (f *Fetcher) Probe(ctx context.Context, t target.Target, timeout time.Duration) probe.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment, DisableKeepAlives: true},
	}

	start := time.Now()
	var (
		resp     *http.Response
		err      error
		attempts int
	)
	for attempts < f.retries+1 {
		attempts++
		resp, err = f.get(ctx, client, t.URL)
		if err == nil || !retryable(ctx, err) || attempts > f.retries {
			break
		}
		f.logger.Debug().Str("url", t.URL).Int("attempt", attempts).Err(err).Msg("Retrying profile fetch")
	}
	if err != nil {
		status := probe.StatusError
		if probe.IsTimeout(err) {
			status = probe.StatusTimeout
		}
		res := probe.Failure(probe.KindProfile, t, status, time.Since(start), err)
		res.Attempts = attempts
		return res
	}
	defer resp.Body.Close()

	var res probe.Result
	switch resp.StatusCode {
	case http.StatusOK:
		title, meta := readMeta(io.LimitReader(resp.Body, maxBodyRead))
		res = probe.Success(probe.KindProfile, t, probe.StatusActive, time.Since(start), probe.ProfileInfo{
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Title:      title,
			Meta:       meta,
		})
	case http.StatusNotFound:
		res = probe.Failure(probe.KindProfile, t, probe.StatusNotFound, time.Since(start), nil)
		res.Error = "profile not found"
	default:
		res = probe.Failure(probe.KindProfile, t, probe.StatusDead, time.Since(start), nil)
		res.Error = "unexpected status " + resp.Status
	}
	res.Attempts = attempts
	return res
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return client.Do(req)
}

// retryable reports whether err is a connection-level failure worth one more
// attempt: the probe context is still live and the error is not a timeout.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || probe.IsTimeout(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// readMeta tokenizes an HTML document for its title and meta name/property tags.
func readMeta(r io.Reader) (string, map[string]string) {
	meta := map[string]string{}
	title := ""
	z := xhtml.NewTokenizer(r)
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return title, meta
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "meta":
				var key, val string
				for _, a := range tok.Attr {
					switch strings.ToLower(strings.TrimSpace(a.Key)) {
					case "property", "name":
						key = strings.ToLower(strings.TrimSpace(a.Val))
					case "content":
						val = strings.TrimSpace(a.Val)
					}
				}
				if key != "" && val != "" {
					meta[key] = val
				}
			case "title":
				if title == "" && z.Next() == xhtml.TextToken {
					title = html.UnescapeString(strings.TrimSpace(string(z.Text())))
				}
			}
		}
	}
}
