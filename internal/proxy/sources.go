package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

var ErrNoProxies = errors.New("no proxies found")

// FetchSources downloads proxy lists concurrently and returns the unique
// non-comment lines in source order. Failing sources are skipped.
func FetchSources(ctx context.Context, client *http.Client, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, errors.New("no proxy sources configured")
	}
	if client == nil {
		client = http.DefaultClient
	}

	lists := make([][]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range urls {
		g.Go(func() error {
			list, err := fetchList(gctx, client, src)
			if err == nil {
				lists[i] = list
			}
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoProxies
	}
	return out, nil
}

func fetchList(ctx context.Context, client *http.Client, src string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", src, resp.StatusCode)
	}

	var proxies []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ":") {
			proxies = append(proxies, line)
		}
	}
	return proxies, scanner.Err()
}
