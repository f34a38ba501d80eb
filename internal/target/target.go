package target

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidFormat marks a line that does not match the expected shape.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrInvalidPortRange refuses a whole batch.
	ErrInvalidPortRange = errors.New("invalid port range")
)

var domainRegexp = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z][a-z0-9-]{0,61}[a-z0-9]$`)

// Shape selects how a line is interpreted.
type Shape int

const (
	ShapeHostPort Shape = iota
	ShapeProxy
	ShapeDomain
	ShapeHost
	ShapeURL
)

func (s Shape) String() string {
	switch s {
	case ShapeHostPort:
		return "host:port"
	case ShapeProxy:
		return "proxy"
	case ShapeDomain:
		return "domain"
	case ShapeHost:
		return "host"
	case ShapeURL:
		return "url"
	default:
		return "unknown"
	}
}

type Credentials struct {
	User string `json:"user" yaml:"user"`
	Pass string `json:"-" yaml:"-"`
}

// Target is one parsed input line. Targets that failed to parse keep Err set
// and still occupy a batch slot.
type Target struct {
	Index       int          `json:"index" yaml:"index"`
	Raw         string       `json:"raw" yaml:"raw"`
	Host        string       `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int          `json:"port,omitempty" yaml:"port,omitempty"`
	Scheme      string       `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	URL         string       `json:"url,omitempty" yaml:"url,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Err         error        `json:"-" yaml:"-"`
}

func (t Target) Valid() bool { return t.Err == nil }

// Address is host:port suitable for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	if t.URL != "" {
		return t.URL
	}
	if t.Host != "" && t.Port > 0 {
		return t.Address()
	}
	if t.Host != "" {
		return t.Host
	}
	return t.Raw
}

func invalid(raw, reason string) Target {
	return Target{Raw: raw, Err: fmt.Errorf("%w: %s", ErrInvalidFormat, reason)}
}

// ParseLines turns raw text into one Target per non-blank line. defaultPort
// fills the port for shapes where the line does not carry one.
func ParseLines(input string, shape Shape, defaultPort int) []Target {
	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	targets := make([]Target, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t := ParseLine(line, shape, defaultPort)
		t.Index = len(targets)
		targets = append(targets, t)
	}
	return targets
}

// ParseLine parses a single trimmed, non-blank line.
func ParseLine(line string, shape Shape, defaultPort int) Target {
	switch shape {
	case ShapeHostPort:
		return parseHostPort(line)
	case ShapeProxy:
		return parseProxy(line)
	case ShapeDomain:
		return parseDomain(line, defaultPort)
	case ShapeHost:
		return parseHost(line, defaultPort)
	case ShapeURL:
		return parseURL(line)
	default:
		return invalid(line, "unknown shape")
	}
}

func parseHostPort(line string) Target {
	host, portStr, err := net.SplitHostPort(line)
	if err != nil {
		return invalid(line, "expected host:port")
	}
	if !validHost(host) {
		return invalid(line, "bad host")
	}
	port, err := parsePort(portStr)
	if err != nil {
		return invalid(line, err.Error())
	}
	return Target{Raw: line, Host: host, Port: port}
}

func parseProxy(line string) Target {
	rest := line
	scheme := "http"
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
		switch scheme {
		case "http", "https", "socks5":
		default:
			return invalid(line, "unsupported proxy scheme "+scheme)
		}
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return invalid(line, "expected host:port or host:port:user:pass")
	}
	if !validHost(parts[0]) {
		return invalid(line, "bad host")
	}
	port, err := parsePort(parts[1])
	if err != nil {
		return invalid(line, err.Error())
	}

	t := Target{Raw: line, Host: parts[0], Port: port, Scheme: scheme}
	if len(parts) == 4 {
		if parts[2] == "" {
			return invalid(line, "empty proxy user")
		}
		t.Credentials = &Credentials{User: parts[2], Pass: parts[3]}
	}
	return t
}

func parseDomain(line string, defaultPort int) Target {
	d := strings.TrimSuffix(strings.ToLower(line), ".")
	if !domainRegexp.MatchString(d) {
		return invalid(line, "not a domain")
	}
	return Target{Raw: line, Host: d, Port: defaultPort}
}

// parseHost accepts a bare host or IP, with an optional port.
func parseHost(line string, defaultPort int) Target {
	if host, portStr, err := net.SplitHostPort(line); err == nil {
		if !validHost(host) {
			return invalid(line, "bad host")
		}
		port, err := parsePort(portStr)
		if err != nil {
			return invalid(line, err.Error())
		}
		return Target{Raw: line, Host: host, Port: port}
	}

	host := strings.Trim(line, "[]")
	if !validHost(host) {
		return invalid(line, "bad host")
	}
	return Target{Raw: line, Host: host, Port: defaultPort}
}

func parseURL(line string) Target {
	raw := line
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return invalid(line, "bad url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(line, "unsupported url scheme "+u.Scheme)
	}
	if !validHost(u.Hostname()) {
		return invalid(line, "bad host")
	}

	port := 443
	if u.Scheme == "http" {
		port = 80
	}
	if p := u.Port(); p != "" {
		n, err := parsePort(p)
		if err != nil {
			return invalid(line, err.Error())
		}
		port = n
	}
	return Target{Raw: line, Host: u.Hostname(), Port: port, Scheme: u.Scheme, URL: u.String()}
}

func validHost(host string) bool {
	if host == "" || strings.ContainsAny(host, " \t/@") {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	return domainRegexp.MatchString(strings.TrimSuffix(host, "."))
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad port %q", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}
