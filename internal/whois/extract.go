package whois

import (
	"errors"
	"regexp"
	"strings"

	whoisparser "github.com/likexian/whois-parser"
)

// fields is what a WHOIS response yields after extraction.
type fields struct {
	Registrar   string
	Expiry      string
	Created     string
	NameServers []string
	Statuses    []string
}

var notFoundRegexp = regexp.MustCompile(`(?im)^\s*(no match for|not found|no data found|no entries found|domain not found|status:\s*free|%% no entries)`)

// extract pulls fields out of raw WHOIS text. The parser library handles the
// common registry formats and regex patterns fill whatever it leaves empty.
// notFound is true when the registry reported no such domain.
func extract(raw string) (f fields, notFound bool) {
	info, err := whoisparser.Parse(raw)
	if errors.Is(err, whoisparser.ErrNotFoundDomain) {
		return f, true
	}
	if err == nil {
		if info.Domain != nil {
			f.Expiry = info.Domain.ExpirationDate
			f.Created = info.Domain.CreatedDate
			f.NameServers = uniqueStrings(lowerAll(info.Domain.NameServers))
			f.Statuses = uniqueStrings(info.Domain.Status)
		}
		if info.Registrar != nil {
			f.Registrar = info.Registrar.Name
		}
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if f.Registrar == "" && f.Expiry == "" && len(f.NameServers) == 0 && notFoundRegexp.MatchString(text) {
		return f, true
	}

	if f.Registrar == "" {
		f.Registrar = firstAny(text,
			`Registrar:\s*(.+)`,
			`Registrar Name:\s*(.+)`,
			`Sponsoring Registrar:\s*(.+)`,
		)
	}
	if f.Expiry == "" {
		f.Expiry = firstAny(text,
			`Registry Expiry Date:\s*(.+)`,
			`Registrar Registration Expiration Date:\s*(.+)`,
			`Expiration Date:\s*(.+)`,
			`Expiry Date:\s*(.+)`,
			`Expires On:\s*(.+)`,
			`paid-till:\s*(.+)`,
		)
	}
	if f.Created == "" {
		f.Created = firstAny(text,
			`Creation Date:\s*(.+)`,
			`Created On:\s*(.+)`,
			`Registered on:\s*(.+)`,
			`created:\s*(.+)`,
		)
	}
	if len(f.NameServers) == 0 {
		ns := findAll(`Name Server:\s*(\S+)`, text)
		if len(ns) == 0 {
			ns = findAll(`nserver:\s*(\S+)`, text)
		}
		f.NameServers = uniqueStrings(lowerAll(ns))
	}
	if len(f.Statuses) == 0 {
		f.Statuses = uniqueStrings(findAll(`Domain Status:\s*([^\n\r]+)`, text))
	}
	return f, false
}

// ---------- helpers ----------

func firstAny(text string, patterns ...string) string {
	for _, p := range patterns {
		if v := findFirst(p, text); v != "" {
			return v
		}
	}
	return ""
}

func findFirst(pattern, text string) string {
	re := regexp.MustCompile("(?im)" + pattern)
	if m := re.FindStringSubmatch(text); len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func findAll(pattern, text string) []string {
	re := regexp.MustCompile("(?im)" + pattern)
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
