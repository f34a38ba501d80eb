package geolocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

var ErrNoIP = errors.New("no ip in echo response")

// Location is where an exit IP resolves to.
type Location struct {
	IP          string `json:"ip"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	City        string `json:"city,omitempty"`
}

// Resolver maps an IP to a location.
type Resolver interface {
	Lookup(ip string) (Location, error)
}

/* ---------------------- echo endpoints ---------------------- */

// echoResult covers the field names used by ip-api, ipinfo and httpbin style
// IP echo services.
type echoResult struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Query       string `json:"query"`
	IP          string `json:"ip"`
	Origin      string `json:"origin"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
}

// ParseEcho extracts the caller's IP and location from an IP echo response.
// Plain text bodies holding only an IP are accepted.
func ParseEcho(body []byte) (Location, error) {
	text := strings.TrimSpace(string(body))
	if ip := net.ParseIP(text); ip != nil {
		return Location{IP: ip.String()}, nil
	}

	var r echoResult
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, fmt.Errorf("echo json parse failed: %w", err)
	}
	if r.Status == "fail" {
		return Location{}, fmt.Errorf("echo status=%s message=%s", r.Status, r.Message)
	}

	ip := firstNonEmpty(r.Query, r.IP, r.Origin)
	// httpbin reports "client, proxy" chains
	if i := strings.Index(ip, ","); i >= 0 {
		ip = strings.TrimSpace(ip[:i])
	}
	if ip == "" {
		return Location{}, ErrNoIP
	}

	loc := Location{IP: ip, City: r.City, CountryCode: r.CountryCode, Country: r.Country}
	// ipinfo puts the ISO code in "country"
	if loc.CountryCode == "" && len(loc.Country) == 2 {
		loc.CountryCode = strings.ToUpper(loc.Country)
	}
	return loc, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

/* ---------------------- MaxMind database ---------------------- */

type mmdbRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// MaxMind resolves IPs from a GeoLite2/GeoIP2 City or Country database.
type MaxMind struct {
	reader *maxminddb.Reader
}

func OpenMaxMind(path string) (*MaxMind, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geo database %s: %w", path, err)
	}
	return &MaxMind{reader: r}, nil
}

func (m *MaxMind) Lookup(ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, fmt.Errorf("invalid ip %q", ip)
	}

	var rec mmdbRecord
	if err := m.reader.Lookup(parsed, &rec); err != nil {
		return Location{}, fmt.Errorf("geo lookup %s: %w", ip, err)
	}
	return Location{
		IP:          ip,
		Country:     rec.Country.Names["en"],
		CountryCode: rec.Country.ISOCode,
		City:        rec.City.Names["en"],
	}, nil
}

func (m *MaxMind) Close() error {
	return m.reader.Close()
}
