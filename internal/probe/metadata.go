package probe

import "time"

// Metadata is the kind-specific payload of a successful result.
type Metadata interface {
	ProbeKind() Kind
}

type PortInfo struct {
	Port    int    `json:"port" yaml:"port"`
	State   string `json:"state" yaml:"state"`
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
}

func (PortInfo) ProbeKind() Kind { return KindTCP }

type CertInfo struct {
	DaysRemaining int       `json:"days_remaining" yaml:"days_remaining"`
	ValidFrom     time.Time `json:"valid_from" yaml:"valid_from"`
	ValidTo       time.Time `json:"valid_to" yaml:"valid_to"`
	Issuer        string    `json:"issuer" yaml:"issuer"`
	Subject       string    `json:"subject" yaml:"subject"`
	Protocol      string    `json:"protocol" yaml:"protocol"`
	Cipher        string    `json:"cipher" yaml:"cipher"`
	SANs          []string  `json:"sans,omitempty" yaml:"sans,omitempty"`
	Grade         string    `json:"grade" yaml:"grade"`
}

func (CertInfo) ProbeKind() Kind { return KindTLS }

type WhoisInfo struct {
	Domain      string   `json:"domain" yaml:"domain"`
	Server      string   `json:"server" yaml:"server"`
	Registrar   string   `json:"registrar,omitempty" yaml:"registrar,omitempty"`
	Expiry      string   `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Created     string   `json:"created,omitempty" yaml:"created,omitempty"`
	NameServers []string `json:"name_servers,omitempty" yaml:"name_servers,omitempty"`
	Statuses    []string `json:"statuses,omitempty" yaml:"statuses,omitempty"`
	Raw         string   `json:"raw" yaml:"raw"`
}

func (WhoisInfo) ProbeKind() Kind { return KindWhois }

type ProxyInfo struct {
	Proxy     string `json:"proxy" yaml:"proxy"`
	Scheme    string `json:"scheme" yaml:"scheme"`
	Anonymity string `json:"anonymity" yaml:"anonymity"`
	IP        string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Country   string `json:"country,omitempty" yaml:"country,omitempty"`
	City      string `json:"city,omitempty" yaml:"city,omitempty"`
}

func (ProxyInfo) ProbeKind() Kind { return KindProxy }

type HeaderReport struct {
	URL        string            `json:"url" yaml:"url"`
	StatusCode int               `json:"status_code" yaml:"status_code"`
	Server     string            `json:"server,omitempty" yaml:"server,omitempty"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Issues     []string          `json:"issues" yaml:"issues"`
	Score      int               `json:"score" yaml:"score"`
}

func (HeaderReport) ProbeKind() Kind { return KindHeaders }

type DNSInfo struct {
	Name      string   `json:"name" yaml:"name"`
	Server    string   `json:"server" yaml:"server"`
	Addresses []string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	CNAMEs    []string `json:"cnames,omitempty" yaml:"cnames,omitempty"`
	Rcode     string   `json:"rcode" yaml:"rcode"`
}

func (DNSInfo) ProbeKind() Kind { return KindDNS }

type ProfileInfo struct {
	URL        string            `json:"url" yaml:"url"`
	StatusCode int               `json:"status_code" yaml:"status_code"`
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
	Meta       map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

func (ProfileInfo) ProbeKind() Kind { return KindProfile }
