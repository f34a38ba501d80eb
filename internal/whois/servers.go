package whois

import "strings"

// DefaultServer answers for TLDs missing from the table.
const DefaultServer = "whois.iana.org"

// DefaultServers maps a TLD to its registry WHOIS server.
var DefaultServers = map[string]string{
	"com":  "whois.verisign-grs.com",
	"net":  "whois.verisign-grs.com",
	"org":  "whois.pir.org",
	"info": "whois.nic.info",
	"biz":  "whois.nic.biz",
	"io":   "whois.nic.io",
	"ai":   "whois.nic.ai",
	"co":   "whois.nic.co",
	"me":   "whois.nic.me",
	"dev":  "whois.nic.google",
	"app":  "whois.nic.google",
	"xyz":  "whois.nic.xyz",
	"us":   "whois.nic.us",
	"uk":   "whois.nic.uk",
	"de":   "whois.denic.de",
	"fr":   "whois.nic.fr",
	"nl":   "whois.domain-registry.nl",
	"eu":   "whois.eu",
	"ru":   "whois.tcinet.ru",
	"in":   "whois.registry.in",
	"ca":   "whois.cira.ca",
	"au":   "whois.auda.org.au",
	"jp":   "whois.jprs.jp",
	"br":   "whois.registro.br",
	"cn":   "whois.cnnic.cn",
}

// ServerFor picks the WHOIS server for domain from table, falling back to def.
func ServerFor(domain string, table map[string]string, def string) string {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	tld := domain
	if i := strings.LastIndex(domain, "."); i >= 0 {
		tld = domain[i+1:]
	}
	if s, ok := table[tld]; ok && s != "" {
		return s
	}
	if def == "" {
		return DefaultServer
	}
	return def
}
