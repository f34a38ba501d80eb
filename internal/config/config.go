package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "reconkit.yaml"

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Probes    ProbesConfig    `yaml:"probes"`
	API       APIConfig       `yaml:"api"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Debug      bool   `yaml:"debug"`
	Output     string `yaml:"output"` // stdout, stderr or a file path
	TimeFormat string `yaml:"time_format"`
}

type SchedulerConfig struct {
	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"` // probe dispatches per second, 0 = unlimited
}

type ProbesConfig struct {
	TCP     TimeoutConfig `yaml:"tcp"`
	TLS     TimeoutConfig `yaml:"tls"`
	Whois   WhoisConfig   `yaml:"whois"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Headers HeadersConfig `yaml:"headers"`
	DNS     DNSConfig     `yaml:"dns"`
	Profile ProfileConfig `yaml:"profile"`
}

type TimeoutConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type WhoisConfig struct {
	Timeout       time.Duration     `yaml:"timeout"`
	DefaultServer string            `yaml:"default_server"`
	Servers       map[string]string `yaml:"servers,omitempty"` // TLD -> server, merged over the built-in table
}

type ProxyConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	EchoURL string        `yaml:"echo_url"`
	GeoDB   string        `yaml:"geo_db"` // optional MaxMind database
	Sources []string      `yaml:"sources,omitempty"`
}

type HeadersConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Penalty     int           `yaml:"penalty"`
	Ceiling     int           `yaml:"ceiling"`
	InsecureTLS bool          `yaml:"insecure_tls"`
}

type DNSConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Server  string        `yaml:"server"`
}

type ProfileConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

type APIConfig struct {
	Listen    string  `yaml:"listen"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Output: "stderr"},
		Scheduler: SchedulerConfig{
			Concurrency: 10,
		},
		Probes: ProbesConfig{
			TCP:     TimeoutConfig{Timeout: 2 * time.Second},
			TLS:     TimeoutConfig{Timeout: 5 * time.Second},
			Whois:   WhoisConfig{Timeout: 5 * time.Second, DefaultServer: "whois.iana.org"},
			Proxy:   ProxyConfig{Timeout: 5 * time.Second},
			Headers: HeadersConfig{Timeout: 10 * time.Second, Penalty: 15, Ceiling: 100},
			DNS:     DNSConfig{Timeout: 3 * time.Second},
			Profile: ProfileConfig{Timeout: 10 * time.Second, Retries: 1},
		},
		API: APIConfig{Listen: ":8080", RateLimit: 5, Burst: 10},
	}
}

// Load reads a reconkit.yaml file over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges the probes and scheduler rely on.
func (c *Config) Validate() error {
	if c.Scheduler.Concurrency < 1 || c.Scheduler.Concurrency > 50 {
		return fmt.Errorf("config: scheduler.concurrency %d outside 1-50", c.Scheduler.Concurrency)
	}
	if c.Scheduler.RateLimit < 0 {
		return fmt.Errorf("config: scheduler.rate_limit must not be negative")
	}

	timeouts := map[string]time.Duration{
		"tcp":     c.Probes.TCP.Timeout,
		"tls":     c.Probes.TLS.Timeout,
		"whois":   c.Probes.Whois.Timeout,
		"proxy":   c.Probes.Proxy.Timeout,
		"headers": c.Probes.Headers.Timeout,
		"dns":     c.Probes.DNS.Timeout,
		"profile": c.Probes.Profile.Timeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("config: probes.%s.timeout must be positive", name)
		}
	}
	if p := c.Probes.Proxy.Timeout; p < 3*time.Second || p > 10*time.Second {
		return fmt.Errorf("config: probes.proxy.timeout %s outside 3s-10s", p)
	}
	if c.Probes.Headers.Penalty < 0 || c.Probes.Headers.Ceiling <= 0 {
		return fmt.Errorf("config: probes.headers penalty/ceiling invalid")
	}
	if c.Probes.Profile.Retries < 0 {
		return fmt.Errorf("config: probes.profile.retries must not be negative")
	}
	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return fmt.Errorf("config: api rate limit must not be negative")
	}
	return nil
}

// WriteDefault writes the default configuration to path, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
