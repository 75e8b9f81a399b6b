// Package config loads client configuration from TOML files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/emersion/go-mailwire/auth"
)

// TLS modes.
const (
	TLSImplicit = "implicit"
	TLSStartTLS = "starttls"
	TLSNone     = "none"
)

// Config is the client configuration.
type Config struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// TLS is one of "implicit", "starttls" or "none".
	TLS string `toml:"tls"`
	// RequireTLS aborts the connection if STARTTLS is unavailable or fails.
	RequireTLS         bool `toml:"require_tls"`
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
	// Discover looks up the server with DNS SRV records when Host is a
	// domain without a POP3 server.
	Discover bool `toml:"discover"`

	APOP        bool `toml:"apop"`
	DisableCapa bool `toml:"disable_capa"`
	Pipelining  bool `toml:"pipelining"`
	TraceAuth   bool `toml:"trace_auth"`
	// Proxy is a SOCKS5 proxy URL, e.g. "socks5://127.0.0.1:1080".
	Proxy   string `toml:"proxy"`
	Timeout string `toml:"timeout"`
	// LocalHost is the name this client announces, e.g. in NTLM messages.
	LocalHost string `toml:"local_host"`

	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`

	// Undecoded lists keys present in the file but unknown to this
	// package.
	Undecoded []string `toml:"-"`
}

// AuthConfig configures authentication.
type AuthConfig struct {
	Username string `toml:"username"`
	Authzid  string `toml:"authzid"`
	// Mechanisms lists the mechanisms to try, in order. When empty, every
	// enabled mechanism is considered.
	Mechanisms []string `toml:"mechanisms"`
	// Disabled lists mechanisms which are never tried by default.
	Disabled []string `toml:"disabled"`

	NTLM        NTLMConfig        `toml:"ntlm"`
	XOAuth2     XOAuth2Config     `toml:"xoauth2"`
	OAuthBearer OAuthBearerConfig `toml:"oauthbearer"`
}

// NTLMConfig configures the NTLM mechanism.
type NTLMConfig struct {
	Domain string `toml:"domain"`
	Flags  uint32 `toml:"flags"`
	// V2 requests NTLMv2. It defaults to true.
	V2 *bool `toml:"v2"`
}

// XOAuth2Config configures the XOAUTH2 mechanism.
type XOAuth2Config struct {
	Enabled bool `toml:"enabled"`
	TwoLine bool `toml:"two_line"`
}

// OAuthBearerConfig configures the OAUTHBEARER mechanism.
type OAuthBearerConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address to serve /metrics on. Empty disables it.
	Listen string `toml:"listen"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		TLS:     TLSStartTLS,
		Timeout: "1m",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Parse decodes a configuration on top of the defaults.
func Parse(data string) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, key := range md.Undecoded() {
		cfg.Undecoded = append(cfg.Undecoded, key.String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (cfg *Config) Validate() error {
	switch cfg.TLS {
	case TLSImplicit, TLSStartTLS, TLSNone:
	default:
		return fmt.Errorf("config: invalid tls mode %q", cfg.TLS)
	}
	if cfg.RequireTLS && cfg.TLS == TLSNone {
		return fmt.Errorf("config: require_tls is incompatible with tls = %q", TLSNone)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("config: invalid port %v", cfg.Port)
	}
	if _, err := cfg.GetTimeout(); err != nil {
		return err
	}
	if _, err := cfg.GetProxyURL(); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", cfg.Logging.Format)
	}
	return nil
}

// GetTimeout returns the I/O timeout. Zero disables it.
func (cfg *Config) GetTimeout() (time.Duration, error) {
	if cfg.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: negative timeout %v", d)
	}
	return d, nil
}

// GetProxyURL returns the parsed proxy URL, or nil if no proxy is
// configured.
func (cfg *Config) GetProxyURL() (*url.URL, error) {
	if cfg.Proxy == "" {
		return nil, nil
	}
	u, err := url.Parse(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("config: invalid proxy: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("config: unsupported proxy scheme %q", u.Scheme)
	}
	return u, nil
}

// GetPort returns the configured port, or the default port for the TLS
// mode.
func (cfg *Config) GetPort() int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	if cfg.TLS == TLSImplicit {
		return 995
	}
	return 110
}

// Address returns the server address.
func (cfg *Config) Address() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GetPort()))
}

// AuthOptions returns the options for the default mechanism registry.
func (cfg *Config) AuthOptions() *auth.Options {
	v2 := true
	if cfg.Auth.NTLM.V2 != nil {
		v2 = *cfg.Auth.NTLM.V2
	}
	return &auth.Options{
		Disabled:           cfg.Auth.Disabled,
		NTLMDomain:         cfg.Auth.NTLM.Domain,
		NTLMLocalHost:      cfg.LocalHost,
		NTLMFlags:          cfg.Auth.NTLM.Flags,
		NTLMDisableV2:      !v2,
		XOAuth2Enabled:     cfg.Auth.XOAuth2.Enabled,
		XOAuth2TwoLine:     cfg.Auth.XOAuth2.TwoLine,
		OAuthBearerEnabled: cfg.Auth.OAuthBearer.Enabled,
	}
}
