package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailwire/config"
)

const testConfig = `
host = "pop.example.org"
tls = "implicit"
apop = true
pipelining = true
timeout = "30s"
proxy = "socks5://127.0.0.1:1080"
bogus = 1

[auth]
username = "joe"
mechanisms = ["NTLM", "PLAIN"]
disabled = ["LOGIN"]

[auth.ntlm]
domain = "CORP"
flags = 4
v2 = false

[auth.xoauth2]
enabled = true
two_line = true

[logging]
level = "debug"
format = "json"

[metrics]
listen = ":9100"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "popcheck.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pop.example.org", cfg.Host)
	assert.Equal(t, config.TLSImplicit, cfg.TLS)
	assert.Equal(t, 995, cfg.GetPort())
	assert.Equal(t, "pop.example.org:995", cfg.Address())
	assert.True(t, cfg.APOP)
	assert.True(t, cfg.Pipelining)
	assert.Equal(t, []string{"bogus"}, cfg.Undecoded)
	assert.Equal(t, []string{"NTLM", "PLAIN"}, cfg.Auth.Mechanisms)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)

	timeout, err := cfg.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	u, err := cfg.GetProxyURL()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1080", u.Host)

	opts := cfg.AuthOptions()
	assert.Equal(t, "CORP", opts.NTLMDomain)
	assert.Equal(t, uint32(4), opts.NTLMFlags)
	assert.True(t, opts.NTLMDisableV2)
	assert.True(t, opts.XOAuth2Enabled)
	assert.True(t, opts.XOAuth2TwoLine)
	assert.Equal(t, []string{"LOGIN"}, opts.Disabled)
}

func TestDefault(t *testing.T) {
	cfg, err := config.Parse(`host = "mail.example.org"`)
	require.NoError(t, err)
	assert.Equal(t, config.TLSStartTLS, cfg.TLS)
	assert.Equal(t, 110, cfg.GetPort())
	assert.False(t, cfg.AuthOptions().NTLMDisableV2)
	assert.Empty(t, cfg.Undecoded)

	u, err := cfg.GetProxyURL()
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"tls mode", `tls = "sometimes"`},
		{"require tls", "tls = \"none\"\nrequire_tls = true"},
		{"port", `port = 70000`},
		{"timeout", `timeout = "soon"`},
		{"proxy scheme", `proxy = "http://127.0.0.1:8080"`},
		{"log level", "[logging]\nlevel = \"loud\""},
		{"log format", "[logging]\nformat = \"xml\""},
		{"syntax", `host = `},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Parse(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
