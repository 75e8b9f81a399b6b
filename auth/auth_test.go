package auth_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/ntlm"
)

var testCred = &auth.Credentials{
	Host:     "mail.example.org",
	Port:     110,
	Username: "joe",
	Password: "secret",
}

func TestAPOPDigest(t *testing.T) {
	// RFC 1939 section 7
	got := auth.APOPDigest("<1896.697170952@dbc.mtview.ca.us>", "tanstaaf")
	assert.Equal(t, "c4c9334bac560ecc979e58001b3e22fb", got)
}

func TestLogin(t *testing.T) {
	c, err := auth.Login{}.NewClient(testCred)
	require.NoError(t, err)

	mech, ir, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", mech)
	assert.Equal(t, "joe", string(ir))

	resp, err := c.Next([]byte("Username:"))
	require.NoError(t, err)
	assert.Equal(t, "joe", string(resp))

	resp, err = c.Next([]byte("Password:"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(resp))
}

func TestPlain(t *testing.T) {
	c, err := auth.Plain{}.NewClient(testCred)
	require.NoError(t, err)

	mech, ir, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", mech)
	assert.Equal(t, "joe\x00joe\x00secret", string(ir))

	_, err = c.Next([]byte("more"))
	assert.True(t, mailwire.IsKind(err, mailwire.KindAuth))
	assert.Contains(t, err.Error(), "PLAIN asked for more")

	cred := *testCred
	cred.Authzid = "admin"
	c, _ = auth.Plain{}.NewClient(&cred)
	_, ir, _ = c.Start()
	assert.Equal(t, "admin\x00joe\x00secret", string(ir))
}

func TestXOAuth2(t *testing.T) {
	a := &auth.XOAuth2{TwoLineFormat: true}
	assert.False(t, a.Enabled())
	assert.True(t, auth.IsTwoLine(a))
	assert.False(t, auth.IsTwoLine(auth.Plain{}))

	c, err := a.NewClient(&auth.Credentials{Username: "someuser@example.com", Password: "ya29.vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg"})
	require.NoError(t, err)
	mech, ir, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=someuser@example.com\x01auth=Bearer ya29.vF9dft4qmTc2Nvb3RlckBhdHRhdmlzdGEuY29tCg\x01\x01", string(ir))

	_, err = c.Next([]byte(`{"status":"401"}`))
	assert.True(t, mailwire.IsKind(err, mailwire.KindAuth))
	assert.Contains(t, err.Error(), `{"status":"401"}`)
}

func TestOAuthBearer(t *testing.T) {
	c, err := (&auth.OAuthBearer{}).NewClient(testCred)
	require.NoError(t, err)
	mech, ir, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "OAUTHBEARER", mech)
	assert.Contains(t, string(ir), "auth=Bearer secret")
}

func TestNTLM(t *testing.T) {
	a := &auth.NTLM{
		Domain:    "DOMAIN",
		LocalHost: "ws.example.org",
		V2:        true,
		Options:   []ntlm.Option{ntlm.WithRand(bytes.NewReader(make([]byte, 8)))},
	}
	c, err := a.NewClient(testCred)
	require.NoError(t, err)

	mech, type1, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "NTLM", mech)
	assert.Equal(t, "NTLMSSP\x00", string(type1[:8]))
	assert.NotZero(t, binary.LittleEndian.Uint32(type1[12:])&ntlm.NegotiateExtendedSessionSecurity)

	type2 := make([]byte, 32)
	copy(type2, "NTLMSSP\x00")
	binary.LittleEndian.PutUint32(type2[8:], 2)
	binary.LittleEndian.PutUint32(type2[20:], ntlm.NegotiateNTLM)
	type3, err := c.Next(type2)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(type3[8:]))

	// A handshake only has one challenge
	_, err = c.Next(type2)
	assert.Error(t, err)
}

func TestRegistry_Select(t *testing.T) {
	reg := auth.Default(&auth.Options{Disabled: []string{"ntlm"}})
	assert.Equal(t, []string{"LOGIN", "PLAIN", "NTLM", "XOAUTH2", "OAUTHBEARER"}, reg.Names())
	assert.False(t, reg.Enabled("NTLM"))
	assert.False(t, reg.Enabled("XOAUTH2"))
	assert.False(t, reg.Enabled("CRAM-MD5"))

	serverMechs := func(mechs ...string) func(string) bool {
		caps := mailwire.CapSet{"SASL": "SASL " + strings.Join(mechs, " ")}
		return caps.SupportsMechanism
	}

	tests := []struct {
		name      string
		preferred []string
		supported func(string) bool
		want      string
		err       error
	}{
		{
			name:      "default order",
			supported: serverMechs("PLAIN", "NTLM"),
			want:      "LOGIN",
		},
		{
			name:      "preferred",
			preferred: []string{"plain", "login"},
			supported: serverMechs("PLAIN"),
			want:      "PLAIN",
		},
		{
			name:      "preferred disabled",
			preferred: []string{"XOAUTH2"},
			supported: serverMechs("XOAUTH2"),
			want:      "XOAUTH2",
		},
		{
			name:      "default skips disabled",
			preferred: nil,
			supported: func(mech string) bool { return mech == "NTLM" || mech == "XOAUTH2" },
			err:       mailwire.ErrNoCommonMechanism,
		},
		{
			name:      "unknown",
			preferred: []string{"CRAM-MD5"},
			supported: serverMechs("CRAM-MD5"),
			err:       mailwire.ErrNoCommonMechanism,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := reg.Select(tc.preferred, tc.supported)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.Mechanism())
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := auth.NewRegistry(auth.Plain{})
	reg.Register(&auth.XOAuth2{Enable: true})
	reg.Register(auth.Plain{})
	assert.Equal(t, []string{"PLAIN", "XOAUTH2"}, reg.Names())
	assert.True(t, reg.Enabled("xoauth2"))
	reg.SetEnabled("XOAUTH2", false)
	assert.False(t, reg.Enabled("xoauth2"))
	assert.Nil(t, reg.Get("LOGIN"))
}
