package pop3client_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/pop3client"
)

var testCred = &auth.Credentials{Username: "joe", Password: "secret"}

func TestClient_AuthenticatePlain(t *testing.T) {
	c, server := newTestClient(t, nil, "SASL PLAIN")

	wait := script(func() {
		server.Expect("AUTH PLAIN am9lAGpvZQBzZWNyZXQ=")
		server.Send("+OK maildrop locked and ready")
	})
	require.NoError(t, c.AuthenticateAny([]string{"PLAIN"}, testCred))
	wait()
	assert.Equal(t, mailwire.ConnStateOpen, c.State())
}

func TestClient_AuthenticateAnyDefault(t *testing.T) {
	c, server := newTestClient(t, nil, "SASL PLAIN")

	// LOGIN comes first and is always supported
	wait := script(func() {
		server.Expect("USER joe")
		server.Send("+OK")
		server.Expect("PASS secret")
		server.Send("+OK")
	})
	require.NoError(t, c.AuthenticateAny(nil, testCred))
	wait()
}

func TestClient_AuthenticateNoCommonMechanism(t *testing.T) {
	registry := auth.NewRegistry(auth.Plain{}, &auth.XOAuth2{Enable: true})
	c, _ := newTestClient(t, &pop3client.Options{Authenticators: registry}, "SASL NTLM")

	err := c.AuthenticateAny(nil, testCred)
	assert.ErrorIs(t, err, mailwire.ErrNoCommonMechanism)
	assert.Equal(t, mailwire.ConnStateConnected, c.State())
}

func TestClient_AuthenticateXOAuth2TwoLine(t *testing.T) {
	c, server := newTestClient(t, nil, "SASL XOAUTH2")

	wait := script(func() {
		server.Expect("AUTH XOAUTH2")
		server.Send("+ ")
		server.Expect("dXNlcj1qb2UBYXV0aD1CZWFyZXIgdG9rAQE=")
		server.Send("+OK welcome")
	})
	err := c.Authenticate(&auth.XOAuth2{TwoLineFormat: true}, &auth.Credentials{Username: "joe", Password: "tok"})
	wait()
	require.NoError(t, err)
	assert.Equal(t, mailwire.ConnStateOpen, c.State())
}

func TestClient_AuthenticateXOAuth2Failed(t *testing.T) {
	c, server := newTestClient(t, nil, "SASL XOAUTH2")

	wait := script(func() {
		server.Expect("AUTH XOAUTH2 dXNlcj1qb2UBYXV0aD1CZWFyZXIgdG9rAQE=")
		server.Send("+ eyJzdGF0dXMiOiI0MDEifQ==")
	})
	err := c.Authenticate(&auth.XOAuth2{}, &auth.Credentials{Username: "joe", Password: "tok"})
	wait()

	var e *mailwire.Error
	require.True(t, errors.As(err, &e), "Authenticate() = %v", err)
	assert.Equal(t, mailwire.KindAuth, e.Kind)
	assert.Contains(t, e.Text, `{"status":"401"}`)
	assert.Equal(t, mailwire.ConnStateClosed, c.State())
}

func TestClient_AuthenticateRejected(t *testing.T) {
	c, server := newTestClient(t, nil, "SASL PLAIN")

	wait := script(func() {
		server.Expect("AUTH PLAIN am9lAGpvZQBzZWNyZXQ=")
		server.Send("-ERR [AUTH] authentication failed")
	})
	err := c.Authenticate(auth.Plain{}, testCred)
	wait()

	var e *mailwire.Error
	require.True(t, errors.As(err, &e), "Authenticate() = %v", err)
	assert.Equal(t, mailwire.KindAuth, e.Kind)
	assert.Equal(t, "[AUTH] authentication failed", e.Text)
	assert.Equal(t, mailwire.ConnStateClosed, c.State())
}
