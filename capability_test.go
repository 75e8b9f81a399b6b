package mailwire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emersion/go-mailwire"
)

func TestParseCapLines(t *testing.T) {
	caps := mailwire.ParseCapLines([]string{
		"TOP",
		"uidl",
		"SASL plain XOAUTH2\r\n",
		"IMPLEMENTATION Shlemazle-Plotz-v302",
		"",
	})

	assert.Len(t, caps, 4)
	assert.True(t, caps.Has("UIDL"))
	assert.True(t, caps.Has("top"))
	assert.False(t, caps.Has("STLS"))
	assert.Equal(t, []string{"Shlemazle-Plotz-v302"}, caps.Args("implementation"))
	assert.Empty(t, caps.Args("TOP"))
	assert.Nil(t, caps.Args("EXPIRE"))
	assert.Equal(t, []string{"PLAIN", "XOAUTH2"}, caps.SASLMechanisms())
}

func TestParseCapAtoms(t *testing.T) {
	caps := mailwire.ParseCapAtoms([]string{"IMAP4rev1", "SASL-IR", "AUTH=PLAIN", "auth=ntlm", ""})

	assert.Len(t, caps, 4)
	assert.True(t, caps.Has(mailwire.CapSASLIR))
	assert.ElementsMatch(t, []string{"PLAIN", "NTLM"}, caps.SASLMechanisms())
}

func TestCapSet_SupportsMechanism(t *testing.T) {
	caps := mailwire.ParseCapLines([]string{"SASL PLAIN"})

	tests := []struct {
		mech string
		want bool
	}{
		{"PLAIN", true},
		{"plain", true},
		{"LOGIN", true},
		{"NTLM", false},
		{"XOAUTH2", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, caps.SupportsMechanism(tc.mech), tc.mech)
	}

	var none mailwire.CapSet
	assert.True(t, none.SupportsMechanism("LOGIN"))
	assert.False(t, none.SupportsMechanism("PLAIN"))
}

func TestCapSet_Copy(t *testing.T) {
	caps := mailwire.ParseCapAtoms([]string{"IDLE"})
	cp := caps.Copy()
	cp["MOVE"] = "MOVE"
	assert.False(t, caps.Has("MOVE"))
	assert.True(t, cp.Has("IDLE"))
}

func TestConnState(t *testing.T) {
	assert.True(t, mailwire.ConnStateConnected.CanUpgrade())
	assert.True(t, mailwire.ConnStateSecured.CanUpgrade())
	assert.False(t, mailwire.ConnStateDisconnected.CanUpgrade())
	assert.False(t, mailwire.ConnStateAuthenticated.CanUpgrade())
	assert.False(t, mailwire.ConnStateOpen.CanUpgrade())
	assert.False(t, mailwire.ConnStateClosed.CanUpgrade())
	assert.Equal(t, "authenticated", mailwire.ConnStateAuthenticated.String())
}
