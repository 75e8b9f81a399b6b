package auth

import (
	"errors"
	"os"

	"github.com/emersion/go-sasl"

	"github.com/emersion/go-mailwire/ntlm"
)

// NTLM is the NTLM mechanism.
type NTLM struct {
	// Domain is the NT domain. A username of the form "DOMAIN\user"
	// overrides it.
	Domain string
	// LocalHost is the workstation name. It defaults to the host name.
	LocalHost string
	// Flags are added to the type-1 message flags.
	Flags uint32
	// V2 requests NTLMv2 responses.
	V2 bool

	// Options are passed to every session, e.g. for deterministic tests.
	Options []ntlm.Option
}

var _ Authenticator = (*NTLM)(nil)

func (*NTLM) Mechanism() string { return MechNTLM }
func (*NTLM) Enabled() bool     { return true }

func (a *NTLM) NewClient(cred *Credentials) (sasl.Client, error) {
	host := a.LocalHost
	if host == "" {
		host, _ = os.Hostname()
	}
	return &ntlmClient{
		mech:    a,
		session: ntlm.NewSession(a.Domain, host, cred.Username, cred.Password, a.Options...),
	}, nil
}

// ntlmClient holds the state of a single handshake.
type ntlmClient struct {
	mech    *NTLM
	session *ntlm.Session
}

func (c *ntlmClient) Start() (mech string, ir []byte, err error) {
	return MechNTLM, c.session.Type1(c.mech.Flags, c.mech.V2), nil
}

func (c *ntlmClient) Next(challenge []byte) ([]byte, error) {
	if c.session == nil {
		return nil, sasl.ErrUnexpectedServerChallenge
	}
	if len(challenge) == 0 {
		return nil, errors.New("auth: empty NTLM challenge")
	}
	resp, err := c.session.Type3(challenge)
	// The session holds the password, drop it once the proof is computed
	c.session = nil
	return resp, err
}
