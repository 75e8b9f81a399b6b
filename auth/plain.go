package auth

import (
	"github.com/emersion/go-sasl"

	"github.com/emersion/go-mailwire"
)

// Plain is the PLAIN mechanism, defined in RFC 4616.
type Plain struct{}

var _ Authenticator = Plain{}

func (Plain) Mechanism() string { return MechPlain }
func (Plain) Enabled() bool     { return true }

func (Plain) NewClient(cred *Credentials) (sasl.Client, error) {
	return plainClient{sasl.NewPlainClient(cred.authzid(), cred.Username, cred.Password)}, nil
}

type plainClient struct {
	sasl.Client
}

func (plainClient) Next(challenge []byte) ([]byte, error) {
	return nil, mailwire.AuthError("PLAIN asked for more", sasl.ErrUnexpectedServerChallenge)
}
