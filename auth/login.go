package auth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/emersion/go-sasl"
	"golang.org/x/text/encoding/charmap"
)

// Login is the LOGIN mechanism. POP3 clients authenticate with USER and PASS
// (or APOP) instead of AUTH LOGIN.
type Login struct{}

var _ Authenticator = Login{}

func (Login) Mechanism() string { return MechLogin }
func (Login) Enabled() bool     { return true }

func (Login) NewClient(cred *Credentials) (sasl.Client, error) {
	return &loginClient{
		Client:   sasl.NewLoginClient(cred.Username, cred.Password),
		username: cred.Username,
	}, nil
}

// loginClient answers a "Username:" prompt for servers which don't accept an
// initial response.
type loginClient struct {
	sasl.Client
	username string
}

func (c *loginClient) Next(challenge []byte) ([]byte, error) {
	if strings.EqualFold(strings.TrimSpace(string(challenge)), "Username:") {
		return []byte(c.username), nil
	}
	return c.Client.Next(challenge)
}

// APOPDigest computes the APOP digest of a password for the challenge
// announced in the server greeting, as defined in RFC 1939 section 7.
func APOPDigest(challenge, password string) string {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(challenge + password))
	if err != nil {
		b = []byte(challenge + password)
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
