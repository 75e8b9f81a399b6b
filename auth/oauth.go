package auth

import (
	"github.com/emersion/go-sasl"

	"github.com/emersion/go-mailwire"
)

// XOAuth2 is the XOAUTH2 mechanism. The password of the credentials is the
// access token.
type XOAuth2 struct {
	// Enable allows the mechanism when no mechanism list is configured.
	Enable bool
	// TwoLineFormat sends the initial response on its own line after the
	// AUTH command instead of on the same line. Servers disagree on the
	// framing.
	TwoLineFormat bool
}

var (
	_ Authenticator = (*XOAuth2)(nil)
	_ TwoLiner      = (*XOAuth2)(nil)
)

func (*XOAuth2) Mechanism() string { return MechXOAuth2 }
func (a *XOAuth2) Enabled() bool   { return a.Enable }
func (a *XOAuth2) TwoLine() bool   { return a.TwoLineFormat }

func (a *XOAuth2) NewClient(cred *Credentials) (sasl.Client, error) {
	return &xoauth2Client{username: cred.Username, token: cred.Password}, nil
}

type xoauth2Client struct {
	username string
	token    string
}

func (c *xoauth2Client) Start() (mech string, ir []byte, err error) {
	return MechXOAuth2, XOAuth2Response(c.username, c.token), nil
}

// Next is only reached on failure: the server sends a challenge holding a
// JSON error description.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	return nil, mailwire.AuthError("XOAUTH2 authentication failed: "+string(challenge), nil)
}

// XOAuth2Response builds the XOAUTH2 initial response.
func XOAuth2Response(username, token string) []byte {
	return []byte("user=" + username + "\x01auth=Bearer " + token + "\x01\x01")
}

// OAuthBearer is the OAUTHBEARER mechanism, defined in RFC 7628.
type OAuthBearer struct {
	// Enable allows the mechanism when no mechanism list is configured.
	Enable bool
}

var _ Authenticator = (*OAuthBearer)(nil)

func (*OAuthBearer) Mechanism() string { return MechOAuthBearer }
func (a *OAuthBearer) Enabled() bool   { return a.Enable }

func (*OAuthBearer) NewClient(cred *Credentials) (sasl.Client, error) {
	return sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: cred.Username,
		Token:    cred.Password,
		Host:     cred.Host,
		Port:     cred.Port,
	}), nil
}
