package imapclient

import (
	"errors"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/internal/metrics"
	"github.com/emersion/go-mailwire/internal/wire"
)

// Authenticate sends an AUTHENTICATE command.
//
// The initial response is sent with the command if the server supports
// SASL-IR. Any failure closes the connection.
func (c *Client) Authenticate(a auth.Authenticator, cred *auth.Credentials) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}

	err := c.authenticate(a, cred)
	metrics.AuthAttempts.WithLabelValues(protocolName, a.Mechanism(), metrics.Result(err)).Inc()
	if err != nil {
		c.logger.Info("authentication failed", "mechanism", a.Mechanism(), "error", err)
		c.close()
	}
	return err
}

func (c *Client) authenticate(a auth.Authenticator, cred *auth.Credentials) error {
	if c.caps == nil {
		if _, err := c.capability(); err != nil {
			return authError(err)
		}
	}

	saslClient, err := a.NewClient(cred)
	if err != nil {
		return authError(err)
	}
	mech, initialResp, err := saslClient.Start()
	if err != nil {
		return authError(err)
	}

	args := []Arg{Atom(mech)}
	if initialResp != nil && c.caps.Has(mailwire.CapSASLIR) && !auth.IsTwoLine(a) {
		args = append(args, RawSASL(initialResp))
		initialResp = nil
	}

	c.suspendTrace()
	defer c.stream.ResumeTrace()

	tag, err := c.writeCommand("AUTHENTICATE", args...)
	if err != nil {
		return authError(err)
	}

	var (
		resps []*wire.Response
		bye   *wire.Response
	)
	defer func() {
		if bye != nil {
			resps = append(resps, bye)
		}
		c.notify(resps)
	}()

	for {
		resp, err := c.readResponse()
		if err != nil {
			if mailwire.IsKind(err, mailwire.KindSyntax) {
				c.logger.Debug("ignoring bad response", "error", err)
				continue
			}
			if bye != nil {
				return &mailwire.Error{Kind: mailwire.KindAuth, Status: mailwire.StatusBYE, Text: bye.Rest(), Err: err}
			}
			return authError(err)
		}

		switch {
		case resp.IsContinuation():
			challenge, _ := resp.ReadBytes()

			var saslResp []byte
			if initialResp != nil && len(challenge) == 0 {
				saslResp = initialResp
				initialResp = nil
			} else {
				decoded, err := wire.DecodeSASL(string(challenge))
				if err != nil {
					return mailwire.AuthError("invalid challenge", err)
				}
				saslResp, err = saslClient.Next(decoded)
				if err != nil {
					return authError(err)
				}
			}

			enc := wire.NewEncoder(c.stream)
			enc.Text(wire.EncodeSASL(saslResp))
			if err := enc.CRLF(); err != nil {
				return authError(mailwire.TransportError("write failed", err))
			}
		case resp.IsBYE():
			bye = resp
		case resp.IsTagged() && resp.Tag() == tag:
			resps = append(resps, resp)
			if !resp.IsOK() {
				return &mailwire.Error{Kind: mailwire.KindAuth, Status: resp.Status(), Text: resp.Rest()}
			}
			c.authenticated(resp)
			return nil
		default:
			resps = append(resps, resp)
		}
	}
}

// authError makes sure err is an authentication error, keeping the server
// status and text.
func authError(err error) error {
	var e *mailwire.Error
	if errors.As(err, &e) {
		if e.Kind == mailwire.KindAuth {
			return err
		}
		return &mailwire.Error{Kind: mailwire.KindAuth, Status: e.Status, Text: e.Text, Err: err}
	}
	return mailwire.AuthError("", err)
}
