package pop3client

import (
	"errors"

	"github.com/emersion/go-sasl"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/internal/metrics"
	"github.com/emersion/go-mailwire/internal/wire"
)

// Login authenticates with a user name and password.
//
// APOP is used if the greeting carried a challenge and APOP is enabled.
// Otherwise, USER and PASS are sent, pipelined if the connection is
// encrypted and pipelining is enabled. A failure closes the connection.
func (c *Client) Login(username, password string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}
	return c.login(username, password)
}

func (c *Client) login(username, password string) error {
	mech := "USER"
	if c.apop != "" {
		mech = "APOP"
	}

	c.suspendTrace()
	err := c.doLogin(username, password)
	c.stream.ResumeTrace()

	c.authDone(mech, err)
	return err
}

func (c *Client) doLogin(username, password string) error {
	var (
		resp *response
		err  error
	)
	switch {
	case c.apop != "":
		digest := auth.APOPDigest(c.apop, password)
		resp, err = c.simpleCommand("APOP " + username + " " + digest)
	case c.pipelining && c.stream.IsTLS():
		resp, err = c.pipelinedLogin(username, password)
	default:
		resp, err = c.simpleCommand("USER " + username)
		if err == nil && !resp.ok {
			return resp.err(mailwire.KindAuth, "USER command failed")
		}
		if err == nil {
			resp, err = c.simpleCommand("PASS " + password)
		}
	}
	if err != nil {
		return authError(err)
	}
	if !resp.ok {
		return resp.err(mailwire.KindAuth, "login failed")
	}
	return nil
}

func (c *Client) pipelinedLogin(username, password string) (*response, error) {
	if err := c.writeLine("USER " + username); err != nil {
		return nil, err
	}
	if err := c.writeLine("PASS " + password); err != nil {
		return nil, err
	}

	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		// The PASS response must still be consumed
		if _, err := c.readResponse(); err != nil {
			c.logger.Debug("failed to read PASS response", "error", err)
		}
		return nil, resp.err(mailwire.KindAuth, "USER command failed")
	}
	return c.readResponse()
}

func (c *Client) suspendTrace() {
	if !c.options.TraceAuth && c.stream.Tracing() {
		c.logger.Debug("authentication command trace suppressed")
		c.stream.SuspendTrace()
	}
}

// authDone records the outcome of an authentication attempt. A failure
// closes the connection.
func (c *Client) authDone(mech string, err error) {
	metrics.AuthAttempts.WithLabelValues(protocolName, mech, metrics.Result(err)).Inc()
	if err != nil {
		c.logger.Info("authentication failed", "mechanism", mech, "error", err)
		c.close()
		return
	}
	c.logger.Debug("authenticated", "mechanism", mech)
	c.state = mailwire.ConnStateOpen
}

// Authenticate authenticates with a SASL mechanism. The LOGIN mechanism
// maps to Login. A failure closes the connection.
func (c *Client) Authenticate(a auth.Authenticator, cred *auth.Credentials) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}
	return c.authenticate(a, cred)
}

func (c *Client) authenticate(a auth.Authenticator, cred *auth.Credentials) error {
	if a.Mechanism() == auth.MechLogin {
		return c.login(cred.Username, cred.Password)
	}

	c.suspendTrace()
	err := c.doAuth(a, cred)
	c.stream.ResumeTrace()

	c.authDone(a.Mechanism(), err)
	return err
}

func (c *Client) doAuth(a auth.Authenticator, cred *auth.Credentials) error {
	saslClient, err := a.NewClient(cred)
	if err != nil {
		return authError(err)
	}
	mech, ir, err := saslClient.Start()
	if err != nil {
		return authError(err)
	}

	cmd := "AUTH " + mech
	if ir != nil && !auth.IsTwoLine(a) {
		c.logger.Debug("AUTH using one line authentication format", "mechanism", mech)
		cmd += " " + wire.EncodeSASL(ir)
		ir = nil
	} else if ir != nil {
		c.logger.Debug("AUTH using two line authentication format", "mechanism", mech)
	}

	resp, err := c.simpleCommand(cmd)
	for err == nil && resp.cont {
		var saslResp []byte
		if ir != nil {
			saslResp, ir = ir, nil
		} else if saslResp, err = c.challenge(saslClient, resp.text); err != nil {
			return err
		}
		resp, err = c.simpleCommand(wire.EncodeSASL(saslResp))
	}
	if err != nil {
		return authError(err)
	}
	if !resp.ok {
		return resp.err(mailwire.KindAuth, "authentication failed")
	}
	return nil
}

func (c *Client) challenge(saslClient sasl.Client, text string) ([]byte, error) {
	challenge, err := wire.DecodeSASL(text)
	if err != nil {
		return nil, mailwire.AuthError("invalid challenge", err)
	}
	resp, err := saslClient.Next(challenge)
	if err != nil {
		return nil, authError(err)
	}
	return resp, nil
}

// AuthenticateAny picks a mechanism and authenticates with it.
//
// mechs lists the mechanisms to consider, in order. If empty, every enabled
// mechanism of Options.Authenticators is considered. Only mechanisms
// supported by the server are tried, and only the first one is attempted.
func (c *Client) AuthenticateAny(mechs []string, cred *auth.Credentials) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}

	registry := c.options.Authenticators
	if registry == nil {
		registry = auth.Default(nil)
	}
	a, err := registry.Select(mechs, c.caps.SupportsMechanism)
	if err != nil {
		return err
	}
	c.logger.Debug("selected authentication mechanism", "mechanism", a.Mechanism())
	return c.authenticate(a, cred)
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
