package imapclient

import (
	"context"
	"crypto/tls"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/metrics"
)

// StartTLS sends a STARTTLS command and starts TLS negotiation.
//
// If config is nil, Options.TLSConfig is used. Nothing happens if the
// connection is already encrypted. Capabilities must be fetched again once
// the connection is secured.
func (c *Client) StartTLS(ctx context.Context, config *tls.Config) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stream.IsTLS() {
		return nil
	}
	if config == nil {
		config = c.options.TLSConfig
	}
	if config == nil {
		config = &tls.Config{}
	}

	err := c.upgrade("STARTTLS", func() error {
		return c.stream.StartTLS(ctx, config)
	})
	metrics.UpgradesTotal.WithLabelValues("starttls", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}

	c.state = mailwire.ConnStateSecured
	c.caps = nil
	return nil
}

// Compress sends a COMPRESS DEFLATE command and enables compression in both
// directions.
func (c *Client) Compress() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stream.IsCompressed() {
		return nil
	}

	err := c.upgrade("COMPRESS", func() error {
		return c.stream.Compress(c.options.CompressionLevel)
	}, Atom("DEFLATE"))
	metrics.UpgradesTotal.WithLabelValues("compress", metrics.Result(err)).Inc()
	return err
}

// upgrade negotiates a stream replacement. A rejected command leaves the
// connection usable, a failed replacement closes it.
func (c *Client) upgrade(name string, replace func() error, args ...Arg) error {
	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}

	resps := c.command(name, args...)
	if err := c.handleResult(resps[len(resps)-1]); err != nil {
		if e, ok := err.(*mailwire.Error); ok && e.Kind == mailwire.KindRejected {
			return &mailwire.Error{Kind: mailwire.KindUpgrade, Status: e.Status, Text: e.Text}
		}
		return err
	}

	if err := replace(); err != nil {
		c.logger.Warn("stream upgrade failed", "command", name, "error", err)
		c.close()
		return err
	}
	c.logger.Debug("stream upgraded", "command", name)
	return nil
}
