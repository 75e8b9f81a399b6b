package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"golang.org/x/net/proxy"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/config"
	"github.com/emersion/go-mailwire/discover"
	"github.com/emersion/go-mailwire/pop3client"
)

// checker runs a single check session.
type checker struct {
	cfg      *config.Config
	password string
	subjects bool
	logger   *slog.Logger
	out      io.Writer
	debug    io.Writer
	dialer   proxy.ContextDialer
	resolver *discover.Resolver
}

// target returns the address to connect to and the TLS mode to use.
func (ch *checker) target(ctx context.Context) (address, mode string, err error) {
	if !ch.cfg.Discover {
		return ch.cfg.Address(), ch.cfg.TLS, nil
	}

	resolver := ch.resolver
	if resolver == nil {
		resolver = discover.NewResolver()
	}
	svc, err := resolver.LookupPOP3Best(ctx, ch.cfg.Host)
	if err != nil {
		return "", "", err
	}
	mode = config.TLSStartTLS
	if svc.TLS {
		mode = config.TLSImplicit
	}
	ch.logger.Info("discovered server", "address", svc.Address(), "tls", mode)
	return svc.Address(), mode, nil
}

func (ch *checker) connect(ctx context.Context) (*pop3client.Client, error) {
	address, mode, err := ch.target(ctx)
	if err != nil {
		return nil, err
	}

	options := &pop3client.Options{
		DebugWriter: ch.debug,
		TraceAuth:   ch.cfg.TraceAuth,
		Logger:      ch.logger,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: ch.cfg.InsecureSkipVerify,
		},
		Dialer:         ch.dialer,
		EnableAPOP:     ch.cfg.APOP,
		DisableCapa:    ch.cfg.DisableCapa,
		Pipelining:     ch.cfg.Pipelining,
		Authenticators: auth.Default(ch.cfg.AuthOptions()),
	}

	timeout, err := ch.cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch.logger.Debug("connecting", "address", address, "tls", mode)
	switch mode {
	case config.TLSImplicit:
		return pop3client.DialTLS(ctx, address, options)
	case config.TLSNone:
		return pop3client.Dial(ctx, address, options)
	}

	c, err := pop3client.Dial(ctx, address, options)
	if err != nil {
		return nil, err
	}
	if caps := c.Caps(); caps != nil && !caps.Has(mailwire.CapSTLS) {
		if ch.cfg.RequireTLS {
			c.Close()
			return nil, mailwire.ErrTLSRequired
		}
		ch.logger.Warn("server doesn't support STLS, continuing without TLS")
		return c, nil
	}
	if err := c.StartTLS(ctx); err != nil {
		if ch.cfg.RequireTLS || c.State() == mailwire.ConnStateClosed {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
		ch.logger.Warn("STARTTLS failed, continuing without TLS", "error", err)
	}
	return c, nil
}

func (ch *checker) run(ctx context.Context) error {
	c, err := ch.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if timeout, _ := ch.cfg.GetTimeout(); timeout > 0 {
		c.SetDeadline(time.Now().Add(timeout))
	}

	cred := &auth.Credentials{
		Host:     ch.cfg.Host,
		Port:     ch.cfg.GetPort(),
		Authzid:  ch.cfg.Auth.Authzid,
		Username: ch.cfg.Auth.Username,
		Password: ch.password,
	}
	if err := c.AuthenticateAny(ch.cfg.Auth.Mechanisms, cred); err != nil {
		return err
	}

	subjects := ch.subjects
	if caps := c.Caps(); subjects && caps != nil && !caps.Has(mailwire.CapTop) {
		ch.logger.Warn("server doesn't support TOP, not showing subjects")
		subjects = false
	}

	status, err := c.Stat()
	if err != nil {
		return err
	}
	fmt.Fprintf(ch.out, "%d messages (%d octets)\n", status.Total, status.Size)

	list, err := c.ListAll()
	if err != nil {
		return err
	}

	uids := make(map[int]string)
	if l, err := c.UIDLAll(); err == nil {
		for _, msg := range l {
			uids[msg.Num] = msg.UID
		}
	} else if !mailwire.IsKind(err, mailwire.KindRejected) {
		return err
	}

	tw := tabwriter.NewWriter(ch.out, 0, 4, 2, ' ', 0)
	for _, msg := range list {
		uid := uids[msg.Num]
		if uid == "" {
			uid = "-"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s", msg.Num, msg.Size, uid)
		if subjects {
			h, err := c.TopHeader(msg.Num)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "\t%s", h.Get("Subject"))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	return c.Quit()
}
