// Package pop3client implements a POP3 client, as defined in RFC 1939.
//
// Extensions: CAPA and PIPELINING (RFC 2449), STLS (RFC 2595) and AUTH
// (RFC 5034).
package pop3client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/auth"
	"github.com/emersion/go-mailwire/internal/logging"
	"github.com/emersion/go-mailwire/internal/metrics"
	"github.com/emersion/go-mailwire/internal/stream"
	"github.com/emersion/go-mailwire/internal/wire"
)

const protocolName = "pop3"

// Options contains options for Client.
type Options struct {
	// Raw ingress and egress data will be written to this writer, if any
	DebugWriter io.Writer
	// TraceAuth keeps tracing enabled during authentication. Credentials
	// end up in the trace.
	TraceAuth bool
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// TLSConfig is used for implicit TLS and STLS.
	TLSConfig *tls.Config
	// Dialer is used to open connections. By default, the proxy from the
	// environment is used, if any.
	Dialer proxy.ContextDialer

	// EnableAPOP authenticates with APOP when the greeting carries a
	// challenge.
	EnableAPOP bool
	// DisableCapa skips the CAPA command after connecting.
	DisableCapa bool
	// Pipelining sends some commands back to back even if the server
	// doesn't advertise PIPELINING.
	Pipelining bool

	// Authenticators are the mechanisms known to AuthenticateAny. Defaults
	// to auth.Default(nil).
	Authenticators *auth.Registry
}

// Status is the result of a STAT command.
type Status struct {
	// Number of messages in the maildrop
	Total int
	// Size of the maildrop in octets
	Size int64
}

// Client is a POP3 client.
//
// Methods are safe for concurrent use, they are serialized.
type Client struct {
	mutex      sync.Mutex
	stream     *stream.Stream
	reader     *wire.Reader
	options    Options
	logger     *slog.Logger
	state      mailwire.ConnState
	caps       mailwire.CapSet
	greeting   string
	address    string
	apop       string
	pipelining bool
}

// New creates a new client and reads the server greeting.
//
// A nil options pointer is equivalent to a zero options value.
func New(conn net.Conn, options *Options) (*Client, error) {
	if options == nil {
		options = &Options{}
	}

	s := stream.New(conn, &stream.Options{DebugWriter: options.DebugWriter})
	reader := wire.NewReader(s)
	reader.Literals = false

	c := &Client{
		stream:  s,
		reader:  reader,
		options: *options,
		logger:  logging.ForConn(options.Logger, protocolName),
		state:   mailwire.ConnStateConnected,
	}
	if s.IsTLS() {
		c.state = mailwire.ConnStateSecured
	}

	resp, err := c.readResponse()
	if err != nil {
		c.close()
		return nil, err
	}
	if !resp.ok {
		c.close()
		return nil, &mailwire.Error{Kind: mailwire.KindTransport, Status: mailwire.StatusNO, Text: "connect failed: " + resp.text}
	}
	c.greeting = resp.text

	if options.EnableAPOP {
		if start := strings.IndexByte(resp.text, '<'); start >= 0 {
			if end := strings.IndexByte(resp.text[start:], '>'); end >= 0 {
				c.apop = resp.text[start : start+end+1]
			}
		}
		c.logger.Debug("APOP challenge", "challenge", c.apop)
	}

	if err := c.init(); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

// init fetches capabilities, if enabled.
func (c *Client) init() error {
	if !c.options.DisableCapa {
		if _, err := c.capa(); err != nil && !mailwire.IsKind(err, mailwire.KindRejected) {
			return err
		}
	}

	c.pipelining = c.caps.Has(mailwire.CapPipelining) || c.options.Pipelining
	if c.pipelining {
		c.logger.Debug("PIPELINING enabled")
	}
	return nil
}

func dial(ctx context.Context, address string, options *Options) (net.Conn, error) {
	if options != nil && options.Dialer != nil {
		return options.Dialer.DialContext(ctx, "tcp", address)
	}
	return proxy.Dial(ctx, "tcp", address)
}

// Dial connects to a POP3 server without encryption.
func Dial(ctx context.Context, address string, options *Options) (*Client, error) {
	conn, err := dial(ctx, address, options)
	if err != nil {
		return nil, mailwire.TransportError("dial failed", err)
	}
	return newWithAddress(conn, address, options)
}

func newWithAddress(conn net.Conn, address string, options *Options) (*Client, error) {
	c, err := New(conn, options)
	if err != nil {
		return nil, err
	}
	c.address = address
	return c, nil
}

// DialTLS connects to a POP3 server with implicit TLS.
func DialTLS(ctx context.Context, address string, options *Options) (*Client, error) {
	conn, err := dial(ctx, address, options)
	if err != nil {
		return nil, mailwire.TransportError("dial failed", err)
	}

	var config *tls.Config
	if options != nil {
		config = options.TLSConfig
	}
	tlsConn := tls.Client(conn, tlsConfig(config, address))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &mailwire.Error{Kind: mailwire.KindUpgrade, Text: "TLS handshake failed", Err: err}
	}
	return newWithAddress(tlsConn, address, options)
}

// DialStartTLS connects to a POP3 server and upgrades the connection with
// STLS. The connection is closed if the upgrade fails.
func DialStartTLS(ctx context.Context, address string, options *Options) (*Client, error) {
	c, err := Dial(ctx, address, options)
	if err != nil {
		return nil, err
	}
	if err := c.StartTLS(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// tlsConfig fills in the server name from the address when missing.
func tlsConfig(config *tls.Config, address string) *tls.Config {
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config = config.Clone()
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		}
		config.ServerName = host
	}
	return config
}

// Close immediately closes the connection.
//
// Close may be called while another goroutine is blocked in a command: the
// pending read fails and the command returns a transport error.
func (c *Client) Close() error {
	err := c.stream.Close()
	c.mutex.Lock()
	c.state = mailwire.ConnStateClosed
	c.mutex.Unlock()
	return err
}

func (c *Client) close() error {
	c.state = mailwire.ConnStateClosed
	return c.stream.Close()
}

// SetDeadline sets the read and write deadlines of the connection.
func (c *Client) SetDeadline(t time.Time) error {
	return c.stream.SetDeadline(t)
}

// State returns the current connection state.
func (c *Client) State() mailwire.ConnState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Greeting returns the text of the server greeting.
func (c *Client) Greeting() string {
	return c.greeting
}

// APOPChallenge returns the APOP challenge found in the greeting, including
// the angle brackets. It is empty if APOP is disabled or unsupported.
func (c *Client) APOPChallenge() string {
	return c.apop
}

// IsTLS returns whether the connection is encrypted.
func (c *Client) IsTLS() bool {
	return c.stream.IsTLS()
}

// Caps returns the capabilities reported by the last CAPA command. Nil is
// returned if CAPA is disabled or unsupported.
func (c *Client) Caps() mailwire.CapSet {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.caps == nil {
		return nil
	}
	return c.caps.Copy()
}

// Pipelining returns whether commands are pipelined.
func (c *Client) Pipelining() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pipelining
}

func (c *Client) writeLine(line string) error {
	if c.stream.Closed() {
		return mailwire.ErrConnClosed
	}
	enc := wire.NewEncoder(c.stream)
	enc.Text(line)
	if err := enc.CRLF(); err != nil {
		if mailwire.IsKind(err, mailwire.KindSyntax) {
			return err
		}
		return c.fail(mailwire.TransportError("write failed", err))
	}
	return nil
}

func (c *Client) readResponse() (*response, error) {
	ba, err := c.reader.ReadResponse(nil)
	if err != nil {
		if c.stream.Closed() {
			return nil, mailwire.ErrConnClosed
		}
		return nil, c.fail(err)
	}
	line := strings.TrimSuffix(string(ba.Bytes()), "\r\n")
	return parseResponse(line)
}

// fail closes the connection after a transport error.
func (c *Client) fail(err error) error {
	if mailwire.IsKind(err, mailwire.KindTransport) {
		c.logger.Debug("closing connection", "error", err)
		c.close()
	}
	return err
}

func verb(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}

func observe(cmd string, resp *response, err error, start time.Time) {
	status := "error"
	if err == nil {
		status = resp.status()
	}
	metrics.ObserveCommand(protocolName, verb(cmd), status, start)
}

// simpleCommand sends a command and reads its status line.
func (c *Client) simpleCommand(cmd string) (resp *response, err error) {
	start := time.Now()
	defer func() {
		observe(cmd, resp, err, start)
	}()
	if err := c.writeLine(cmd); err != nil {
		return nil, err
	}
	return c.readResponse()
}

// multilineCommand sends a command and reads its body if the status is
// positive.
func (c *Client) multilineCommand(cmd string, size int) (*response, []byte, error) {
	resp, err := c.simpleCommand(cmd)
	if err != nil || !resp.ok {
		return resp, nil, err
	}
	body, err := c.readBody(size)
	return resp, body, err
}

func (c *Client) readBody(size int) ([]byte, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(size)
	}
	if _, err := buf.ReadFrom(newDotReader(c.stream)); err != nil {
		return nil, c.fail(err)
	}
	return buf.Bytes(), nil
}

// command sends a command and checks its status.
func (c *Client) command(cmd string) (*response, error) {
	resp, err := c.simpleCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		return resp, resp.err(mailwire.KindRejected, fmt.Sprintf("%v command failed", verb(cmd)))
	}
	return resp, nil
}

// ProxyDialer returns a dialer connecting through the SOCKS5 proxy described
// by u.
func ProxyDialer(u *url.URL) (proxy.ContextDialer, error) {
	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("pop3client: invalid proxy: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("pop3client: proxy %v doesn't support contexts", u.Redacted())
	}
	return cd, nil
}
