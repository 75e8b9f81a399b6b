// Package imapclient implements a synchronous command channel for the
// tagged (IMAP-style) dialect.
//
// Commands are sent one at a time: each method blocks until the server has
// completed the command.
package imapclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/logging"
	"github.com/emersion/go-mailwire/internal/metrics"
	"github.com/emersion/go-mailwire/internal/stream"
	"github.com/emersion/go-mailwire/internal/wire"
)

const protocolName = "imap"

// ResponseHandler is called for every response of a command, in order.
type ResponseHandler func(resp *wire.Response)

// Options contains options for Client.
type Options struct {
	// Raw ingress and egress data will be written to this writer, if any
	DebugWriter io.Writer
	// TraceAuth keeps tracing enabled during authentication. Credentials
	// end up in the trace.
	TraceAuth bool
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Tags allocates the tag prefix of the connection. By default, each
	// client starts at "A".
	Tags *TagGenerator
	// TLSConfig is used by StartTLS when no configuration is passed.
	TLSConfig *tls.Config
	// UTF8 decodes response strings as UTF-8 instead of Latin-1.
	UTF8 bool
	// MaxLiteralSize bounds the size of a literal.
	MaxLiteralSize int
	// CompressionLevel is the DEFLATE level used by Compress. Zero means
	// the default level.
	CompressionLevel int
	// OnResponse is called for every response received.
	OnResponse ResponseHandler
}

// Client is a connection to a server speaking the tagged dialect.
//
// Methods are safe for concurrent use, they are serialized.
type Client struct {
	mutex    sync.Mutex
	stream   *stream.Stream
	reader   *wire.Reader
	options  Options
	logger   *slog.Logger
	prefix   string
	seq      int
	state    mailwire.ConnState
	caps     mailwire.CapSet
	greeting *wire.Response
	handlers []ResponseHandler
}

// New creates a new client and reads the server greeting.
//
// A nil options pointer is equivalent to a zero options value.
func New(conn net.Conn, options *Options) (*Client, error) {
	if options == nil {
		options = &Options{}
	}
	tags := options.Tags
	if tags == nil {
		tags = NewTagGenerator(0)
	}

	s := stream.New(conn, &stream.Options{DebugWriter: options.DebugWriter})
	reader := wire.NewReader(s)
	reader.MaxLiteralSize = options.MaxLiteralSize

	c := &Client{
		stream:  s,
		reader:  reader,
		options: *options,
		logger:  logging.ForConn(options.Logger, protocolName),
		prefix:  tags.Next(),
		state:   mailwire.ConnStateConnected,
	}
	if s.IsTLS() {
		c.state = mailwire.ConnStateSecured
	}
	if options.OnResponse != nil {
		c.handlers = append(c.handlers, options.OnResponse)
	}

	greeting, err := c.readResponse()
	if err != nil {
		s.Close()
		return nil, err
	}
	c.greeting = greeting

	switch {
	case greeting.IsBYE():
		s.Close()
		return nil, &mailwire.Error{Kind: mailwire.KindTransport, Status: mailwire.StatusBYE, Text: greeting.Rest()}
	case !greeting.IsUntagged():
		s.Close()
		return nil, &mailwire.Error{Kind: mailwire.KindSyntax, Text: "invalid greeting: " + greeting.String()}
	}
	if !greeting.IsOK() {
		// PREAUTH isn't a status condition, the cursor sits before it
		if atom, _ := greeting.ReadAtom(); strings.EqualFold(atom, "PREAUTH") {
			c.state = mailwire.ConnStateAuthenticated
		}
	}
	c.caps = parseCapabilityCode(greeting)
	greeting.Reset()

	c.logger.Debug("connected", "state", c.state, "tag_prefix", c.prefix)
	return c, nil
}

// DialTLS connects to a server with implicit TLS.
func DialTLS(address string, config *tls.Config, options *Options) (*Client, error) {
	conn, err := tls.Dial("tcp", address, config)
	if err != nil {
		return nil, err
	}
	return New(conn, options)
}

// DialInsecure connects to a server without any encryption.
func DialInsecure(address string, options *Options) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return New(conn, options)
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

// State returns the current connection state.
func (c *Client) State() mailwire.ConnState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Greeting returns the server greeting.
func (c *Client) Greeting() *wire.Response {
	return c.greeting
}

// AddResponseHandler registers a handler called for every response.
func (c *Client) AddResponseHandler(h ResponseHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handlers = append(c.handlers, h)
}

// WriteCommand sends a command and returns its tag. The response isn't read.
func (c *Client) WriteCommand(name string, args ...Arg) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.writeCommand(name, args...)
}

func (c *Client) writeCommand(name string, args ...Arg) (string, error) {
	if c.stream.Closed() {
		return "", mailwire.ErrConnClosed
	}

	tag := c.prefix + strconv.Itoa(c.seq)
	c.seq++

	enc := wire.NewEncoder(c.stream)
	enc.QuotedUTF8 = c.options.UTF8
	enc.Atom(tag).SP().Atom(name)
	for _, arg := range args {
		enc.SP()
		arg.encode(enc)
	}
	if err := enc.CRLF(); err != nil {
		var e *mailwire.Error
		if errors.As(err, &e) {
			return tag, err
		}
		return tag, mailwire.TransportError("write failed", err)
	}
	return tag, nil
}

func (c *Client) readResponse() (*wire.Response, error) {
	ba, err := c.reader.ReadResponse(nil)
	if err != nil {
		if c.stream.Closed() {
			return nil, mailwire.ErrConnClosed
		}
		return nil, err
	}
	resp := wire.ParseResponse(ba, c.options.UTF8)
	if len(resp.Bytes()) == 0 || (resp.IsTagged() && resp.Tag() == "") {
		return nil, &mailwire.Error{Kind: mailwire.KindSyntax, Text: fmt.Sprintf("invalid response %q", resp.String())}
	}
	return resp, nil
}

// Command sends a command and reads responses until the tagged completion
// response.
//
// A BYE response is moved to the end of the returned list. If the connection
// fails, the list ends with a synthetic BYE response. The list is never
// empty.
func (c *Client) Command(name string, args ...Arg) []*wire.Response {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.command(name, args...)
}

func (c *Client) command(name string, args ...Arg) []*wire.Response {
	start := time.Now()

	tag, err := c.writeCommand(name, args...)
	if err != nil {
		var resp *wire.Response
		if mailwire.IsKind(err, mailwire.KindTransport) {
			resp = wire.ByeResponse(err)
		} else {
			resp = wire.NewResponse(tag+" BAD "+err.Error(), true)
		}
		c.observe(name, resp, start)
		return []*wire.Response{resp}
	}

	var (
		resps []*wire.Response
		bye   *wire.Response
	)
	for {
		resp, err := c.readResponse()
		if err != nil {
			if !mailwire.IsKind(err, mailwire.KindSyntax) {
				if bye == nil {
					bye = wire.ByeResponse(err)
				}
				break
			}
			c.logger.Debug("ignoring bad response", "error", err)
			continue
		}

		if resp.IsBYE() {
			bye = resp
			continue
		}

		resps = append(resps, resp)
		if resp.IsTagged() && resp.Tag() == tag {
			break
		}
	}
	if bye != nil {
		resps = append(resps, bye)
	}

	c.notify(resps)
	c.observe(name, resps[len(resps)-1], start)
	return resps
}

func (c *Client) notify(resps []*wire.Response) {
	for _, h := range c.handlers {
		for _, resp := range resps {
			h(resp)
			resp.Reset()
		}
	}
}

func (c *Client) observe(name string, resp *wire.Response, start time.Time) {
	status := string(resp.Status())
	if resp.IsSynthetic() {
		status = "error"
	}
	metrics.ObserveCommand(protocolName, name, status, start)
}

// HandleResult converts the final response of a command into an error. A BYE
// response closes the connection.
func (c *Client) HandleResult(resp *wire.Response) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.handleResult(resp)
}

func (c *Client) handleResult(resp *wire.Response) error {
	resp.Reset()
	switch {
	case resp.IsOK():
		return nil
	case resp.IsNO():
		return &mailwire.Error{Kind: mailwire.KindRejected, Status: mailwire.StatusNO, Text: resp.Rest()}
	case resp.IsBAD():
		return &mailwire.Error{Kind: mailwire.KindRejected, Status: mailwire.StatusBAD, Text: resp.Rest()}
	case resp.IsBYE():
		c.close()
		if resp.IsSynthetic() {
			return resp.Err()
		}
		return &mailwire.Error{Kind: mailwire.KindTransport, Status: mailwire.StatusBYE, Text: resp.Rest()}
	default:
		return &mailwire.Error{Kind: mailwire.KindSyntax, Text: fmt.Sprintf("unexpected response %q", resp.String())}
	}
}

// SimpleCommand sends a command and checks its result.
func (c *Client) SimpleCommand(name string, args ...Arg) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.simpleCommand(name, args...)
}

func (c *Client) simpleCommand(name string, args ...Arg) error {
	resps := c.command(name, args...)
	return c.handleResult(resps[len(resps)-1])
}

// Noop sends a NOOP command.
func (c *Client) Noop() error {
	return c.SimpleCommand("NOOP")
}

// Login sends a LOGIN command.
func (c *Client) Login(username, password string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}
	if c.caps.Has(mailwire.CapLoginDisabled) {
		return &mailwire.Error{Kind: mailwire.KindAuth, Text: "LOGIN disabled by server"}
	}

	c.suspendTrace()
	resps := c.command("LOGIN", AString(username), AString(password))
	c.stream.ResumeTrace()

	last := resps[len(resps)-1]
	err := c.handleResult(last)
	metrics.AuthAttempts.WithLabelValues(protocolName, "LOGIN", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}
	c.authenticated(last)
	return nil
}

func (c *Client) suspendTrace() {
	if !c.options.TraceAuth && c.stream.Tracing() {
		c.logger.Debug("authentication command trace suppressed")
		c.stream.SuspendTrace()
	}
}

func (c *Client) authenticated(resp *wire.Response) {
	c.state = mailwire.ConnStateAuthenticated
	resp.Reset()
	c.caps = parseCapabilityCode(resp)
	resp.Reset()
}

// Logout sends a LOGOUT command and closes the connection.
func (c *Client) Logout() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	defer c.close()

	resps := c.command("LOGOUT")
	for _, resp := range resps {
		if resp.IsTagged() {
			return c.handleResult(resp)
		}
	}
	if last := resps[len(resps)-1]; last.IsSynthetic() {
		return last.Err()
	}
	return nil
}
