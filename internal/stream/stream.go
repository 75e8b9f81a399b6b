// Package stream provides the duplex byte stream the protocol clients talk
// over. The stream can be upgraded in place to TLS or DEFLATE compression.
package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/emersion/go-mailwire"
)

// Options contains options for Stream.
type Options struct {
	// Raw ingress and egress data will be written to this writer, if any.
	// Data is traced after decryption and decompression.
	DebugWriter io.Writer
}

// Stream is a buffered connection to a server.
//
// A Stream isn't safe for concurrent use, except for Close.
type Stream struct {
	conn    net.Conn // raw transport
	top     net.Conn // conn, or the TLS or DEFLATE layer above it
	options Options
	br      *bufio.Reader
	bw      *bufio.Writer

	tls        bool
	compressed bool
	suspended  atomic.Bool
	closed     atomic.Bool
}

// New wraps a connection. If conn is a *tls.Conn, the stream is considered
// secure.
func New(conn net.Conn, options *Options) *Stream {
	if options == nil {
		options = &Options{}
	}
	s := &Stream{
		conn:    conn,
		top:     conn,
		options: *options,
	}
	_, s.tls = conn.(*tls.Conn)
	s.reset()
	return s
}

func (s *Stream) reset() {
	rw := s.wrapReadWriter(s.top)
	s.br = bufio.NewReader(rw)
	s.bw = bufio.NewWriter(rw)
}

func (s *Stream) wrapReadWriter(rw io.ReadWriter) io.ReadWriter {
	if s.options.DebugWriter == nil {
		return rw
	}
	tw := &traceWriter{w: s.options.DebugWriter, suspended: &s.suspended}
	return struct {
		io.Reader
		io.Writer
	}{
		Reader: io.TeeReader(rw, tw),
		Writer: io.MultiWriter(rw, tw),
	}
}

type traceWriter struct {
	w         io.Writer
	suspended *atomic.Bool
}

func (tw *traceWriter) Write(b []byte) (int, error) {
	if tw.suspended.Load() {
		return len(b), nil
	}
	// Tracing never breaks the connection
	tw.w.Write(b)
	return len(b), nil
}

// SuspendTrace stops writing traffic to the debug writer, e.g. while
// credentials are exchanged.
func (s *Stream) SuspendTrace() {
	s.suspended.Store(true)
}

// ResumeTrace undoes SuspendTrace.
func (s *Stream) ResumeTrace() {
	s.suspended.Store(false)
}

// Tracing returns whether traffic is currently written to the debug writer.
func (s *Stream) Tracing() bool {
	return s.options.DebugWriter != nil && !s.suspended.Load()
}

func (s *Stream) Read(b []byte) (int, error) {
	return s.br.Read(b)
}

func (s *Stream) ReadByte() (byte, error) {
	return s.br.ReadByte()
}

// ReadLine reads a CRLF or LF terminated line. The line terminator is not
// included.
func (s *Stream) ReadLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil {
		if s.closed.Load() {
			return "", mailwire.ErrConnClosed
		}
		if err == io.EOF {
			return "", mailwire.TransportError("connection dropped by server", io.ErrUnexpectedEOF)
		}
		return "", mailwire.TransportError("read failed", err)
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// Buffered returns the number of bytes read from the connection but not
// consumed yet.
func (s *Stream) Buffered() int {
	return s.br.Buffered()
}

func (s *Stream) Write(b []byte) (int, error) {
	return s.bw.Write(b)
}

func (s *Stream) WriteString(str string) (int, error) {
	return s.bw.WriteString(str)
}

// Flush writes any buffered data to the connection.
func (s *Stream) Flush() error {
	if err := s.bw.Flush(); err != nil {
		return mailwire.TransportError("write failed", err)
	}
	if f, ok := s.top.(flusher); ok {
		if err := f.Flush(); err != nil {
			return mailwire.TransportError("write failed", err)
		}
	}
	return nil
}

// SetDeadline sets the read and write deadline of the underlying connection.
func (s *Stream) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

// IsTLS returns whether the stream is encrypted.
func (s *Stream) IsTLS() bool {
	return s.tls
}

// IsCompressed returns whether DEFLATE compression is active.
func (s *Stream) IsCompressed() bool {
	return s.compressed
}

// TLSConnectionState returns the TLS state, if the stream is encrypted.
func (s *Stream) TLSConnectionState() (tls.ConnectionState, bool) {
	var tc *tls.Conn
	switch c := s.top.(type) {
	case *tls.Conn:
		tc = c
	case *deflateConn:
		tc, _ = c.Conn.(*tls.Conn)
	}
	if tc == nil {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

func (s *Stream) checkUpgrade(what string) error {
	if s.br.Buffered() > 0 {
		return &mailwire.Error{
			Kind: mailwire.KindUpgrade,
			Text: fmt.Sprintf("%v: %v bytes of plaintext buffered before negotiation", what, s.br.Buffered()),
		}
	}
	return nil
}

// StartTLS performs a TLS handshake over the stream and switches to the
// encrypted connection. Any data received before the handshake and not
// consumed yet makes the upgrade fail.
func (s *Stream) StartTLS(ctx context.Context, config *tls.Config) error {
	if s.tls {
		return nil
	}
	if s.compressed {
		return &mailwire.Error{Kind: mailwire.KindUpgrade, Text: "cannot start TLS over a compressed stream"}
	}
	if err := s.checkUpgrade("STARTTLS"); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	tlsConn := tls.Client(s.top, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return &mailwire.Error{Kind: mailwire.KindUpgrade, Text: "TLS handshake failed", Err: err}
	}

	s.top = tlsConn
	s.tls = true
	s.reset()
	return nil
}

// Compress enables DEFLATE compression in both directions.
func (s *Stream) Compress(level int) error {
	if s.compressed {
		return nil
	}
	if err := s.checkUpgrade("COMPRESS"); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}

	dc, err := newDeflateConn(s.top, level)
	if err != nil {
		return &mailwire.Error{Kind: mailwire.KindUpgrade, Text: "failed to start compression", Err: err}
	}

	s.top = dc
	s.compressed = true
	s.reset()
	return nil
}

// Close closes the transport under any TLS or DEFLATE layer. Blocked reads
// and writes return an error. Close may be called concurrently with other
// methods.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// Closed returns whether Close has been called.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}
