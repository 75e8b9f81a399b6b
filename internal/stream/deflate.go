package stream

import (
	"io"
	"net"

	"github.com/klauspost/compress/flate"
)

// deflateConn compresses a connection with raw DEFLATE, as specified in
// RFC 4978.
type deflateConn struct {
	net.Conn

	r io.ReadCloser
	w *flate.Writer
}

func (c *deflateConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

func (c *deflateConn) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

type flusher interface {
	Flush() error
}

// Flush performs a sync flush so that the peer can decode everything written
// so far.
func (c *deflateConn) Flush() error {
	if err := c.w.Flush(); err != nil {
		return err
	}
	if f, ok := c.Conn.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// newDeflateConn wraps c with raw DEFLATE. A zero level selects the default
// compression level.
func newDeflateConn(c net.Conn, level int) (*deflateConn, error) {
	if level == 0 {
		level = flate.DefaultCompression
	}
	w, err := flate.NewWriter(c, level)
	if err != nil {
		return nil, err
	}
	return &deflateConn{
		Conn: c,
		r:    flate.NewReader(c),
		w:    w,
	}, nil
}
