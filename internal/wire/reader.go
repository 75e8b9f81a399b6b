package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-mailwire"
)

const (
	initialSize   = 128
	minIncrement  = 256
	maxIncrement  = 256 * 1024
	incrementSlop = 16

	// DefaultMaxLiteralSize is the default upper bound for a single
	// literal.
	DefaultMaxLiteralSize = 1 << 30
)

// Source is the byte stream a Reader consumes. It is usually buffered.
type Source interface {
	io.Reader
	io.ByteReader
}

// Reader reads complete responses from a byte stream.
type Reader struct {
	// Literals enables detection of "{N}" literals at the end of a line.
	// POP3 leaves this disabled: its lines never carry literals.
	Literals bool
	// MaxLiteralSize bounds the size of a single literal. Zero means
	// DefaultMaxLiteralSize.
	MaxLiteralSize int

	src Source
}

// NewReader creates a literal-aware reader.
func NewReader(src Source) *Reader {
	return &Reader{src: src, Literals: true}
}

// Reset switches the reader to a new source. Nothing read from the previous
// source is kept.
func (r *Reader) Reset(src Source) {
	r.src = src
}

func droppedErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return mailwire.TransportError("connection dropped by server", io.ErrUnexpectedEOF)
	}
	return mailwire.TransportError("read failed", err)
}

// ReadResponse reads a full response unit: a CRLF-terminated line, including
// any literal announced at the end of a line and the rest of the line after
// it.
//
// If ba is nil, a new ByteArray is allocated. The returned ByteArray includes
// the final CRLF.
func (r *Reader) ReadResponse(ba *ByteArray) (*ByteArray, error) {
	if ba == nil {
		ba = NewByteArray(initialSize)
	}
	ba.Reset()

	for {
		if err := r.readLine(ba); err != nil {
			return nil, err
		}
		if !r.Literals {
			break
		}

		count, ok := literalLength(ba.Bytes())
		if !ok {
			break
		}

		limit := r.MaxLiteralSize
		if limit <= 0 {
			limit = DefaultMaxLiteralSize
		}
		if count > limit {
			return nil, mailwire.TransportError(fmt.Sprintf("literal of %v bytes exceeds limit", count), nil)
		}

		if count > 0 {
			avail := ba.Cap() - ba.Len()
			if count+incrementSlop > avail {
				ba.Grow(max(minIncrement, count+incrementSlop-avail))
			}
			if _, err := io.ReadFull(r.src, ba.buf[ba.n:ba.n+count]); err != nil {
				return nil, droppedErr(err)
			}
			ba.n += count
		}
	}

	return ba, nil
}

func (r *Reader) readLine(ba *ByteArray) error {
	for {
		b, err := r.src.ReadByte()
		if err != nil {
			return droppedErr(err)
		}

		if ba.n >= len(ba.buf) {
			inc := len(ba.buf)
			if inc > maxIncrement {
				inc = maxIncrement
			} else if inc == 0 {
				inc = minIncrement
			}
			ba.Grow(inc)
		}
		ba.append(b)

		if b == '\n' && ba.n > 1 && ba.buf[ba.n-2] == '\r' {
			return nil
		}
	}
}

// literalLength checks whether a line ends with "{N}\r\n" and returns N.
func literalLength(b []byte) (int, bool) {
	n := len(b)
	if n < 5 || b[n-3] != '}' {
		return 0, false
	}

	i := n - 4
	for i >= 0 && b[i] != '{' {
		i--
	}
	if i < 0 {
		return 0, false
	}

	return parseDigits(b[i+1 : n-3])
}

// parseDigits parses a non-empty run of decimal digits.
func parseDigits(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	v := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		v = v*10 + int(ch-'0')
		if v > 1<<31-1 {
			return 0, false
		}
	}
	return v, true
}

