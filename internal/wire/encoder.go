package wire

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/emersion/go-mailwire"
)

// maxQuotedSize is the largest string sent as a quoted string.
const maxQuotedSize = 4096

// An Encoder writes commands.
//
// Most methods don't return an error, instead they defer error handling until
// CRLF is called. These methods return the Encoder so that calls can be
// chained.
type Encoder struct {
	// QuotedUTF8 allows non-ASCII strings to be encoded as quoted strings.
	QuotedUTF8 bool

	w   Writer
	buf strings.Builder
	err error
}

// Writer is the destination of an Encoder. Flush must push the data all the
// way to the peer, through any compression layer.
type Writer interface {
	WriteString(s string) (int, error)
	Flush() error
}

// NewEncoder creates a new encoder.
func NewEncoder(w Writer) *Encoder {
	return &Encoder{w: w}
}

func syntaxError(text string) error {
	return &mailwire.Error{Kind: mailwire.KindSyntax, Text: text}
}

func (enc *Encoder) setErr(err error) {
	if enc.err == nil {
		enc.err = err
	}
}

func (enc *Encoder) writeString(s string) *Encoder {
	if enc.err == nil {
		enc.buf.WriteString(s)
	}
	return enc
}

// CRLF terminates the line and flushes it to the writer. The first
// error encountered since the previous CRLF is returned, in which case
// nothing is written.
func (enc *Encoder) CRLF() error {
	enc.writeString("\r\n")
	line := enc.buf.String()
	enc.buf.Reset()
	err := enc.err
	enc.err = nil
	if err != nil {
		return err
	}
	if _, err := enc.w.WriteString(line); err != nil {
		return err
	}
	return enc.w.Flush()
}

func (enc *Encoder) Atom(s string) *Encoder {
	if s == "" {
		enc.setErr(syntaxError("cannot encode empty atom"))
		return enc
	}
	for i := 0; i < len(s); i++ {
		if !IsAtomChar(s[i]) {
			enc.setErr(syntaxError(fmt.Sprintf("invalid atom %q", s)))
			return enc
		}
	}
	return enc.writeString(s)
}

func (enc *Encoder) SP() *Encoder {
	return enc.writeString(" ")
}

func (enc *Encoder) Special(ch byte) *Encoder {
	return enc.writeString(string(ch))
}

// Text writes s verbatim. CR and LF are rejected.
func (enc *Encoder) Text(s string) *Encoder {
	if strings.ContainsAny(s, "\r\n") {
		enc.setErr(syntaxError("line break in command text"))
		return enc
	}
	return enc.writeString(s)
}

func (enc *Encoder) Quoted(s string) *Encoder {
	if !enc.validQuoted(s) {
		enc.setErr(syntaxError(fmt.Sprintf("cannot encode %v bytes as a quoted string", len(s))))
		return enc
	}
	var sb strings.Builder
	sb.Grow(2 + len(s))
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' || ch == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(ch)
	}
	sb.WriteByte('"')
	return enc.writeString(sb.String())
}

// AString writes s as an atom if possible, as a quoted string otherwise.
func (enc *Encoder) AString(s string) *Encoder {
	if s != "" && isAStringAtom(s) {
		return enc.writeString(s)
	}
	return enc.Quoted(s)
}

func (enc *Encoder) validQuoted(s string) bool {
	if len(s) > maxQuotedSize {
		return false
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]

		// NUL, CR and LF are never valid
		switch ch {
		case 0, '\r', '\n':
			return false
		}

		if !enc.QuotedUTF8 && ch > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func (enc *Encoder) Number(v uint32) *Encoder {
	return enc.writeString(strconv.FormatUint(uint64(v), 10))
}

// IsAtomChar reports whether ch may appear in an atom.
func IsAtomChar(ch byte) bool {
	if ch <= 0x1f || ch >= 0x7f {
		return false
	}
	return strings.IndexByte(atomDelims, ch) < 0 && ch != '%' && ch != '*'
}

func isAStringAtom(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != ']' && !IsAtomChar(ch) {
			return false
		}
	}
	return true
}
