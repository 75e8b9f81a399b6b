package wire

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/emersion/go-mailwire"
)

const (
	atomDelims    = " (){%*\"\\]"
	astringDelims = " (){%*\"\\"
)

// Response is a parsed server response.
//
// The response kind, status and tag are determined when the response is
// built. The remaining data is read with a cursor using the Read* methods.
type Response struct {
	buf    []byte
	size   int
	index  int
	pindex int

	typ  Type
	tag  string
	err  error
	utf8 bool
}

// ParseResponse parses a response read by a Reader. The ByteArray is emptied:
// the response owns its bytes from now on.
//
// If utf8 is set, strings are decoded as UTF-8, otherwise each byte maps to
// the rune of equal value.
func ParseResponse(ba *ByteArray, utf8 bool) *Response {
	buf := ba.detach()
	size := len(buf)
	if size >= 2 && buf[size-2] == '\r' && buf[size-1] == '\n' {
		size -= 2
	}
	r := &Response{buf: buf, size: size, utf8: utf8}
	r.parse()
	return r
}

// NewResponse parses a response from a string without its CRLF.
func NewResponse(s string, utf8 bool) *Response {
	r := &Response{buf: []byte(s), size: len(s), utf8: utf8}
	r.parse()
	return r
}

// ByeResponse builds a synthetic BYE response standing for a local failure.
func ByeResponse(err error) *Response {
	if err == nil {
		err = mailwire.ErrConnClosed
	}
	text := "* BYE " + err.Error()
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	r := NewResponse(text, true)
	r.typ |= Synthetic
	r.err = err
	return r
}

func (r *Response) parse() {
	r.index = 0
	if r.size == 0 {
		return
	}

	switch r.buf[0] {
	case '+':
		r.typ |= Continuation
		r.index++
		r.pindex = r.index
		return
	case '*':
		r.typ |= Untagged
		r.index++
	default:
		r.typ |= Tagged
		r.tag, _ = r.ReadAtom()
	}

	mark := r.index
	s, _ := r.ReadAtom()
	switch strings.ToUpper(s) {
	case "OK":
		r.typ |= OK
	case "NO":
		r.typ |= NO
	case "BAD":
		r.typ |= BAD
	case "BYE":
		r.typ |= BYE
	default:
		// Not a status condition, it's the start of the response text
		r.index = mark
	}
	r.pindex = r.index
}

// Type returns the kind and status bits.
func (r *Response) Type() Type {
	return r.typ
}

// Kind returns the kind bits: Continuation, Tagged or Untagged.
func (r *Response) Kind() Type {
	return r.typ & KindMask
}

func (r *Response) IsContinuation() bool { return r.typ&KindMask == Continuation }
func (r *Response) IsTagged() bool       { return r.typ&KindMask == Tagged }
func (r *Response) IsUntagged() bool     { return r.typ&KindMask == Untagged }
func (r *Response) IsOK() bool           { return r.typ&StatusMask == OK }
func (r *Response) IsNO() bool           { return r.typ&StatusMask == NO }
func (r *Response) IsBAD() bool          { return r.typ&StatusMask == BAD }
func (r *Response) IsBYE() bool          { return r.typ&StatusMask == BYE }
func (r *Response) IsSynthetic() bool    { return r.typ&Synthetic != 0 }

// Status returns the status condition as a mailwire.Status.
func (r *Response) Status() mailwire.Status {
	switch r.typ & StatusMask {
	case OK:
		return mailwire.StatusOK
	case NO:
		return mailwire.StatusNO
	case BAD:
		return mailwire.StatusBAD
	case BYE:
		return mailwire.StatusBYE
	default:
		return mailwire.StatusNone
	}
}

// Tag returns the tag of a tagged response.
func (r *Response) Tag() string {
	return r.tag
}

// Err returns the local error a synthetic response was built from.
func (r *Response) Err() error {
	return r.err
}

// UTF8 returns whether strings are decoded as UTF-8.
func (r *Response) UTF8() bool {
	return r.utf8
}

// Reset rewinds the cursor to the position right after the status.
func (r *Response) Reset() {
	r.index = r.pindex
}

// SkipSpaces advances the cursor past spaces.
func (r *Response) SkipSpaces() {
	for r.index < r.size && r.buf[r.index] == ' ' {
		r.index++
	}
}

// IsNextNonSpace skips spaces and consumes the next byte if it is c.
func (r *Response) IsNextNonSpace(c byte) bool {
	r.SkipSpaces()
	if r.index < r.size && r.buf[r.index] == c {
		r.index++
		return true
	}
	return false
}

// SkipToken advances the cursor to the next space.
func (r *Response) SkipToken() {
	for r.index < r.size && r.buf[r.index] != ' ' {
		r.index++
	}
}

// Skip advances the cursor by n bytes.
func (r *Response) Skip(n int) {
	r.index = min(r.index+n, r.size)
}

// PeekByte returns the byte under the cursor, or zero at the end.
func (r *Response) PeekByte() byte {
	if r.index < r.size {
		return r.buf[r.index]
	}
	return 0
}

// NextByte returns the byte under the cursor and advances it. Zero is
// returned at the end.
func (r *Response) NextByte() byte {
	if r.index < r.size {
		b := r.buf[r.index]
		r.index++
		return b
	}
	return 0
}

// ReadAtom reads an atom. False is returned at the end of the response.
func (r *Response) ReadAtom() (string, bool) {
	start, end, ok := r.readDelim(atomDelims)
	if !ok {
		return "", false
	}
	return r.decode(start, end), true
}

func (r *Response) readDelim(delims string) (start, end int, ok bool) {
	r.SkipSpaces()
	if r.index >= r.size {
		return 0, 0, false
	}
	start = r.index
	for r.index < r.size {
		b := r.buf[r.index]
		if b < 0x20 || b == 0x7f || strings.IndexByte(delims, b) >= 0 {
			break
		}
		r.index++
	}
	return start, r.index, true
}

// ReadDelimString reads everything up to delim, or to the end of the response.
func (r *Response) ReadDelimString(delim byte) (string, bool) {
	r.SkipSpaces()
	if r.index >= r.size {
		return "", false
	}
	start := r.index
	for r.index < r.size && r.buf[r.index] != delim {
		r.index++
	}
	return r.decode(start, r.index), true
}

// ReadString reads a quoted string or a literal. False is returned for NIL or
// if no string could be read.
func (r *Response) ReadString() (string, bool) {
	b, ok := r.parseString(false)
	if !ok {
		return "", false
	}
	return r.decodeBytes(b), true
}

// ReadAtomString reads an atom, a quoted string or a literal.
func (r *Response) ReadAtomString() (string, bool) {
	b, ok := r.parseString(true)
	if !ok {
		return "", false
	}
	return r.decodeBytes(b), true
}

// ReadBytes reads a string as raw bytes. For a continuation response,
// the rest of the line is returned.
//
// The returned slice shares the response buffer.
func (r *Response) ReadBytes() ([]byte, bool) {
	if r.IsContinuation() {
		r.SkipSpaces()
		b := r.buf[r.index:r.size]
		r.index = r.size
		return b, true
	}
	return r.parseString(false)
}

func (r *Response) parseString(atom bool) ([]byte, bool) {
	r.SkipSpaces()
	if r.index >= r.size {
		return nil, false
	}

	switch b := r.buf[r.index]; {
	case b == '"':
		r.index++
		start := r.index
		copyTo := r.index
		for r.index < r.size && r.buf[r.index] != '"' {
			if r.buf[r.index] == '\\' {
				r.index++
				if r.index >= r.size {
					break
				}
			}
			// Unescape in place
			if r.index != copyTo {
				r.buf[copyTo] = r.buf[r.index]
			}
			copyTo++
			r.index++
		}
		if r.index >= r.size {
			return nil, false
		}
		r.index++ // closing quote
		return r.buf[start:copyTo], true
	case b == '{':
		r.index++
		start := r.index
		for r.index < r.size && r.buf[r.index] != '}' {
			r.index++
		}
		if r.index >= r.size {
			return nil, false
		}
		count, ok := parseDigits(r.buf[start:r.index])
		if !ok {
			return nil, false
		}
		start = r.index + 3 // "}\r\n"
		if start+count > r.size {
			r.index = r.size
			return nil, false
		}
		r.index = start + count
		return r.buf[start:r.index], true
	case atom:
		start, end, _ := r.readDelim(astringDelims)
		return r.buf[start:end], true
	case b == 'N' || b == 'n':
		r.Skip(3) // NIL
		return nil, false
	default:
		return nil, false
	}
}

// ReadNumber reads an unsigned number. -1 is returned if there are no
// digits or the value overflows.
func (r *Response) ReadNumber() int {
	v := r.ReadLong()
	if v > 1<<31-1 {
		return -1
	}
	return int(v)
}

// ReadLong reads an unsigned 64-bit number. -1 is returned if there are no
// digits or the value overflows.
func (r *Response) ReadLong() int64 {
	r.SkipSpaces()
	start := r.index
	for r.index < r.size && r.buf[r.index] >= '0' && r.buf[r.index] <= '9' {
		r.index++
	}
	if r.index == start {
		return -1
	}
	var v int64
	for _, ch := range r.buf[start:r.index] {
		d := int64(ch - '0')
		if v > (1<<63-1-d)/10 {
			return -1
		}
		v = v*10 + d
	}
	return v
}

// ReadStringList reads a parenthesized list of strings. Nil is returned if
// the cursor isn't on a list. Reading stops at the first element which isn't
// a string.
func (r *Response) ReadStringList() []string {
	return r.readStringList(false)
}

// ReadAtomStringList reads a parenthesized list of atoms or strings.
func (r *Response) ReadAtomStringList() []string {
	return r.readStringList(true)
}

func (r *Response) readStringList(atom bool) []string {
	r.SkipSpaces()
	if r.index >= r.size || r.buf[r.index] != '(' {
		return nil
	}
	r.index++

	l := []string{}
	for !r.IsNextNonSpace(')') {
		mark := r.index
		var (
			s  string
			ok bool
		)
		if atom {
			s, ok = r.ReadAtomString()
		} else {
			s, ok = r.ReadString()
		}
		if !ok || r.index == mark {
			break
		}
		l = append(l, s)
	}
	return l
}

// Rest returns the remainder of the response, skipping leading spaces.
func (r *Response) Rest() string {
	r.SkipSpaces()
	return r.decode(r.index, r.size)
}

// Bytes returns the raw response without the final CRLF.
func (r *Response) Bytes() []byte {
	return r.buf[:r.size]
}

// String returns the whole response as text.
func (r *Response) String() string {
	return r.decode(0, r.size)
}

func (r *Response) decode(start, end int) string {
	return r.decodeBytes(r.buf[start:end])
}

func (r *Response) decodeBytes(b []byte) string {
	if r.utf8 {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
