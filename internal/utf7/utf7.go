// Package utf7 implements the modified UTF-7 encoding used for mailbox names,
// defined in RFC 3501 section 5.1.3.
package utf7

import (
	"encoding/base64"
	"errors"

	"golang.org/x/text/encoding"
)

const (
	min = 0x20 // Minimum self-representing UTF-7 value
	max = 0x7E // Maximum self-representing UTF-7 value

	repl = '\uFFFD' // Unicode replacement code point
)

var enc = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,").WithPadding(base64.NoPadding)

// ErrInvalidUTF7 means that a decoder encountered invalid modified UTF-7.
var ErrInvalidUTF7 = errors.New("utf7: invalid modified UTF-7")

// Encoding is the modified UTF-7 encoding.
var Encoding encoding.Encoding = utf7Encoding{}

type utf7Encoding struct{}

func (utf7Encoding) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: &decoder{ascii: true}}
}

func (utf7Encoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: &encoder{}}
}
