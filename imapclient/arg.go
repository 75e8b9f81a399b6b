package imapclient

import (
	"github.com/emersion/go-mailwire/internal/wire"
)

// Arg is a command argument.
type Arg interface {
	encode(enc *wire.Encoder)
}

// Atom is an argument sent verbatim. It must only contain atom characters.
type Atom string

func (a Atom) encode(enc *wire.Encoder) { enc.Atom(string(a)) }

// Quoted is an argument sent as a quoted string.
type Quoted string

func (q Quoted) encode(enc *wire.Encoder) { enc.Quoted(string(q)) }

// AString is an argument sent as an atom when possible, as a quoted string
// otherwise.
type AString string

func (s AString) encode(enc *wire.Encoder) { enc.AString(string(s)) }

// Number is a numeric argument.
type Number uint32

func (n Number) encode(enc *wire.Encoder) { enc.Number(uint32(n)) }

// RawSASL is a SASL response, sent base64-encoded.
type RawSASL []byte

func (b RawSASL) encode(enc *wire.Encoder) { enc.Text(wire.EncodeSASL(b)) }
