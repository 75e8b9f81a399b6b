// Package wire implements the byte-level layer shared by the mail retrieval
// dialects: a literal-aware response reader, a response tokenizer and a
// command encoder.
//
// A literal is a length-prefixed block embedded in a line with the "{N}"
// syntax, see RFC 9051 section 4.3.
package wire

import (
	"fmt"
)

// Type describes the kind and status of a response. The kind occupies the
// two lowest bits, the status the next three.
type Type int

const (
	KindMask     Type = 0x03
	Continuation Type = 0x01
	Tagged       Type = 0x02
	Untagged     Type = 0x03

	StatusMask Type = 0x1c
	OK         Type = 0x04
	NO         Type = 0x08
	BAD        Type = 0x0c
	BYE        Type = 0x10

	// Synthetic marks a response built locally to represent an I/O
	// failure.
	Synthetic Type = 0x20
)

func (t Type) String() string {
	var kind, status string
	switch t & KindMask {
	case Continuation:
		kind = "continuation"
	case Tagged:
		kind = "tagged"
	case Untagged:
		kind = "untagged"
	default:
		kind = "none"
	}
	switch t & StatusMask {
	case OK:
		status = "OK"
	case NO:
		status = "NO"
	case BAD:
		status = "BAD"
	case BYE:
		status = "BYE"
	default:
		status = "none"
	}
	if t&Synthetic != 0 {
		return fmt.Sprintf("%v/%v (synthetic)", kind, status)
	}
	return fmt.Sprintf("%v/%v", kind, status)
}
