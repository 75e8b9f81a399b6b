package mailwire

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies errors produced by the protocol engine.
type ErrorKind int

const (
	// KindTransport is an I/O failure or premature end of stream. It is
	// always fatal to the connection.
	KindTransport ErrorKind = 1 + iota
	// KindSyntax is a response that could not be tokenized as expected.
	KindSyntax
	// KindRejected is a well-formed NO, BAD, BYE or -ERR status.
	KindRejected
	// KindAuth is any failure during an authentication exchange. The
	// connection is closed when it is returned.
	KindAuth
	// KindUpgrade is a STARTTLS or compression negotiation failure.
	KindUpgrade
)

func (kind ErrorKind) String() string {
	switch kind {
	case KindTransport:
		return "transport"
	case KindSyntax:
		return "syntax"
	case KindRejected:
		return "rejected"
	case KindAuth:
		return "authentication"
	case KindUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Status is a status condition reported by a server.
type Status string

const (
	StatusNone Status = ""
	StatusOK   Status = "OK"
	StatusNO   Status = "NO"
	StatusBAD  Status = "BAD"
	StatusBYE  Status = "BYE"
)

// Error is an error returned by the protocol engine.
type Error struct {
	Kind ErrorKind
	// Status is the server status condition the error was built from, if
	// any.
	Status Status
	// Text is the human-readable text sent by the server, or a description
	// of the local failure.
	Text string
	// Err is the underlying error, if any.
	Err error
}

var _ error = (*Error)(nil)

// Error implements the error interface.
func (err *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mailwire: %v", err.Kind)
	if err.Status != StatusNone {
		fmt.Fprintf(&sb, " %v", err.Status)
	}
	if err.Text != "" {
		fmt.Fprintf(&sb, ": %v", err.Text)
	}
	if err.Err != nil {
		fmt.Fprintf(&sb, ": %v", err.Err)
	}
	return sb.String()
}

func (err *Error) Unwrap() error {
	return err.Err
}

// Is matches sentinel errors of the same kind and text.
func (err *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == err.Kind && other.Text == err.Text && other.Status == err.Status && other.Err == nil
}

var (
	// ErrNoCommonMechanism is returned when no configured authentication
	// mechanism is supported by the server.
	ErrNoCommonMechanism = &Error{Kind: KindAuth, Text: "no common authentication mechanism"}
	// ErrConnClosed is returned when a command is issued on a closed
	// connection.
	ErrConnClosed = &Error{Kind: KindTransport, Text: "connection closed"}
	// ErrTLSRequired is returned when TLS is required but the server does
	// not support STARTTLS.
	ErrTLSRequired = &Error{Kind: KindUpgrade, Text: "TLS required but not supported by server"}
	// ErrBadState is returned when an operation is not valid in the current
	// connection state.
	ErrBadState = &Error{Kind: KindUpgrade, Text: "operation not allowed in current connection state"}
)

// IsKind reports whether any error in err's chain is an *Error of the
// provided kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// TransportError wraps an I/O failure.
func TransportError(text string, err error) *Error {
	return &Error{Kind: KindTransport, Text: text, Err: err}
}

// AuthError builds an authentication failure. An empty text is replaced with
// a generic message.
func AuthError(text string, err error) *Error {
	if text == "" {
		text = "authentication failed"
	}
	return &Error{Kind: KindAuth, Text: text, Err: err}
}
