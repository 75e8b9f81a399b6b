// Package mailwire implements the wire layer of mail retrieval protocols.
//
// Two dialects share the same response reader and tokenizer: POP3 (RFC 1939),
// see the pop3client package, and a tagged IMAP-style dialect (RFC 9051
// section 2.2), see the imapclient package. Authentication mechanisms live in
// the auth package.
package mailwire

// ConnState describes the state of a connection.
type ConnState int

const (
	// ConnStateDisconnected is the state before the greeting has been read.
	ConnStateDisconnected ConnState = iota
	// ConnStateConnected is entered once the server greeting has been read
	// over a plaintext stream.
	ConnStateConnected
	// ConnStateSecured is entered after a successful STARTTLS upgrade, or
	// right after the greeting when the stream uses implicit TLS.
	ConnStateSecured
	// ConnStateAuthenticated is entered after successful authentication.
	ConnStateAuthenticated
	// ConnStateOpen is entered once a mailbox has been selected. POP3
	// connections are open as soon as they are authenticated.
	ConnStateOpen
	// ConnStateClosed is the terminal state.
	ConnStateClosed
)

func (state ConnState) String() string {
	switch state {
	case ConnStateDisconnected:
		return "disconnected"
	case ConnStateConnected:
		return "connected"
	case ConnStateSecured:
		return "secured"
	case ConnStateAuthenticated:
		return "authenticated"
	case ConnStateOpen:
		return "open"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanUpgrade returns true if STARTTLS or compression may be negotiated in
// this state.
func (state ConnState) CanUpgrade() bool {
	return state == ConnStateConnected || state == ConnStateSecured
}
