// Package ntlm implements the client side of the NTLM authentication
// handshake: type-1 negotiation and type-3 authentication messages, with
// classic LM/NT and NTLMv2 responses.
//
// This package performs no I/O. Messages are raw bytes, base64 framing is
// left to the caller.
package ntlm

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Negotiation flags.
const (
	NegotiateUnicode                 = 0x00000001
	NegotiateOEM                     = 0x00000002
	RequestTarget                    = 0x00000004
	NegotiateNTLM                    = 0x00000200
	NegotiateOEMDomainSupplied       = 0x00001000
	NegotiateOEMWorkstationSupplied  = 0x00002000
	NegotiateAlwaysSign              = 0x00008000
	NegotiateExtendedSessionSecurity = 0x00080000
	NegotiateTargetInfo              = 0x00800000
)

const (
	// DefaultType1Flags are always set in a type-1 message.
	DefaultType1Flags = NegotiateUnicode | NegotiateOEM | NegotiateNTLM | NegotiateAlwaysSign
	// DefaultType3Flags are always set in a type-3 message.
	DefaultType3Flags = NegotiateUnicode | NegotiateNTLM | NegotiateAlwaysSign
)

const (
	type1HeaderSize = 32
	type2MinSize    = 32
	type3HeaderSize = 64

	// windowsEpochDelta is the number of milliseconds between 1601-01-01
	// and 1970-01-01.
	windowsEpochDelta = 11644473600000
)

var signature = []byte("NTLMSSP\x00")

var (
	errShortType2    = errors.New("ntlm: type-2 message too short")
	errBadSignature  = errors.New("ntlm: invalid type-2 message signature")
	errBadTargetInfo = errors.New("ntlm: type-2 target info out of bounds")
)

// Option configures a Session.
type Option func(*Session)

// WithRand sets the source of client nonces. It defaults to crypto/rand.
func WithRand(r io.Reader) Option {
	return func(s *Session) {
		s.rand = r
	}
}

// WithClock sets the clock used for NTLMv2 timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session holds the identity used for one NTLM handshake.
type Session struct {
	domain   string
	host     string
	user     string
	password string

	rand io.Reader
	now  func() time.Time
}

// NewSession creates a session. The host is truncated at its first dot. A
// username of the form "DOMAIN\user" overrides the domain.
func NewSession(domain, host, user, password string, opts ...Option) *Session {
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(user, '\\'); i >= 0 {
		domain = strings.ToUpper(user[:i])
		user = user[i+1:]
	}
	s := &Session{
		domain:   domain,
		host:     host,
		user:     user,
		password: password,
		rand:     rand.Reader,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Domain returns the effective domain.
func (s *Session) Domain() string {
	return s.domain
}

// Host returns the effective workstation name.
func (s *Session) Host() string {
	return s.host
}

// User returns the effective username.
func (s *Session) User() string {
	return s.user
}

// Type1 builds a negotiation message. The extra flags are added to
// DefaultType1Flags. If v2 is set, extended session security is requested.
func (s *Session) Type1(flags uint32, v2 bool) []byte {
	flags |= DefaultType1Flags
	host := latin1(s.host)
	domain := latin1(s.domain)
	if len(domain) > 0 {
		flags |= NegotiateOEMDomainSupplied
	}
	if len(host) > 0 {
		flags |= NegotiateOEMWorkstationSupplied
	}
	if v2 {
		flags |= NegotiateExtendedSessionSecurity
	}

	msg := make([]byte, type1HeaderSize+len(host)+len(domain))
	copy(msg, signature)
	binary.LittleEndian.PutUint32(msg[8:], 1)
	binary.LittleEndian.PutUint32(msg[12:], flags)
	putField(msg[16:], len(domain), type1HeaderSize+len(host))
	putField(msg[24:], len(host), type1HeaderSize)
	copy(msg[type1HeaderSize:], host)
	copy(msg[type1HeaderSize+len(host):], domain)
	return msg
}

// Type3 builds an authentication message answering a type-2 challenge
// message. NTLMv2 responses are computed if the server negotiated extended
// session security.
func (s *Session) Type3(type2 []byte) ([]byte, error) {
	if len(type2) < type2MinSize {
		return nil, errShortType2
	}
	if string(type2[:len(signature)]) != string(signature) {
		return nil, errBadSignature
	}

	var challenge [8]byte
	copy(challenge[:], type2[24:32])
	serverFlags := binary.LittleEndian.Uint32(type2[20:])

	flags := uint32(DefaultType3Flags)
	var lmResp, ntResp []byte
	if serverFlags&NegotiateExtendedSessionSecurity != 0 {
		flags |= NegotiateExtendedSessionSecurity

		var targetInfo []byte
		if serverFlags&NegotiateTargetInfo != 0 {
			if len(type2) < 48 {
				return nil, errBadTargetInfo
			}
			tlen := int(binary.LittleEndian.Uint16(type2[40:]))
			toff := int(binary.LittleEndian.Uint32(type2[44:]))
			if toff > len(type2) || tlen > len(type2)-toff {
				return nil, errBadTargetInfo
			}
			targetInfo = type2[toff : toff+tlen]
		}

		var nonce [8]byte
		if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
			return nil, fmt.Errorf("ntlm: failed to generate client nonce: %w", err)
		}

		v2Hash := NTLMv2Hash(NTHash(s.password), s.user, s.domain)
		lmResp = NTLMv2Response(v2Hash, challenge[:], nonce[:])
		ntResp = NTLMv2Response(v2Hash, challenge[:], makeBlob(s.now(), nonce[:], targetInfo))
	} else {
		lmResp = LMResponse(LMHash(s.password), challenge[:])
		ntResp = NTResponse(NTHash(s.password), challenge[:])
	}

	domain := utf16le(s.domain)
	user := utf16le(s.user)
	host := utf16le(s.host)

	size := type3HeaderSize + len(domain) + len(user) + len(host) + len(lmResp) + len(ntResp)
	msg := make([]byte, size)
	copy(msg, signature)
	binary.LittleEndian.PutUint32(msg[8:], 3)

	off := type3HeaderSize
	for _, f := range []struct {
		pos  int
		data []byte
	}{
		{28, domain},
		{36, user},
		{44, host},
		{12, lmResp},
		{20, ntResp},
	} {
		putField(msg[f.pos:], len(f.data), off)
		off += copy(msg[off:], f.data)
	}

	binary.LittleEndian.PutUint16(msg[56:], uint16(size))
	binary.LittleEndian.PutUint32(msg[60:], flags)
	return msg, nil
}

// putField writes a security buffer: length, allocated length and offset.
func putField(b []byte, length, offset int) {
	binary.LittleEndian.PutUint16(b[0:], uint16(length))
	binary.LittleEndian.PutUint16(b[2:], uint16(length))
	binary.LittleEndian.PutUint32(b[4:], uint32(offset))
}

func makeBlob(now time.Time, nonce, targetInfo []byte) []byte {
	blob := make([]byte, 32+len(targetInfo))
	blob[0] = 1
	blob[1] = 1
	ts := (now.UnixMilli() + windowsEpochDelta) * 10000
	binary.LittleEndian.PutUint64(blob[8:], uint64(ts))
	copy(blob[16:], nonce)
	copy(blob[28:], targetInfo)
	return blob
}

func latin1(s string) []byte {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// Characters outside Latin-1 are replaced
		return []byte(strings.Map(func(r rune) rune {
			if r > 0xff {
				return '?'
			}
			return r
		}, s))
	}
	return b
}

func utf16le(s string) []byte {
	b, _ := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	return b
}
