package ntlm_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailwire/ntlm"
)

const testPassword = "SecREt01"

var testChallenge = mustHex("0123456789abcdef")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestHashes(t *testing.T) {
	lm := ntlm.LMHash(testPassword)
	assert.Len(t, lm, 21)
	assert.Equal(t, "ff3750bcc2b22412c2265b23734e0dac", hex.EncodeToString(lm[:16]))

	nt := ntlm.NTHash(testPassword)
	assert.Len(t, nt, 21)
	assert.Equal(t, "cd06ca7c7e10c99b1d33b7485a2ed808", hex.EncodeToString(nt[:16]))

	assert.Equal(t, "c337cd5cbd44fc9782a667af6d427c6de67c20c2d3e77c56",
		hex.EncodeToString(ntlm.LMResponse(lm, testChallenge)))
	assert.Equal(t, "25a98c1c31e81847466b29b2df4680f39958fb8c213a9cc6",
		hex.EncodeToString(ntlm.NTResponse(nt, testChallenge)))

	assert.Equal(t, "04b8e0ba74289cc540826bab1dee63ae",
		hex.EncodeToString(ntlm.NTLMv2Hash(nt, "user", "DOMAIN")))
}

func TestNewSession(t *testing.T) {
	s := ntlm.NewSession("ignored", "ws1.corp.example.org", `corp\alice`, "pw")
	assert.Equal(t, "CORP", s.Domain())
	assert.Equal(t, "ws1", s.Host())
	assert.Equal(t, "alice", s.User())
}

func TestType1(t *testing.T) {
	s := ntlm.NewSession("DOMAIN", "WORKSTATION.example.org", "user", testPassword)
	want := "4e544c4d53535000" + // signature
		"01000000" + // type
		"03b20000" + // flags
		"06000600" + "2b000000" + // domain
		"0b000b00" + "20000000" + // host
		hex.EncodeToString([]byte("WORKSTATION")) +
		hex.EncodeToString([]byte("DOMAIN"))
	assert.Equal(t, want, hex.EncodeToString(s.Type1(0, false)))

	msg := ntlm.NewSession("", "", "user", testPassword).Type1(ntlm.RequestTarget, true)
	assert.Len(t, msg, 32)
	flags := binary.LittleEndian.Uint32(msg[12:])
	assert.Equal(t, uint32(0x00088207), flags)
}

type field struct {
	data []byte
	off  int
}

func readField(msg []byte, pos int) field {
	n := int(binary.LittleEndian.Uint16(msg[pos:]))
	off := int(binary.LittleEndian.Uint32(msg[pos+4:]))
	return field{data: msg[off : off+n], off: off}
}

func utf16(s string) []byte {
	var b []byte
	for _, r := range s {
		b = append(b, byte(r), 0)
	}
	return b
}

func newType2(flags uint32, targetInfo []byte) []byte {
	msg := make([]byte, 48+len(targetInfo))
	copy(msg, "NTLMSSP\x00")
	binary.LittleEndian.PutUint32(msg[8:], 2)
	binary.LittleEndian.PutUint32(msg[20:], flags)
	copy(msg[24:], testChallenge)
	binary.LittleEndian.PutUint16(msg[40:], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint16(msg[42:], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint32(msg[44:], 48)
	copy(msg[48:], targetInfo)
	return msg
}

func TestType3_Classic(t *testing.T) {
	s := ntlm.NewSession("DOMAIN", "WORKSTATION", "user", testPassword)
	msg, err := s.Type3(newType2(ntlm.NegotiateUnicode|ntlm.NegotiateNTLM, nil))
	require.NoError(t, err)

	assert.Equal(t, "NTLMSSP\x00", string(msg[:8]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(msg[8:]))
	assert.Equal(t, uint32(0x8201), binary.LittleEndian.Uint32(msg[60:]))
	assert.Equal(t, len(msg), int(binary.LittleEndian.Uint16(msg[56:])))
	assert.Len(t, msg, 64+12+8+22+24+24)

	domain := readField(msg, 28)
	assert.Equal(t, 64, domain.off)
	assert.Equal(t, utf16("DOMAIN"), domain.data)
	assert.Equal(t, utf16("user"), readField(msg, 36).data)
	assert.Equal(t, utf16("WORKSTATION"), readField(msg, 44).data)

	assert.Equal(t, "c337cd5cbd44fc9782a667af6d427c6de67c20c2d3e77c56",
		hex.EncodeToString(readField(msg, 12).data))
	assert.Equal(t, "25a98c1c31e81847466b29b2df4680f39958fb8c213a9cc6",
		hex.EncodeToString(readField(msg, 20).data))
}

func TestType3_V2(t *testing.T) {
	nonce := mustHex("ffffff0011223344")
	targetInfo := mustHex("02000c0044004f004d00410049004e0000000000")
	s := ntlm.NewSession("DOMAIN", "WORKSTATION", "user", testPassword,
		ntlm.WithRand(bytes.NewReader(nonce)),
		ntlm.WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))

	flags := uint32(ntlm.NegotiateUnicode | ntlm.NegotiateNTLM | ntlm.NegotiateExtendedSessionSecurity | ntlm.NegotiateTargetInfo)
	msg, err := s.Type3(newType2(flags, targetInfo))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x88201), binary.LittleEndian.Uint32(msg[60:]))
	assert.Equal(t, "d6e6152ea25d03b7c6ba6629c2d6aaf0ffffff0011223344",
		hex.EncodeToString(readField(msg, 12).data))

	blob := "010100000000000000006dc64717da01ffffff00112233440000000002000c0044004f004d00410049004e000000000000000000"
	assert.Equal(t, "37a28f271dfed81d658f32b66a927ac4"+blob,
		hex.EncodeToString(readField(msg, 20).data))
}

func TestType3_Invalid(t *testing.T) {
	s := ntlm.NewSession("", "", "user", testPassword)

	_, err := s.Type3([]byte("NTLMSSP\x00short"))
	assert.Error(t, err)

	bad := newType2(0, nil)
	copy(bad, "XXXXXXXX")
	_, err = s.Type3(bad)
	assert.Error(t, err)

	// Target info pointing past the end of the message
	ti := newType2(ntlm.NegotiateExtendedSessionSecurity|ntlm.NegotiateTargetInfo, nil)
	binary.LittleEndian.PutUint16(ti[40:], 100)
	_, err = s.Type3(ti)
	assert.Error(t, err)
}
