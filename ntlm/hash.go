package ntlm

import (
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"strings"

	"golang.org/x/crypto/md4"
)

var lmMagic = []byte("KGS!@#$%")

// LMHash computes the LAN Manager hash of a password, zero-padded to 21
// bytes.
func LMHash(password string) []byte {
	pw := make([]byte, 14)
	copy(pw, latin1(strings.ToUpper(password)))

	h := make([]byte, 21)
	desEncrypt(makeDESKey(pw[0:7]), lmMagic, h[0:8])
	desEncrypt(makeDESKey(pw[7:14]), lmMagic, h[8:16])
	return h
}

// NTHash computes the NT hash of a password (MD4 of its UTF-16LE encoding),
// zero-padded to 21 bytes.
func NTHash(password string) []byte {
	md := md4.New()
	md.Write(utf16le(password))
	h := make([]byte, 21)
	copy(h, md.Sum(nil))
	return h
}

// LMResponse computes the 24-byte classic response to a challenge from an
// LM hash.
func LMResponse(lmHash, challenge []byte) []byte {
	return calcResponse(lmHash, challenge)
}

// NTResponse computes the 24-byte classic response to a challenge from an
// NT hash.
func NTResponse(ntHash, challenge []byte) []byte {
	return calcResponse(ntHash, challenge)
}

// calcResponse encrypts the challenge with three DES keys derived from the
// 21-byte hash.
func calcResponse(hash, challenge []byte) []byte {
	var key [21]byte
	copy(key[:], hash)
	resp := make([]byte, 24)
	for i := 0; i < 3; i++ {
		desEncrypt(makeDESKey(key[i*7:i*7+7]), challenge[:8], resp[i*8:i*8+8])
	}
	return resp
}

// NTLMv2Hash computes the NTLMv2 key from the NT hash.
func NTLMv2Hash(ntHash []byte, user, domain string) []byte {
	return hmacMD5(ntHash[:16], utf16le(strings.ToUpper(user)+domain))
}

// NTLMv2Response computes HMAC-MD5(v2Hash, challenge || blob) || blob.
func NTLMv2Response(v2Hash, challenge, blob []byte) []byte {
	data := make([]byte, 0, 8+len(blob))
	data = append(data, challenge[:8]...)
	data = append(data, blob...)
	resp := hmacMD5(v2Hash, data)
	return append(resp, blob...)
}

func hmacMD5(key, data []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// makeDESKey spreads 56 key bits over 8 bytes, leaving the low bit of each
// byte for parity.
func makeDESKey(in []byte) []byte {
	return []byte{
		in[0],
		in[0]<<7 | in[1]>>1,
		in[1]<<6 | in[2]>>2,
		in[2]<<5 | in[3]>>3,
		in[3]<<4 | in[4]>>4,
		in[4]<<3 | in[5]>>5,
		in[5]<<2 | in[6]>>6,
		in[6] << 1,
	}
}

func desEncrypt(key, src, dst []byte) {
	block, err := des.NewCipher(key)
	if err != nil {
		panic(err) // unreachable: the key is always 8 bytes
	}
	block.Encrypt(dst, src)
}
