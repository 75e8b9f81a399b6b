package utf7

import (
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

type encoder struct {
	transform.NopResetter
}

func (e *encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for i := 0; i < len(src); {
		var b []byte
		if ch := src[i]; min <= ch && ch <= max {
			b = []byte{ch}
			if ch == '&' {
				b = append(b, '-')
			}
			i++
		} else {
			start := i
			for i < len(src) && (src[i] < min || src[i] > max) {
				if !atEOF && !utf8.FullRune(src[i:]) {
					return nDst, nSrc, transform.ErrShortSrc
				}
				_, size := utf8.DecodeRune(src[i:])
				i += size
			}
			if i == len(src) && !atEOF {
				// The section may go on in the next chunk
				return nDst, nSrc, transform.ErrShortSrc
			}
			b = encode(src[start:i])
		}

		if nDst+len(b) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], b)
		nSrc = i
	}
	return nDst, nSrc, nil
}

// encode encodes UTF-8 text as a base64 section. Invalid UTF-8 sequences are
// replaced with U+FFFD.
func encode(s []byte) []byte {
	var u []uint16
	for len(s) > 0 {
		r, size := utf8.DecodeRune(s)
		s = s[size:]
		if r == utf8.RuneError && size <= 1 {
			r = repl
		}
		u = utf16.AppendRune(u, r)
	}

	b := make([]byte, 0, 2*len(u))
	for _, v := range u {
		b = append(b, byte(v>>8), byte(v))
	}

	out := make([]byte, 0, 2+enc.EncodedLen(len(b)))
	out = append(out, '&')
	out = enc.AppendEncode(out, b)
	return append(out, '-')
}
