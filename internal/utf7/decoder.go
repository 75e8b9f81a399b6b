package utf7

import (
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

type decoder struct {
	// ascii is false right after a base64 section
	ascii bool
}

func (d *decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if ch < min || ch > max {
			return nDst, nSrc, ErrInvalidUTF7
		}

		if ch != '&' {
			if nDst+1 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = ch
			nDst++
			nSrc = i + 1
			d.ascii = true
			continue
		}

		end := -1
		for j := i + 1; j < len(src); j++ {
			if src[j] == '-' {
				end = j
				break
			}
		}
		if end < 0 {
			if atEOF {
				// Implicit shift back to US-ASCII
				return nDst, nSrc, ErrInvalidUTF7
			}
			return nDst, nSrc, transform.ErrShortSrc
		}

		var b []byte
		shifted := end > i+1
		if shifted {
			// Two adjacent base64 sections must be a single one
			if !d.ascii {
				return nDst, nSrc, ErrInvalidUTF7
			}
			b = decode(src[i+1 : end])
			if b == nil {
				return nDst, nSrc, ErrInvalidUTF7
			}
		} else {
			b = []byte{'&'}
		}

		// The state only changes once the section is consumed
		if nDst+len(b) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], b)
		d.ascii = !shifted
		i = end
		nSrc = end + 1
	}
	return nDst, nSrc, nil
}

func (d *decoder) Reset() {
	d.ascii = true
}

// decode decodes a base64 section into UTF-8. Nil is returned if the section
// is invalid.
func decode(b64 []byte) []byte {
	for _, ch := range b64 {
		if !isBase64Char(ch) {
			return nil
		}
	}

	b := make([]byte, enc.DecodedLen(len(b64)))
	n, err := enc.Decode(b, b64)
	if err != nil || n%2 == 1 {
		return nil
	}
	b = b[:n]

	var out []byte
	for i := 0; i < len(b); i += 2 {
		r := rune(b[i])<<8 | rune(b[i+1])
		if utf16.IsSurrogate(r) {
			i += 2
			if i >= len(b) {
				return nil
			}
			r2 := rune(b[i])<<8 | rune(b[i+1])
			if r = utf16.DecodeRune(r, r2); r == repl {
				return nil
			}
		} else if min <= r && r <= max {
			// Characters representable as US-ASCII must not be encoded
			return nil
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

func isBase64Char(ch byte) bool {
	switch {
	case 'A' <= ch && ch <= 'Z', 'a' <= ch && ch <= 'z', '0' <= ch && ch <= '9':
		return true
	default:
		return ch == '+' || ch == ','
	}
}
