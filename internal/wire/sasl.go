package wire

import (
	"encoding/base64"
	"strings"
)

// EncodeSASL encodes a SASL response. An empty response is sent as "=".
func EncodeSASL(b []byte) string {
	if len(b) == 0 {
		return "="
	} else {
		return base64.StdEncoding.EncodeToString(b)
	}
}

// DecodeSASL decodes a SASL challenge.
func DecodeSASL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "=" || s == "" {
		// Mechanisms treat nil as no challenge, so return a non-nil
		// empty byte slice
		return []byte{}, nil
	} else {
		return base64.StdEncoding.DecodeString(s)
	}
}
