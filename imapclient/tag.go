package imapclient

import (
	"sync/atomic"
)

// maxTagPrefixes is the number of distinct prefixes: A-Z, AA-ZZ and
// AAA-ZZZ.
const maxTagPrefixes = 26 + 26*26 + 26*26*26

// TagGenerator hands out tag prefixes to connections. Connections sharing a
// generator get distinct prefixes, which makes their traces easy to tell
// apart.
//
// A TagGenerator is safe for concurrent use.
type TagGenerator struct {
	counter atomic.Uint32
	fixed   string
}

// NewTagGenerator creates a generator starting at the provided position.
func NewTagGenerator(start uint32) *TagGenerator {
	g := &TagGenerator{}
	g.counter.Store(start % maxTagPrefixes)
	return g
}

// FixedTags creates a generator which always returns the same prefix.
func FixedTags(prefix string) *TagGenerator {
	return &TagGenerator{fixed: prefix}
}

// Next returns a new prefix.
func (g *TagGenerator) Next() string {
	if g.fixed != "" {
		return g.fixed
	}
	n := int((g.counter.Add(1) - 1) % maxTagPrefixes)
	return tagPrefix(n)
}

func tagPrefix(n int) string {
	switch {
	case n < 26:
		return string(rune('A' + n))
	case n < 26+26*26:
		n -= 26
		return string([]byte{byte('A' + n/26), byte('A' + n%26)})
	default:
		n -= 26 + 26*26
		return string([]byte{byte('A' + n/676), byte('A' + n%676/26), byte('A' + n%26)})
	}
}
