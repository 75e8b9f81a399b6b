package imapclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagPrefix(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "A"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{701, "ZZ"},
		{702, "AAA"},
		{18277, "ZZZ"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tagPrefix(tc.n), "tagPrefix(%v)", tc.n)
	}
}

func TestTagGenerator(t *testing.T) {
	g := NewTagGenerator(maxTagPrefixes - 1)
	assert.Equal(t, "ZZZ", g.Next())
	assert.Equal(t, "A", g.Next())
	assert.Equal(t, "B", g.Next())

	g = FixedTags("A")
	assert.Equal(t, "A", g.Next())
	assert.Equal(t, "A", g.Next())
}
