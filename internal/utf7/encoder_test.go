package utf7_test

import (
	"testing"

	"github.com/emersion/go-mailwire/internal/utf7"
)

var encode = []struct {
	in  string
	out string
}{
	{"", ""},
	{"INBOX", "INBOX"},
	{"&", "&-"},
	{"a&b", "a&-b"},
	{"\x19", "&ABk-"},
	{"ÿ", "&AP8-"},
	{"abc ÿÿÿ & xyz", "abc &AP8A,wD,- &- xyz"},
	{"\U0001f60a", "&2D3eCg-"},
	{"Entwürfe", "Entw&APw-rfe"},
	{"\xff", "&,,0-"},
}

func TestEncoder(t *testing.T) {
	e := utf7.Encoding.NewEncoder()

	for _, test := range encode {
		out, err := e.String(test.in)
		if err != nil {
			t.Errorf("UTF7Encode(%+q) unexpected error; %v", test.in, err)
		}
		if out != test.out {
			t.Errorf("UTF7Encode(%+q) expected %+q; got %+q", test.in, test.out, out)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	e := utf7.Encoding.NewEncoder()
	d := utf7.Encoding.NewDecoder()

	for _, test := range encode {
		if test.in == "\xff" {
			continue
		}
		enc, err := e.String(test.in)
		if err != nil {
			t.Fatalf("encode %+q: %v", test.in, err)
		}
		dec, err := d.String(enc)
		if err != nil {
			t.Fatalf("decode %+q: %v", enc, err)
		}
		if dec != test.in {
			t.Errorf("round trip of %+q gave %+q", test.in, dec)
		}
	}
}
