package mailwire_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emersion/go-mailwire"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		err  *mailwire.Error
		want string
	}{
		{
			err:  &mailwire.Error{Kind: mailwire.KindRejected, Status: mailwire.StatusNO, Text: "mailbox locked"},
			want: "mailwire: rejected NO: mailbox locked",
		},
		{
			err:  mailwire.TransportError("connection dropped by server", io.ErrUnexpectedEOF),
			want: "mailwire: transport: connection dropped by server: unexpected EOF",
		},
		{
			err:  mailwire.AuthError("", nil),
			want: "mailwire: authentication: authentication failed",
		},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.err.Error())
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("STARTTLS failed: %w", &mailwire.Error{Kind: mailwire.KindUpgrade, Status: mailwire.StatusBAD})
	assert.True(t, mailwire.IsKind(err, mailwire.KindUpgrade))
	assert.False(t, mailwire.IsKind(err, mailwire.KindAuth))
	assert.False(t, mailwire.IsKind(errors.New("plain"), mailwire.KindTransport))
	assert.False(t, mailwire.IsKind(nil, mailwire.KindTransport))
}

func TestError_Is(t *testing.T) {
	wrapped := fmt.Errorf("dial: %w", mailwire.ErrConnClosed)
	assert.ErrorIs(t, wrapped, mailwire.ErrConnClosed)

	// Same kind and text, built separately
	err := &mailwire.Error{Kind: mailwire.KindAuth, Text: "no common authentication mechanism"}
	assert.ErrorIs(t, err, mailwire.ErrNoCommonMechanism)
	assert.NotErrorIs(t, err, mailwire.ErrBadState)

	cause := mailwire.TransportError("read failed", io.EOF)
	assert.ErrorIs(t, cause, io.EOF)
}
