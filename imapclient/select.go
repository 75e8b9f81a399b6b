package imapclient

import (
	"strings"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/utf7"
	"github.com/emersion/go-mailwire/internal/wire"
)

// SelectData is the data returned by a SELECT command.
type SelectData struct {
	// Flags defined for this mailbox
	Flags []string
	// Flags that the client can change permanently
	PermanentFlags []string
	// Number of messages in this mailbox (aka. "EXISTS")
	NumMessages uint32
	UIDNext     uint32
	UIDValidity uint32
	ReadOnly    bool
}

// Select sends a SELECT or EXAMINE command and opens the mailbox.
func (c *Client) Select(mailbox string, readOnly bool) (*SelectData, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != mailwire.ConnStateAuthenticated && c.state != mailwire.ConnStateOpen {
		return nil, mailwire.ErrBadState
	}

	name := "SELECT"
	if readOnly {
		name = "EXAMINE"
	}

	arg, err := c.mailboxArg(mailbox)
	if err != nil {
		return nil, err
	}

	resps := c.command(name, arg)
	last := resps[len(resps)-1]
	if err := c.handleResult(last); err != nil {
		// A failed SELECT closes the previously selected mailbox
		if c.state == mailwire.ConnStateOpen {
			c.state = mailwire.ConnStateAuthenticated
		}
		return nil, err
	}

	data := &SelectData{ReadOnly: readOnly}
	for _, resp := range resps {
		readSelectData(resp, data)
		resp.Reset()
	}
	if code, ok := responseCode(last); ok {
		data.ReadOnly = code == "READ-ONLY"
	}
	last.Reset()

	c.state = mailwire.ConnStateOpen
	return data, nil
}

// Unselect sends a CLOSE command and goes back to the authenticated state.
func (c *Client) Unselect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != mailwire.ConnStateOpen {
		return mailwire.ErrBadState
	}
	if err := c.simpleCommand("CLOSE"); err != nil {
		return err
	}
	c.state = mailwire.ConnStateAuthenticated
	return nil
}

func (c *Client) mailboxArg(mailbox string) (Arg, error) {
	if strings.EqualFold(mailbox, "INBOX") {
		return Atom("INBOX"), nil
	}
	if c.options.UTF8 {
		return AString(mailbox), nil
	}
	encoded, err := utf7.Encoding.NewEncoder().String(mailbox)
	if err != nil {
		return nil, &mailwire.Error{Kind: mailwire.KindSyntax, Text: "invalid mailbox name", Err: err}
	}
	return AString(encoded), nil
}

func readSelectData(resp *wire.Response, data *SelectData) {
	if !resp.IsUntagged() {
		return
	}

	if resp.IsOK() {
		code, ok := responseCode(resp)
		if !ok {
			return
		}
		switch code {
		case "PERMANENTFLAGS":
			data.PermanentFlags = readFlagList(resp)
		case "UIDNEXT":
			if n := resp.ReadLong(); n >= 0 {
				data.UIDNext = uint32(n)
			}
		case "UIDVALIDITY":
			if n := resp.ReadLong(); n >= 0 {
				data.UIDValidity = uint32(n)
			}
		}
		return
	}
	if resp.Status() != mailwire.StatusNone {
		return
	}

	if n := resp.ReadLong(); n >= 0 {
		if atom, _ := resp.ReadAtom(); strings.EqualFold(atom, "EXISTS") {
			data.NumMessages = uint32(n)
		}
		return
	}
	if atom, _ := resp.ReadAtom(); strings.EqualFold(atom, "FLAGS") {
		data.Flags = readFlagList(resp)
	}
}

// responseCode reads the name of a "[...]" response code at the cursor.
func responseCode(resp *wire.Response) (string, bool) {
	if !resp.IsNextNonSpace('[') {
		return "", false
	}
	atom, ok := resp.ReadAtom()
	return strings.ToUpper(atom), ok
}

// readFlagList reads a parenthesized list of flags. System flags start with
// a backslash, which isn't an atom character.
func readFlagList(resp *wire.Response) []string {
	if !resp.IsNextNonSpace('(') {
		return nil
	}
	flags := []string{}
	for !resp.IsNextNonSpace(')') {
		var flag string
		if resp.PeekByte() == '\\' {
			resp.NextByte()
			flag = "\\"
		}
		if resp.PeekByte() == '*' {
			resp.NextByte()
			flag += "*"
		} else if atom, ok := resp.ReadAtom(); ok && atom != "" {
			flag += atom
		}
		if flag == "" {
			break
		}
		flags = append(flags, flag)
	}
	return flags
}
