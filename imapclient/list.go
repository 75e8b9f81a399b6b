package imapclient

import (
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/utf7"
	"github.com/emersion/go-mailwire/internal/wire"
)

// ListData is a mailbox returned by a LIST command.
type ListData struct {
	Attrs []string
	// Hierarchy delimiter, zero if the server has a flat namespace
	Delim   rune
	Mailbox string
}

// List sends a LIST command.
//
// Mailbox names are decoded from modified UTF-7 unless UTF-8 mode is enabled.
func (c *Client) List(ref, pattern string) ([]*ListData, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != mailwire.ConnStateAuthenticated && c.state != mailwire.ConnStateOpen {
		return nil, mailwire.ErrBadState
	}

	refArg, err := c.mailboxArg(ref)
	if err != nil {
		return nil, err
	}
	patternArg, err := c.mailboxArg(pattern)
	if err != nil {
		return nil, err
	}

	resps := c.command("LIST", refArg, patternArg)
	if err := c.handleResult(resps[len(resps)-1]); err != nil {
		return nil, err
	}

	var mailboxes []*ListData
	for _, resp := range resps {
		if data := c.readListData(resp); data != nil {
			mailboxes = append(mailboxes, data)
		}
		resp.Reset()
	}
	return mailboxes, nil
}

func (c *Client) readListData(resp *wire.Response) *ListData {
	if !resp.IsUntagged() || resp.Status() != mailwire.StatusNone {
		return nil
	}
	if atom, _ := resp.ReadAtom(); !strings.EqualFold(atom, "LIST") {
		return nil
	}

	data := &ListData{Attrs: readFlagList(resp)}
	if delim, ok := resp.ReadString(); ok {
		data.Delim, _ = utf8.DecodeRuneInString(delim)
	}
	name, ok := resp.ReadAtomString()
	if !ok {
		c.logger.Debug("ignoring LIST response without mailbox", "response", resp.String())
		return nil
	}
	data.Mailbox = c.decodeMailbox(name)
	return data
}

// decodeMailbox decodes a mailbox name sent by the server. Names that aren't
// valid modified UTF-7 are returned as is.
func (c *Client) decodeMailbox(name string) string {
	if c.options.UTF8 || strings.EqualFold(name, "INBOX") {
		return name
	}
	decoded, err := utf7.Encoding.NewDecoder().String(name)
	if err != nil {
		c.logger.Debug("invalid mailbox name", "mailbox", name, "error", err)
		return name
	}
	return decoded
}
