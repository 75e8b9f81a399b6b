package imapclient

import (
	"strings"

	"github.com/emersion/go-mailwire"
)

// Enable sends an ENABLE command and returns the extensions the server
// enabled.
//
// This command requires support for IMAP4rev2 or the ENABLE extension, and
// is only valid before a mailbox is selected. Enabling UTF8=ACCEPT switches
// the client to UTF-8 mode.
func (c *Client) Enable(caps ...string) (mailwire.CapSet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != mailwire.ConnStateAuthenticated {
		return nil, mailwire.ErrBadState
	}

	args := make([]Arg, len(caps))
	for i, name := range caps {
		args[i] = Atom(name)
	}
	resps := c.command("ENABLE", args...)

	enabled := make(mailwire.CapSet)
	for _, resp := range resps {
		if !resp.IsUntagged() || resp.Status() != mailwire.StatusNone {
			continue
		}
		if atom, _ := resp.ReadAtom(); strings.EqualFold(atom, "ENABLED") {
			for name, line := range readCapabilities(resp) {
				enabled[name] = line
			}
		}
		resp.Reset()
	}
	if err := c.handleResult(resps[len(resps)-1]); err != nil {
		return nil, err
	}

	if enabled.Has(mailwire.CapUTF8Accept) && !c.options.UTF8 {
		c.logger.Debug("UTF-8 mode enabled")
		c.options.UTF8 = true
	}
	return enabled, nil
}
