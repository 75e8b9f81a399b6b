package imapclient

import (
	"strings"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/wire"
)

// Capability sends a CAPABILITY command and caches the result.
func (c *Client) Capability() (mailwire.CapSet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.capability()
}

func (c *Client) capability() (mailwire.CapSet, error) {
	resps := c.command("CAPABILITY")

	var caps mailwire.CapSet
	for _, resp := range resps {
		if !resp.IsUntagged() || resp.Status() != mailwire.StatusNone {
			continue
		}
		if atom, _ := resp.ReadAtom(); strings.EqualFold(atom, "CAPABILITY") {
			caps = readCapabilities(resp)
		}
		resp.Reset()
	}

	last := resps[len(resps)-1]
	if err := c.handleResult(last); err != nil {
		return nil, err
	}
	if caps == nil {
		caps = parseCapabilityCode(last)
		last.Reset()
	}
	if caps == nil {
		caps = make(mailwire.CapSet)
	}
	c.caps = caps
	return caps.Copy(), nil
}

// Caps returns the capabilities advertised by the server.
//
// The last known set is returned when available, otherwise a CAPABILITY
// command is sent. Nil is returned if the command fails.
func (c *Client) Caps() mailwire.CapSet {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.caps != nil {
		return c.caps.Copy()
	}
	caps, err := c.capability()
	if err != nil {
		c.logger.Debug("failed to fetch capabilities", "error", err)
		return nil
	}
	return caps
}

func readCapabilities(resp *wire.Response) mailwire.CapSet {
	var atoms []string
	for {
		atom, ok := resp.ReadAtom()
		if !ok || atom == "" {
			break
		}
		atoms = append(atoms, atom)
	}
	return mailwire.ParseCapAtoms(atoms)
}

// parseCapabilityCode reads a "[CAPABILITY ...]" response code at the cursor.
// Nil is returned if there is none.
func parseCapabilityCode(resp *wire.Response) mailwire.CapSet {
	if !resp.IsNextNonSpace('[') {
		return nil
	}
	if atom, _ := resp.ReadAtom(); !strings.EqualFold(atom, "CAPABILITY") {
		return nil
	}
	return readCapabilities(resp)
}
