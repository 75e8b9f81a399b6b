package mailwire

import (
	"strings"
)

// Well-known capability names.
const (
	CapTop        = "TOP"
	CapUIDL       = "UIDL"
	CapSASL       = "SASL"
	CapSTLS       = "STLS"
	CapPipelining = "PIPELINING"
	CapUser       = "USER"

	CapStartTLS      = "STARTTLS"
	CapSASLIR        = "SASL-IR"
	CapCompress      = "COMPRESS=DEFLATE"
	CapLoginDisabled = "LOGINDISABLED"
	CapUTF8Accept    = "UTF8=ACCEPT"
)

// CapSet is a set of capabilities advertised by a server.
//
// Keys are upper-case capability names, values are the raw declaration line
// the capability was read from.
type CapSet map[string]string

// ParseCapLines builds a capability set from POP3 CAPA lines. Each line is
// keyed by its first token.
func ParseCapLines(lines []string) CapSet {
	caps := make(CapSet, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		name := line
		if i := strings.IndexByte(line, ' '); i > 0 {
			name = line[:i]
		}
		caps[strings.ToUpper(name)] = line
	}
	return caps
}

// ParseCapAtoms builds a capability set from IMAP CAPABILITY atoms. Each atom
// is its own declaration.
func ParseCapAtoms(atoms []string) CapSet {
	caps := make(CapSet, len(atoms))
	for _, atom := range atoms {
		if atom != "" {
			caps[strings.ToUpper(atom)] = atom
		}
	}
	return caps
}

// Has checks whether a capability is supported.
func (set CapSet) Has(name string) bool {
	_, ok := set[strings.ToUpper(name)]
	return ok
}

// Args returns the arguments following the capability name on its
// declaration line.
func (set CapSet) Args(name string) []string {
	line, ok := set[strings.ToUpper(name)]
	if !ok {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// SASLMechanisms returns the advertised SASL mechanisms, upper-cased.
//
// POP3 servers list them on a "SASL" line, IMAP servers as "AUTH=" atoms.
func (set CapSet) SASLMechanisms() []string {
	var mechs []string
	for _, arg := range set.Args(CapSASL) {
		mechs = append(mechs, strings.ToUpper(arg))
	}
	for name := range set {
		if mech, ok := strings.CutPrefix(name, "AUTH="); ok {
			mechs = append(mechs, mech)
		}
	}
	return mechs
}

// SupportsMechanism checks whether the server accepts the provided
// authentication mechanism. LOGIN maps to commands every server implements
// and is always considered supported.
func (set CapSet) SupportsMechanism(mech string) bool {
	mech = strings.ToUpper(mech)
	if mech == "LOGIN" {
		return true
	}
	for _, m := range set.SASLMechanisms() {
		if m == mech {
			return true
		}
	}
	return false
}

// Copy returns a copy of the capability set.
func (set CapSet) Copy() CapSet {
	newSet := make(CapSet, len(set))
	for name, line := range set {
		newSet[name] = line
	}
	return newSet
}
