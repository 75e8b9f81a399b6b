// Package auth implements the authentication mechanisms used by the mail
// retrieval clients.
//
// Each Authenticator creates a fresh go-sasl client per attempt, so a
// Registry can be shared between connections.
package auth

import (
	"strings"
	"sync"

	"github.com/emersion/go-sasl"

	"github.com/emersion/go-mailwire"
)

// Mechanism names.
const (
	MechLogin       = "LOGIN"
	MechPlain       = sasl.Plain
	MechNTLM        = "NTLM"
	MechXOAuth2     = "XOAUTH2"
	MechOAuthBearer = sasl.OAuthBearer
)

// Credentials identify the user.
type Credentials struct {
	// Host and Port of the server, used by some mechanisms.
	Host string
	Port int
	// Authzid is the authorization identity. It defaults to Username.
	Authzid  string
	Username string
	// Password is the password, or the OAuth2 access token for token-based
	// mechanisms.
	Password string
}

func (cred *Credentials) authzid() string {
	if cred.Authzid != "" {
		return cred.Authzid
	}
	return cred.Username
}

// Authenticator is an authentication mechanism.
type Authenticator interface {
	// Mechanism returns the uppercase mechanism name.
	Mechanism() string
	// Enabled returns whether the mechanism is tried when no mechanism list
	// is configured.
	Enabled() bool
	// NewClient starts a new exchange. The client's initial response is nil
	// when the mechanism has none, and an empty non-nil slice when it is
	// empty.
	NewClient(cred *Credentials) (sasl.Client, error)
}

// TwoLiner is implemented by mechanisms which may need the initial response
// on its own line instead of on the command line.
type TwoLiner interface {
	TwoLine() bool
}

// IsTwoLine returns whether the initial response of a must be sent on its
// own line.
func IsTwoLine(a Authenticator) bool {
	tl, ok := a.(TwoLiner)
	return ok && tl.TwoLine()
}

// Options configure the default set of mechanisms.
type Options struct {
	// Disabled lists mechanisms disabled by configuration.
	Disabled []string

	NTLMDomain    string
	NTLMLocalHost string
	NTLMFlags     uint32
	NTLMDisableV2 bool

	XOAuth2Enabled bool
	XOAuth2TwoLine bool

	OAuthBearerEnabled bool
}

// Registry is an ordered set of mechanisms.
type Registry struct {
	mutex     sync.RWMutex
	names     []string
	mechs     map[string]Authenticator
	overrides map[string]bool
}

// NewRegistry creates a registry with the provided mechanisms, in order of
// preference.
func NewRegistry(mechs ...Authenticator) *Registry {
	r := &Registry{
		mechs:     make(map[string]Authenticator),
		overrides: make(map[string]bool),
	}
	for _, a := range mechs {
		r.Register(a)
	}
	return r
}

// Default returns a registry with LOGIN, PLAIN, NTLM, XOAUTH2 and
// OAUTHBEARER. The token-based mechanisms are disabled unless enabled in
// the options.
func Default(options *Options) *Registry {
	if options == nil {
		options = &Options{}
	}
	r := NewRegistry(
		Login{},
		Plain{},
		&NTLM{
			Domain:    options.NTLMDomain,
			LocalHost: options.NTLMLocalHost,
			Flags:     options.NTLMFlags,
			V2:        !options.NTLMDisableV2,
		},
		&XOAuth2{Enable: options.XOAuth2Enabled, TwoLineFormat: options.XOAuth2TwoLine},
		&OAuthBearer{Enable: options.OAuthBearerEnabled},
	)
	for _, name := range options.Disabled {
		r.SetEnabled(name, false)
	}
	return r
}

// Register adds a mechanism, replacing any mechanism with the same name.
func (r *Registry) Register(a Authenticator) {
	name := strings.ToUpper(a.Mechanism())
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.mechs[name]; !ok {
		r.names = append(r.names, name)
	}
	r.mechs[name] = a
}

// Get returns the mechanism with the provided name, or nil.
func (r *Registry) Get(name string) Authenticator {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.mechs[strings.ToUpper(name)]
}

// Names returns the mechanism names in order of preference.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]string(nil), r.names...)
}

// SetEnabled overrides the default enabled state of a mechanism.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.overrides[strings.ToUpper(name)] = enabled
}

// Enabled returns whether a mechanism is enabled.
func (r *Registry) Enabled(name string) bool {
	name = strings.ToUpper(name)
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if enabled, ok := r.overrides[name]; ok {
		return enabled
	}
	a := r.mechs[name]
	return a != nil && a.Enabled()
}

// Select picks the mechanism to authenticate with.
//
// If preferred is non-empty, its mechanisms are considered in order and are
// used even if disabled. Otherwise, every enabled mechanism of the registry
// is considered. The first mechanism known to the registry and supported by
// the server is returned.
func (r *Registry) Select(preferred []string, supported func(mech string) bool) (Authenticator, error) {
	explicit := len(preferred) > 0
	if !explicit {
		preferred = r.Names()
	}
	for _, name := range preferred {
		a := r.Get(name)
		if a == nil || !supported(a.Mechanism()) {
			continue
		}
		if !explicit && !r.Enabled(name) {
			continue
		}
		return a, nil
	}
	return nil, mailwire.ErrNoCommonMechanism
}
