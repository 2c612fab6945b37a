/*
The target package parses the connection url given to Open into the
structural parts the transport layers need: the scheme decides whether a
secure layer is built, hostname and service configure the stream layer,
and the composite host and path configure the protocol handshake.
*/
package target

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	SecureScheme   = "wss"
	InsecureScheme = "ws"

	defaultInsecureService = "80"
	defaultSecureService   = "443"
)

type Resolved struct {
	Scheme   string
	Hostname string // bracket delimiters stripped for literal addresses
	Service  string
	Host     string // hostname alone when the default service is implied, else hostname:service
	Path     string // includes the query, if one was present

	// True when the hostname was given in bracketed literal notation
	Literal bool
}

// Secure reports whether the resolved scheme requires a secure layer.
func (r *Resolved) Secure() bool {
	return r.Scheme == SecureScheme
}

func Parse(rawTarget string) (*Resolved, error) {
	// The scheme defaults to the insecure variant when omitted
	if !strings.Contains(rawTarget, "://") {
		rawTarget = InsecureScheme + "://" + rawTarget
	}

	u, err := url.Parse(rawTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target url %s: %w", rawTarget, err)
	}

	if u.Scheme != InsecureScheme && u.Scheme != SecureScheme {
		return nil, fmt.Errorf("unsupported target scheme: %s", u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("target url %s has no host", rawTarget)
	}

	resolved := &Resolved{
		Scheme:   u.Scheme,
		Hostname: u.Hostname(), // strips brackets from literal addresses
		Service:  u.Port(),
		Literal:  strings.HasPrefix(u.Host, "["),
	}

	if resolved.Service == "" {
		if resolved.Secure() {
			resolved.Service = defaultSecureService
		} else {
			resolved.Service = defaultInsecureService
		}
	}

	// u.Host keeps the bracketed form and carries the port only when one
	// was given, which is exactly the composite host contract
	resolved.Host = u.Host

	resolved.Path = u.EscapedPath()
	if resolved.Path == "" {
		resolved.Path = "/"
	}
	if u.RawQuery != "" {
		resolved.Path += "?" + u.RawQuery
	}

	return resolved, nil
}
