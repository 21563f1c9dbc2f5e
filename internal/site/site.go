// Package site canonicalizes a user-supplied host string into the Site
// value that every other scanner layer treats as its sole handle.
package site

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
	"golang.org/x/net/publicsuffix"
)

// hostnameRE matches the RFC-1035 label grammar: letters, digits, hyphens,
// labels not starting or ending with a hyphen, joined by dots.
var hostnameRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

// Site is the canonical host[:port][/path] identifier passed between
// layers. It is immutable once constructed.
type Site struct {
	host string
	port int // 0 means "not specified"
	path string
}

// Resolver abstracts DNS lookup so tests can stub it without touching the
// network. It mirrors the one stdlib method Validate actually needs.
type Resolver interface {
	LookupHost(host string) ([]string, error)
}

type netResolver struct{}

func (netResolver) LookupHost(host string) ([]string, error) {
	return net.LookupHost(host)
}

// DefaultResolver uses the standard library's resolver, the same way the
// teacher's own DNS checker does for this exact operation.
var DefaultResolver Resolver = netResolver{}

// AllowPrivateHosts permits loopback/private-range hosts to be scanned, for
// local development and tests. Off by default.
var AllowPrivateHosts = false

// FromString canonicalizes a user-supplied string into a Site. It strips any
// scheme, credentials, query, and fragment; lower-cases the host; preserves
// a non-empty path verbatim; and parses an optional port.
func FromString(raw string) (Site, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(raw, " \t\n\r") {
		return Site{}, secerrors.ErrInvalidHostname
	}

	s = stripScheme(s)
	s = stripCredentials(s)
	s = stripQueryAndFragment(s)

	hostport, path := splitPath(s)
	host, portStr, err := splitHostPort(hostport)
	if err != nil {
		return Site{}, secerrors.ErrInvalidHostname
	}

	host = strings.ToLower(host)
	if !isValidHostname(host) {
		return Site{}, secerrors.ErrInvalidHostname
	}

	port := 0
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return Site{}, secerrors.ErrInvalidPort
		}
		port = p
	}

	if !AllowPrivateHosts && isLiteralOrPrivate(host) {
		return Site{}, secerrors.ErrInvalidHostname
	}

	return Site{host: host, port: port, path: path}, nil
}

// Validate performs the DNS-lookup half of canonicalization that
// FromString intentionally skips (so that pure parsing stays fast and
// callers can decide when to pay the network cost).
func Validate(resolver Resolver, s Site) error {
	if resolver == nil {
		resolver = DefaultResolver
	}
	addrs, err := resolver.LookupHost(s.host)
	if err != nil || len(addrs) == 0 {
		return secerrors.ErrInvalidHostnameLookup
	}
	if !AllowPrivateHosts {
		for _, a := range addrs {
			if isLiteralOrPrivate(a) {
				return secerrors.ErrInvalidHostnameLookup
			}
		}
	}
	return nil
}

// Key returns the canonical siteKey: host[:port][/path].
func (s Site) Key() string {
	var b strings.Builder
	b.WriteString(s.host)
	if s.port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.port))
	}
	if s.path != "" {
		b.WriteString(s.path)
	}
	return b.String()
}

func (s Site) Host() string { return s.host }
func (s Site) Port() int    { return s.port }
func (s Site) Path() string { return s.path }

// BaseURL returns the URL the retriever should fetch, for the given scheme.
func (s Site) BaseURL(scheme string) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(s.host)
	if s.port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.port))
	}
	if s.path != "" {
		b.WriteString(s.path)
	} else {
		b.WriteByte('/')
	}
	return b.String()
}

// RegistrableDomain returns the eTLD+1 of the site's host, used for HSTS
// preload-list lookups. Falls back to the host itself when the public
// suffix list has no opinion (e.g. a single-label host like "localhost").
func (s Site) RegistrableDomain() string {
	reg, err := publicsuffix.EffectiveTLDPlusOne(s.host)
	if err != nil {
		return s.host
	}
	return reg
}

func stripScheme(s string) string {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "https://") {
		return s[len("https://"):]
	}
	if strings.HasPrefix(lower, "http://") {
		return s[len("http://"):]
	}
	return s
}

func stripCredentials(s string) string {
	if idx := strings.Index(s, "@"); idx != -1 {
		// Only strip if everything before '@' looks like credentials, i.e.
		// it contains no '/' (which would mean '@' is part of a path).
		if !strings.Contains(s[:idx], "/") {
			return s[idx+1:]
		}
	}
	return s
}

func stripQueryAndFragment(s string) string {
	if idx := strings.IndexAny(s, "?#"); idx != -1 {
		return s[:idx]
	}
	return s
}

func splitPath(s string) (hostport, path string) {
	if idx := strings.Index(s, "/"); idx != -1 {
		return s[:idx], s[idx:]
	}
	return s, ""
}

func splitHostPort(hostport string) (host, port string, err error) {
	if !strings.Contains(hostport, ":") {
		return hostport, "", nil
	}
	h, p, splitErr := net.SplitHostPort(hostport)
	if splitErr != nil {
		return "", "", splitErr
	}
	return h, p, nil
}

func isValidHostname(host string) bool {
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	if !strings.Contains(host, ".") {
		return false
	}
	if len(host) > 253 {
		return false
	}
	return hostnameRE.MatchString(host)
}

func isLiteralOrPrivate(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}
